package domain

import "time"

// StatusSnapshot is a point-in-time view of a running transfer
type StatusSnapshot struct {
	TransferID string        `json:"transfer_id"`
	Title      string        `json:"title"`
	BytesSoFar int64         `json:"bytes_so_far"`
	TotalBytes int64         `json:"total_bytes"` // -1 when unknown
	State      TransferState `json:"state"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Percent returns the completion percentage, or -1 when the total is unknown
func (s StatusSnapshot) Percent() float64 {
	if s.TotalBytes <= 0 {
		return -1
	}
	return float64(s.BytesSoFar) * 100 / float64(s.TotalBytes)
}

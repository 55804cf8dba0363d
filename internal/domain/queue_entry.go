package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueStatus represents the status of a host-managed queue entry
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueRunning   QueueStatus = "running"
	QueuePaused    QueueStatus = "paused"
	QueueSucceeded QueueStatus = "succeeded"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

// QueueRequest is what a caller hands to the host-managed queue
type QueueRequest struct {
	URL         string
	Headers     map[string]string
	Destination string
	Title       string
}

// QueueEntry represents a persisted host-managed download
type QueueEntry struct {
	ID           string      `json:"id" gorm:"primaryKey"`
	URL          string      `json:"url" gorm:"not null"`
	Title        string      `json:"title"`
	Destination  string      `json:"destination" gorm:"not null"`
	Headers      string      `json:"-" gorm:"type:text"` // JSON encoded request headers
	Status       QueueStatus `json:"status" gorm:"not null;index"`
	RetryCount   int         `json:"retry_count" gorm:"default:0"`
	ErrorMessage string      `json:"error_message,omitempty"`
	BytesDone    int64       `json:"bytes_done"`
	BytesTotal   int64       `json:"bytes_total"`
	CreatedAt    time.Time   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

// NewQueueEntry creates a pending queue entry from a request
func NewQueueEntry(req QueueRequest) *QueueEntry {
	now := time.Now()
	entry := &QueueEntry{
		ID:          uuid.New().String(),
		URL:         req.URL,
		Title:       req.Title,
		Destination: req.Destination,
		Status:      QueuePending,
		BytesTotal:  -1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	entry.SetHeaders(req.Headers)
	return entry
}

// SetHeaders stores the request headers on the entry
func (e *QueueEntry) SetHeaders(headers map[string]string) {
	if len(headers) == 0 {
		e.Headers = ""
		return
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return
	}
	e.Headers = string(data)
}

// HeaderMap decodes the stored request headers
func (e *QueueEntry) HeaderMap() (map[string]string, error) {
	headers := make(map[string]string)
	if e.Headers == "" {
		return headers, nil
	}
	if err := json.Unmarshal([]byte(e.Headers), &headers); err != nil {
		return nil, fmt.Errorf("failed to decode stored headers: %w", err)
	}
	return headers, nil
}

// MarkRunning marks the entry as running
func (e *QueueEntry) MarkRunning() {
	e.Status = QueueRunning
	now := time.Now()
	e.StartedAt = &now
	e.UpdatedAt = now
}

// MarkSucceeded marks the entry as succeeded
func (e *QueueEntry) MarkSucceeded(size int64) {
	e.Status = QueueSucceeded
	e.BytesDone = size
	e.BytesTotal = size
	e.ErrorMessage = ""
	now := time.Now()
	e.CompletedAt = &now
	e.UpdatedAt = now
}

// MarkFailed marks the entry as failed
func (e *QueueEntry) MarkFailed(err error) {
	e.Status = QueueFailed
	e.ErrorMessage = err.Error()
	e.UpdatedAt = time.Now()
}

// MarkCancelled marks the entry as cancelled
func (e *QueueEntry) MarkCancelled() {
	e.Status = QueueCancelled
	e.UpdatedAt = time.Now()
}

// MarkPaused marks the entry as waiting for a retry
func (e *QueueEntry) MarkPaused(err error) {
	e.Status = QueuePaused
	e.ErrorMessage = err.Error()
	e.UpdatedAt = time.Now()
}

// IncrementRetry increments the retry count
func (e *QueueEntry) IncrementRetry() {
	e.RetryCount++
	e.UpdatedAt = time.Now()
}

// ResetForRetry puts a finished entry back into the pending state
func (e *QueueEntry) ResetForRetry() {
	e.Status = QueuePending
	e.RetryCount = 0
	e.ErrorMessage = ""
	e.BytesDone = 0
	e.BytesTotal = -1
	e.StartedAt = nil
	e.CompletedAt = nil
	e.UpdatedAt = time.Now()
}

// IsTerminal checks if the entry is in a terminal state
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == QueueSucceeded || e.Status == QueueFailed || e.Status == QueueCancelled
}

// IsActive checks if the entry is still pending or in progress
func (e *QueueEntry) IsActive() bool {
	return e.Status == QueuePending || e.Status == QueueRunning || e.Status == QueuePaused
}

package domain

// QueueRepository defines the interface for host-managed queue persistence
type QueueRepository interface {
	// Create creates a new entry
	Create(entry *QueueEntry) error

	// Update updates an existing entry
	Update(entry *QueueEntry) error

	// Delete deletes an entry by ID
	Delete(id string) error

	// FindByID finds an entry by ID, returning ErrEntryNotFound when missing
	FindByID(id string) (*QueueEntry, error)

	// FindByURL finds the most recent entry for a URL whose status is in statuses, or nil
	FindByURL(url string, statuses []QueueStatus) (*QueueEntry, error)

	// FindByStatus finds entries by status
	FindByStatus(status QueueStatus) ([]*QueueEntry, error)

	// FindPending finds all pending entries ordered by creation time
	FindPending() ([]*QueueEntry, error)

	// FindAll finds all entries with optional filters
	FindAll(filters map[string]interface{}) ([]*QueueEntry, error)

	// GetStats returns queue statistics
	GetStats() (*QueueStats, error)
}

// QueueStats represents queue statistics
type QueueStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Paused    int64 `json:"paused"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

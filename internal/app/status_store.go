package app

import (
	"sort"
	"sync"
	"time"

	"github.com/yourusername/mediagrab/internal/domain"
)

// StatusStore keeps the latest progress of every running transfer, keyed by transfer ID.
// It never computes rates; pollers derive speed from successive snapshots.
type StatusStore struct {
	mu        sync.RWMutex
	transfers map[string]*domain.StatusSnapshot
	latest    string
	now       func() time.Time
}

// NewStatusStore creates an empty status store
func NewStatusStore() *StatusStore {
	return &StatusStore{
		transfers: make(map[string]*domain.StatusSnapshot),
		now:       time.Now,
	}
}

// Start registers a transfer with unknown size
func (s *StatusStore) Start(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[id] = &domain.StatusSnapshot{
		TransferID: id,
		Title:      title,
		TotalBytes: -1,
		State:      domain.StateIdle,
		UpdatedAt:  s.now(),
	}
	s.latest = id
}

// Update records progress for a transfer. Unknown IDs are registered on the fly.
// An empty state keeps the previous one.
func (s *StatusStore) Update(id string, done, total int64, state domain.TransferState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.transfers[id]
	if !ok {
		snap = &domain.StatusSnapshot{TransferID: id}
		s.transfers[id] = snap
		s.latest = id
	}
	snap.BytesSoFar = done
	snap.TotalBytes = total
	if state != "" {
		snap.State = state
	}
	snap.UpdatedAt = s.now()
}

// SetState records a state transition without touching the byte counts
func (s *StatusStore) SetState(id string, state domain.TransferState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.transfers[id]; ok {
		snap.State = state
		snap.UpdatedAt = s.now()
	}
}

// Clear removes a transfer
func (s *StatusStore) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transfers, id)
	if s.latest == id {
		s.latest = ""
		var newest time.Time
		for otherID, snap := range s.transfers {
			if snap.UpdatedAt.After(newest) || s.latest == "" {
				newest = snap.UpdatedAt
				s.latest = otherID
			}
		}
	}
}

// Snapshot returns a copy of one transfer's status
func (s *StatusStore) Snapshot(id string) (domain.StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.transfers[id]
	if !ok {
		return domain.StatusSnapshot{}, false
	}
	return *snap, true
}

// Snapshots returns copies of all transfers, oldest update first
func (s *StatusStore) Snapshots() []domain.StatusSnapshot {
	s.mu.RLock()
	out := make([]domain.StatusSnapshot, 0, len(s.transfers))
	for _, snap := range s.transfers {
		out = append(out, *snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].TransferID < out[j].TransferID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

// Latest returns the most recently started transfer, the single-slot view
func (s *StatusStore) Latest() (domain.StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == "" {
		return domain.StatusSnapshot{}, false
	}
	snap, ok := s.transfers[s.latest]
	if !ok {
		return domain.StatusSnapshot{}, false
	}
	return *snap, true
}

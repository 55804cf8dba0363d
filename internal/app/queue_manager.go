package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/pkg/logger"
)

var activeStatuses = []domain.QueueStatus{domain.QueuePending, domain.QueueRunning, domain.QueuePaused}

// QueueManager is the host-managed download queue. Entries are persisted and
// picked up by a background processor that hands them to the DownloadManager.
type QueueManager struct {
	repo        domain.QueueRepository
	downloadMgr *DownloadManager
	config      *domain.QueueConfig
	logs        *logger.LoggerAdapter
	mu          sync.RWMutex
	running     bool
	dispatched  map[string]bool
	cancel      context.CancelFunc
	stopChan    chan struct{}
	wake        chan struct{}
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.QueueRepository,
	downloadMgr *DownloadManager,
	config *domain.QueueConfig,
	logs *logger.LoggerAdapter,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		downloadMgr: downloadMgr,
		config:      config,
		logs:        logs,
		dispatched:  make(map[string]bool),
		wake:        make(chan struct{}, 1),
	}
}

// Start recovers interrupted entries and starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	ctx, qm.cancel = context.WithCancel(ctx)
	qm.stopChan = make(chan struct{})
	stopChan := qm.stopChan
	qm.mu.Unlock()

	qm.recoverInterrupted()
	qm.logs.Queue().Info("queue_started")

	qm.workerWg.Add(1)
	go qm.processQueue(ctx, stopChan)

	return nil
}

// Stop stops the queue processor and interrupts running entries, which
// return to pending
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	close(qm.stopChan)
	qm.cancel()
	qm.mu.Unlock()

	qm.workerWg.Wait()
	qm.logs.Queue().Info("queue_stopped")
	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// Enqueue adds a request to the queue. A URL that already has an active entry
// returns that entry's ID.
func (qm *QueueManager) Enqueue(ctx context.Context, req domain.QueueRequest) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(req.URL))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", fmt.Errorf("invalid url: %q", req.URL)
	}
	if req.Destination == "" {
		req.Destination = displayName("", req.URL)
	}
	if req.Title == "" {
		req.Title = req.Destination
	}

	existing, err := qm.repo.FindByURL(req.URL, activeStatuses)
	if err != nil {
		return "", fmt.Errorf("failed to check existing entries: %w", err)
	}
	if existing != nil {
		qm.logs.Queue().Info("entry_deduplicated",
			zap.String("entry_id", existing.ID),
			zap.String("url", req.URL))
		return existing.ID, nil
	}

	entry := domain.NewQueueEntry(req)
	if err := qm.repo.Create(entry); err != nil {
		return "", fmt.Errorf("failed to create entry: %w", err)
	}

	qm.logs.Queue().Info("entry_added",
		zap.String("entry_id", entry.ID),
		zap.String("url", entry.URL),
		zap.String("destination", entry.Destination))
	qm.signal()
	return entry.ID, nil
}

// Status returns the status of an entry
func (qm *QueueManager) Status(ctx context.Context, id string) (domain.QueueStatus, error) {
	entry, err := qm.repo.FindByID(id)
	if err != nil {
		return "", err
	}
	return entry.Status, nil
}

// Cancel stops an entry, removes its partial file and deletes it from the queue
func (qm *QueueManager) Cancel(ctx context.Context, id string) error {
	entry, err := qm.repo.FindByID(id)
	if err != nil {
		return err
	}

	if !entry.IsTerminal() {
		entry.MarkCancelled()
		if err := qm.repo.Update(entry); err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
	}
	if err := qm.downloadMgr.CancelEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to stop entry: %w", err)
	}
	if err := qm.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	qm.logs.Queue().Info("entry_cancelled", zap.String("entry_id", id))
	return nil
}

// Retry puts a failed entry back into the queue
func (qm *QueueManager) Retry(id string) error {
	if err := qm.downloadMgr.RetryEntry(id); err != nil {
		return err
	}
	qm.signal()
	return nil
}

// GetEntry retrieves an entry by ID
func (qm *QueueManager) GetEntry(id string) (*domain.QueueEntry, error) {
	return qm.repo.FindByID(id)
}

// ListEntries lists all entries with optional filters
func (qm *QueueManager) ListEntries(filters map[string]interface{}) ([]*domain.QueueEntry, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.QueueStats, error) {
	return qm.repo.GetStats()
}

func (qm *QueueManager) signal() {
	select {
	case qm.wake <- struct{}{}:
	default:
	}
}

// recoverInterrupted returns entries left running by a previous process to pending
func (qm *QueueManager) recoverInterrupted() {
	for _, status := range []domain.QueueStatus{domain.QueueRunning, domain.QueuePaused} {
		entries, err := qm.repo.FindByStatus(status)
		if err != nil {
			qm.logs.LogError("failed to fetch interrupted entries", zap.Error(err))
			continue
		}
		for _, entry := range entries {
			entry.Status = domain.QueuePending
			entry.BytesDone = 0
			entry.UpdatedAt = time.Now()
			if err := qm.repo.Update(entry); err != nil {
				qm.logs.LogError("failed to recover entry", zap.String("entry_id", entry.ID), zap.Error(err))
				continue
			}
			qm.logs.Queue().Info("entry_recovered", zap.String("entry_id", entry.ID))
		}
	}
}

// processQueue dispatches pending entries on every tick or wake-up
func (qm *QueueManager) processQueue(ctx context.Context, stopChan chan struct{}) {
	defer qm.workerWg.Done()

	interval := qm.config.CheckInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	qm.dispatchPending(ctx)
	for {
		select {
		case <-ctx.Done():
			qm.logs.Queue().Info("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-stopChan:
			qm.logs.Queue().Info("queue_processor_stopped", zap.String("reason", "stop_signal"))
			return
		case <-qm.wake:
			qm.dispatchPending(ctx)
		case <-ticker.C:
			qm.dispatchPending(ctx)
		}
	}
}

func (qm *QueueManager) dispatchPending(ctx context.Context) {
	pending, err := qm.repo.FindPending()
	if err != nil {
		qm.logs.LogError("failed to fetch pending entries", zap.Error(err))
		return
	}

	for _, entry := range pending {
		qm.mu.Lock()
		if qm.dispatched[entry.ID] {
			qm.mu.Unlock()
			continue
		}
		qm.dispatched[entry.ID] = true
		qm.mu.Unlock()

		// The semaphore in DownloadManager bounds actual concurrency
		qm.workerWg.Add(1)
		go func(entry *domain.QueueEntry) {
			defer qm.workerWg.Done()
			defer func() {
				qm.mu.Lock()
				delete(qm.dispatched, entry.ID)
				qm.mu.Unlock()
			}()

			err := qm.downloadMgr.ProcessEntry(ctx, entry)
			switch {
			case err == nil:
				qm.logs.Queue().Info("entry_processed", zap.String("entry_id", entry.ID))
			case errors.Is(err, context.Canceled):
				qm.logs.Queue().Info("entry_interrupted", zap.String("entry_id", entry.ID))
			default:
				qm.logs.Queue().Warn("entry_failed", zap.String("entry_id", entry.ID), zap.Error(err))
			}
		}(entry)
	}
}

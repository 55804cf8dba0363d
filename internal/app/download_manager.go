package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/internal/infrastructure"
	"github.com/yourusername/mediagrab/pkg/logger"
)

const progressPersistInterval = time.Second

// DownloadManager runs queued entries one sequential stream at a time per slot
type DownloadManager struct {
	repo     domain.QueueRepository
	library  domain.LibrarySink
	notifier domain.Notifier
	download *domain.DownloadConfig
	config   *domain.QueueConfig
	client   *http.Client
	fetcher  *infrastructure.StreamFetcher
	logs     *logger.LoggerAdapter
	sem      chan struct{} // bounds concurrently running entries
	mu       sync.Mutex
	active   map[string]*activeEntry
}

// activeEntry tracks one running entry so Cancel can stop it and wait for it
type activeEntry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDownloadManager creates a new download manager. notifier may be nil.
func NewDownloadManager(
	repo domain.QueueRepository,
	library domain.LibrarySink,
	notifier domain.Notifier,
	download *domain.DownloadConfig,
	config *domain.QueueConfig,
	logs *logger.LoggerAdapter,
) *DownloadManager {
	limit := config.ConcurrentLimit
	if limit <= 0 {
		limit = 1
	}
	policy := download.Policy().Normalize()
	client := infrastructure.NewHTTPClient(infrastructure.HTTPClientConfig{
		ConnectTimeout:  policy.ConnectTimeout,
		ReadTimeout:     policy.ReadTimeout,
		ProxyURL:        download.ProxyURL,
		MaxConnsPerHost: limit,
	})

	return &DownloadManager{
		repo:     repo,
		library:  library,
		notifier: notifier,
		download: download,
		config:   config,
		client:   client,
		fetcher: infrastructure.NewStreamFetcher(client,
			infrastructure.NewRateLimiter(download.RateLimit),
			download.BufferSize,
			policy.ReadTimeout),
		logs:   logs,
		sem:    make(chan struct{}, limit),
		active: make(map[string]*activeEntry),
	}
}

// ProcessEntry downloads a single entry, retrying transient failures up to
// MaxRetries times, and publishes the result to the library.
func (dm *DownloadManager) ProcessEntry(ctx context.Context, entry *domain.QueueEntry) error {
	select {
	case dm.sem <- struct{}{}:
		defer func() { <-dm.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	entryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dm.track(entry.ID, cancel)
	defer dm.untrack(entry.ID)

	// The entry may have been cancelled while waiting for a slot
	current, err := dm.repo.FindByID(entry.ID)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to reload entry: %w", err)
	}
	if current.Status != domain.QueuePending {
		return nil
	}
	entry = current

	log := dm.logs.Queue().With(zap.String("entry_id", entry.ID))
	log.Info("entry_started", zap.String("url", entry.URL))

	entry.MarkRunning()
	if err := dm.repo.Update(entry); err != nil {
		return fmt.Errorf("failed to update entry status: %w", err)
	}

	temp := dm.tempPath(entry)
	headers, err := entry.HeaderMap()
	if err != nil {
		return dm.fail(entry, temp, err)
	}

	var lastErr error
	for attempt := 0; attempt <= dm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Info("entry_retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", dm.config.MaxRetries))

			entry.MarkPaused(lastErr)
			entry.IncrementRetry()
			dm.repo.Update(entry)

			select {
			case <-time.After(dm.config.RetryDelay):
			case <-entryCtx.Done():
				return dm.interrupted(ctx, entry, temp)
			}

			entry.MarkRunning()
			dm.repo.Update(entry)
		}

		result, err := dm.fetch(entryCtx, entry, headers, temp)
		if err == nil {
			return dm.publish(entryCtx, entry, temp, result)
		}
		if entryCtx.Err() != nil {
			return dm.interrupted(ctx, entry, temp)
		}

		lastErr = err
		log.Warn("entry_attempt_failed", zap.Int("attempt", attempt), zap.Error(err))
		if domain.IsPermanent(err) {
			break
		}
	}

	return dm.fail(entry, temp, lastErr)
}

// fail marks the entry failed, drops its temp file and notifies
func (dm *DownloadManager) fail(entry *domain.QueueEntry, temp string, cause error) error {
	os.Remove(temp)
	entry.MarkFailed(cause)
	if err := dm.repo.Update(entry); err != nil {
		dm.logs.Queue().Error("failed to update entry status",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
	}
	dm.logs.LogError("queue entry failed",
		zap.String("entry_id", entry.ID),
		zap.String("url", entry.URL),
		zap.Error(cause))
	if dm.notifier != nil {
		dm.notifier.NotifyTransferFailed(entry.Title, cause)
	}
	return cause
}

func (dm *DownloadManager) fetch(ctx context.Context, entry *domain.QueueEntry, headers map[string]string, temp string) (*infrastructure.StreamResult, error) {
	lastPersist := time.Now()
	return dm.fetcher.Fetch(ctx, entry.URL, headers, temp, -1,
		func(total int64) {
			entry.BytesDone = 0
			entry.BytesTotal = total
			dm.repo.Update(entry)
		},
		func(done, total int64) {
			entry.BytesDone = done
			entry.BytesTotal = total
			if time.Since(lastPersist) >= progressPersistInterval {
				lastPersist = time.Now()
				dm.repo.Update(entry)
			}
		},
	)
}

// publish hands a finished temp file to the library. On failure the temp file is kept.
func (dm *DownloadManager) publish(ctx context.Context, entry *domain.QueueEntry, temp string, result *infrastructure.StreamResult) error {
	log := dm.logs.Queue().With(zap.String("entry_id", entry.ID))

	location, err := dm.library.Publish(ctx, temp, entry.Destination, mimeTypeFor(entry.Destination, result.ContentType))
	if err != nil {
		pubErr := &domain.PublishError{TempPath: temp, Err: err}
		entry.MarkFailed(pubErr)
		dm.repo.Update(entry)
		dm.logs.LogError("queue entry publish failed", zap.String("entry_id", entry.ID), zap.Error(pubErr))
		if dm.notifier != nil {
			dm.notifier.NotifyTransferFailed(entry.Title, pubErr)
		}
		return pubErr
	}
	if err := os.Remove(temp); err != nil {
		log.Warn("failed to remove temp file", zap.String("path", temp), zap.Error(err))
	}

	entry.MarkSucceeded(result.Written)
	if err := dm.repo.Update(entry); err != nil {
		log.Error("failed to update entry status", zap.Error(err))
	}
	log.Info("entry_completed", zap.String("location", location), zap.Int64("bytes", result.Written))
	if dm.notifier != nil {
		dm.notifier.NotifyTransferCompleted(entry.Title, location)
	}
	return nil
}

// interrupted handles a stopped transfer. An entry stopped by CancelEntry is left
// to its canceller; one stopped by shutdown goes back to pending so the next run
// picks it up.
func (dm *DownloadManager) interrupted(ctx context.Context, entry *domain.QueueEntry, temp string) error {
	os.Remove(temp)
	if ctx.Err() == nil {
		return context.Canceled
	}

	entry.Status = domain.QueuePending
	entry.BytesDone = 0
	entry.UpdatedAt = time.Now()
	if err := dm.repo.Update(entry); err != nil {
		dm.logs.Queue().Error("failed to requeue entry", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	return ctx.Err()
}

// CancelEntry stops an in-flight entry, waits for its worker to return and
// removes its partial file.
func (dm *DownloadManager) CancelEntry(ctx context.Context, entry *domain.QueueEntry) error {
	dm.mu.Lock()
	active, ok := dm.active[entry.ID]
	dm.mu.Unlock()
	if ok {
		active.cancel()
		select {
		case <-active.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := os.Remove(dm.tempPath(entry)); err != nil && !errors.Is(err, os.ErrNotExist) {
		dm.logs.Queue().Warn("failed to remove partial file", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	return nil
}

// RetryEntry puts a failed entry back into the pending state
func (dm *DownloadManager) RetryEntry(id string) error {
	entry, err := dm.repo.FindByID(id)
	if err != nil {
		return fmt.Errorf("entry not found: %w", err)
	}
	if entry.Status != domain.QueueFailed {
		return fmt.Errorf("entry is not in failed state: %s", entry.Status)
	}

	entry.ResetForRetry()
	if err := dm.repo.Update(entry); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	dm.logs.Queue().Info("entry_requeued", zap.String("entry_id", id))
	return nil
}

// ActiveCount returns the number of entries currently transferring
func (dm *DownloadManager) ActiveCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.active)
}

func (dm *DownloadManager) track(id string, cancel context.CancelFunc) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.active[id] = &activeEntry{cancel: cancel, done: make(chan struct{})}
}

func (dm *DownloadManager) untrack(id string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if active, ok := dm.active[id]; ok {
		close(active.done)
		delete(dm.active, id)
	}
}

func (dm *DownloadManager) tempPath(entry *domain.QueueEntry) string {
	return filepath.Join(dm.download.TempDir, "queue-"+entry.ID+"-"+domain.SanitizeFileName(entry.Destination))
}

// Close releases idle connections held by the manager's client
func (dm *DownloadManager) Close() {
	dm.client.CloseIdleConnections()
}

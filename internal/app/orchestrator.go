package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/internal/infrastructure"
	"github.com/yourusername/mediagrab/pkg/logger"
)

const eventBufferSize = 64

// rangeFetcher downloads one byte range into the shared output file
type rangeFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string, r domain.ByteRange, out io.WriterAt, onProgress func(n int64)) error
}

func newInfraRangeFetcher(client *http.Client, limiter *rate.Limiter, bufferSize int, readTimeout time.Duration) rangeFetcher {
	return infrastructure.NewRangeFetcher(client, limiter, bufferSize, readTimeout)
}

// Orchestrator runs one application-level transfer: probe, plan, parallel
// range fetch, and a single wholesale retry as a sequential stream.
type Orchestrator struct {
	headers    domain.HeaderSource
	limiter    *rate.Limiter
	bufferSize int
	proxyURL   string
	logs       *logger.LoggerAdapter

	newRangeFetcher func(client *http.Client, limiter *rate.Limiter, bufferSize int, readTimeout time.Duration) rangeFetcher
}

// NewOrchestrator creates a new transfer orchestrator. headers may be nil.
func NewOrchestrator(headers domain.HeaderSource, config *domain.DownloadConfig, logs *logger.LoggerAdapter) *Orchestrator {
	return &Orchestrator{
		headers:    headers,
		limiter:    infrastructure.NewRateLimiter(config.RateLimit),
		bufferSize: config.BufferSize,
		proxyURL:   config.ProxyURL,
		logs:       logs,

		newRangeFetcher: newInfraRangeFetcher,
	}
}

// Download starts the transfer in the background and returns its event stream.
// The channel is closed after the terminal complete or error event.
// Once ctx is done, events the consumer does not take are dropped.
func (o *Orchestrator) Download(ctx context.Context, req domain.TransferRequest) <-chan domain.Event {
	events := make(chan domain.Event, eventBufferSize)
	go func() {
		defer close(events)
		o.Run(ctx, req, func(e domain.Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
	}()
	return events
}

// Run executes the transfer synchronously, calling emit for every event.
// Exactly one terminal event is emitted; its error is also returned.
func (o *Orchestrator) Run(ctx context.Context, req domain.TransferRequest, emit func(domain.Event)) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if emit == nil {
		emit = func(domain.Event) {}
	}
	policy := req.Policy.Normalize()

	client := infrastructure.NewHTTPClient(infrastructure.HTTPClientConfig{
		ConnectTimeout:  policy.ConnectTimeout,
		ReadTimeout:     policy.ReadTimeout,
		ProxyURL:        o.proxyURL,
		MaxConnsPerHost: policy.MaxParts + 1,
	})
	defer client.CloseIdleConnections()

	t := &transfer{
		req:     req,
		policy:  policy,
		headers: o.requestHeaders(req),
		client:  client,
		emitter: newEmitter(req.ID, emit),
		orch:    o,
		log:     o.logs.Transfer().With(zap.String("transfer_id", req.ID)),
	}
	return t.run(ctx)
}

func (o *Orchestrator) requestHeaders(req domain.TransferRequest) map[string]string {
	headers := make(map[string]string)
	if o.headers != nil {
		for k, v := range o.headers.Headers(req.URL, req.Referer) {
			headers[k] = v
		}
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return headers
}

// transfer holds the per-run state of one Orchestrator.Run call
type transfer struct {
	req     domain.TransferRequest
	policy  domain.PartPolicy
	headers map[string]string
	client  *http.Client
	emitter *emitter
	orch    *Orchestrator
	log     *zap.Logger
}

func (t *transfer) run(ctx context.Context) error {
	t.log.Info("transfer_started",
		zap.String("url", t.req.URL),
		zap.String("destination", t.req.Destination))

	if err := os.MkdirAll(filepath.Dir(t.req.Destination), 0755); err != nil {
		return t.fail(fmt.Errorf("failed to create destination directory: %w", err))
	}

	t.emitter.state(domain.StateProbing)
	probe := infrastructure.NewProber(t.client, t.log).Probe(ctx, t.req.URL, t.headers)
	if err := ctx.Err(); err != nil {
		return t.fail(err)
	}
	if probe.TotalBytes > 0 {
		t.emitter.start(probe.TotalBytes)
	}

	if !probe.SupportsRanges || probe.TotalBytes <= 0 {
		t.emitter.state(domain.StateSingleStream)
		return t.finishSingleStream(ctx, probe)
	}

	t.emitter.state(domain.StatePlanning)
	ranges := domain.PlanRanges(probe.TotalBytes, t.policy)

	err := t.runParallel(ctx, ranges, probe.TotalBytes)
	if err == nil {
		return t.complete(probe.ContentType)
	}
	if ctx.Err() != nil {
		return t.fail(ctx.Err())
	}
	if errors.Is(err, domain.ErrSizeMismatch) {
		return t.fail(err)
	}

	t.log.Warn("parallel_failed_falling_back", zap.Error(err))
	t.emitter.state(domain.StateSingleStreamFallback)
	return t.finishSingleStream(ctx, probe)
}

// runParallel fetches every range concurrently into the preallocated destination
// and checks that the aggregate matches total.
func (t *transfer) runParallel(ctx context.Context, ranges []domain.ByteRange, total int64) error {
	out, err := os.OpenFile(t.req.Destination, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	if err := out.Truncate(total); err != nil {
		out.Close()
		return fmt.Errorf("failed to preallocate output file: %w", err)
	}

	t.emitter.state(domain.StateParallel)
	t.log.Info("parallel_started", zap.Int64("total", total), zap.Int("parts", len(ranges)))

	fetcher := t.orch.newRangeFetcher(t.client, t.orch.limiter, t.orch.bufferSize, t.policy.ReadTimeout)
	var aggregate atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.policy.MaxParts)
	for _, r := range ranges {
		r := r
		g.Go(func() error {
			return fetcher.Fetch(gctx, t.req.URL, t.headers, r, out, func(n int64) {
				t.emitter.progress(aggregate.Add(n), total)
			})
		})
	}
	err = g.Wait()
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	if err != nil {
		return err
	}

	t.emitter.state(domain.StateAggregating)
	if got := aggregate.Load(); got != total {
		return fmt.Errorf("aggregate %d of %d bytes: %w", got, total, domain.ErrSizeMismatch)
	}
	return nil
}

// finishSingleStream downloads sequentially and reaches a terminal event
func (t *transfer) finishSingleStream(ctx context.Context, probe domain.CapabilityResult) error {
	fetcher := infrastructure.NewStreamFetcher(t.client, t.orch.limiter, t.orch.bufferSize, t.policy.ReadTimeout)
	result, err := fetcher.Fetch(ctx, t.req.URL, t.headers, t.req.Destination, probe.TotalBytes,
		t.emitter.start,
		t.emitter.progress,
	)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return t.fail(err)
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = probe.ContentType
	}
	return t.complete(contentType)
}

func (t *transfer) complete(contentType string) error {
	t.emitter.state(domain.StateCompleted)
	t.log.Info("transfer_completed", zap.String("path", t.req.Destination))
	t.emitter.emit(domain.Event{
		Kind:        domain.EventComplete,
		Path:        t.req.Destination,
		ContentType: contentType,
	})
	return nil
}

// fail removes partial output and emits the error event
func (t *transfer) fail(err error) error {
	if rmErr := os.Remove(t.req.Destination); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		t.log.Warn("failed to remove partial output", zap.Error(rmErr))
	}
	t.emitter.state(domain.StateFailed)
	t.log.Error("transfer_failed", zap.Error(err))
	t.emitter.emit(domain.Event{Kind: domain.EventError, Err: err})
	return err
}

// emitter serializes events so progress is non-decreasing within a stage
// and the start event fires at most once.
type emitter struct {
	mu       sync.Mutex
	id       string
	send     func(domain.Event)
	started  bool
	lastDone int64
	current  domain.TransferState
}

func newEmitter(id string, send func(domain.Event)) *emitter {
	return &emitter{id: id, send: send, lastDone: -1, current: domain.StateIdle}
}

func (e *emitter) emit(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(ev)
}

func (e *emitter) emitLocked(ev domain.Event) {
	ev.TransferID = e.id
	if ev.Kind != domain.EventState {
		ev.State = e.current
	}
	e.send(ev)
}

func (e *emitter) start(total int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.emitLocked(domain.Event{Kind: domain.EventStart, Total: total})
}

func (e *emitter) progress(done, total int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if done <= e.lastDone {
		return
	}
	e.lastDone = done
	e.emitLocked(domain.Event{Kind: domain.EventProgress, Done: done, Total: total})
}

// state records a transition. Entering the fallback restarts the progress counter.
func (e *emitter) state(s domain.TransferState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s == domain.StateSingleStreamFallback {
		e.lastDone = -1
	}
	e.current = s
	e.emitLocked(domain.Event{Kind: domain.EventState, State: s})
}

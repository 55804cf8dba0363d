package app

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/pkg/logger"
)

const (
	defaultFileName = "video.mp4"
	statusRetention = time.Minute
)

// TransferRunner runs one application-level transfer
type TransferRunner interface {
	Run(ctx context.Context, req domain.TransferRequest, emit func(domain.Event)) error
}

// URLResolver follows redirects to a stable media URL
type URLResolver interface {
	Resolve(ctx context.Context, startURL, referer string) (string, error)
}

// RouterDeps holds the collaborators of a Router. Queue, Transcoder, Headers
// and Notifier are optional.
type RouterDeps struct {
	Runner     TransferRunner
	Resolver   URLResolver
	Queue      domain.HostQueue
	Library    domain.LibrarySink
	Transcoder domain.Transcoder
	Headers    domain.HeaderSource
	Notifier   domain.Notifier
	Status     *StatusStore
	Logs       *logger.LoggerAdapter
}

// RouteResult describes how a request was handled
type RouteResult struct {
	TransferID   string
	Decision     domain.RouteDecision
	QueueEntryID string // set when the host queue accepted the request
	Location     string // published location for direct and transcode paths
}

// Router chooses per request between the host queue and a direct transfer
type Router struct {
	deps     RouterDeps
	gated    *domain.HostMatcher
	config   *domain.RouterConfig
	download *domain.DownloadConfig
	wg       sync.WaitGroup
}

// NewRouter creates a new source router
func NewRouter(deps RouterDeps, config *domain.RouterConfig, download *domain.DownloadConfig) *Router {
	if deps.Status == nil {
		deps.Status = NewStatusStore()
	}
	return &Router{
		deps:     deps,
		gated:    domain.NewHostMatcher(config.CookieGatedHosts),
		config:   config,
		download: download,
	}
}

// Status returns the live status store
func (r *Router) Status() *StatusStore {
	return r.deps.Status
}

// SmartDownload validates the target and routes it in the background.
// The listener receives OnStart/OnProgress and exactly one of OnComplete/OnError
// when a direct transfer runs; a request accepted by the host queue reports nothing.
func (r *Router) SmartDownload(ctx context.Context, target, filename, referer string, listener domain.TransferListener) (string, error) {
	if domain.NormalizeMediaURL(target, r.gated) == "" {
		return "", fmt.Errorf("unsupported url %q", target)
	}
	id := uuid.New().String()
	r.deps.Status.Start(id, displayName(filename, target))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.route(ctx, id, target, filename, referer, listener)
	}()
	return id, nil
}

// Run routes a request synchronously
func (r *Router) Run(ctx context.Context, target, filename, referer string, listener domain.TransferListener) (*RouteResult, error) {
	if domain.NormalizeMediaURL(target, r.gated) == "" {
		return nil, fmt.Errorf("unsupported url %q", target)
	}
	id := uuid.New().String()
	r.deps.Status.Start(id, displayName(filename, target))
	return r.route(ctx, id, target, filename, referer, listener)
}

// Wait blocks until every background transfer started by SmartDownload returns
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) route(ctx context.Context, id, target, filename, referer string, listener domain.TransferListener) (*RouteResult, error) {
	target = domain.NormalizeMediaURL(target, r.gated)
	name := displayName(filename, target)
	log := r.deps.Logs.Transfer().With(zap.String("transfer_id", id))

	if domain.IsSegmentedStream(target) && r.deps.Transcoder != nil {
		log.Info("route_selected", zap.String("route", string(domain.RouteTranscode)), zap.String("url", target))
		return r.runTranscode(ctx, id, target, name, referer, listener)
	}

	if r.gated.MatchAny(target, referer) {
		log.Info("route_selected", zap.String("route", string(domain.RouteDirect)), zap.String("reason", "cookie_gated"))
		resolved, err := r.deps.Resolver.Resolve(ctx, target, referer)
		if err != nil {
			return r.finishFailed(id, name, listener, fmt.Errorf("failed to resolve %s: %w", target, err))
		}
		return r.runDirect(ctx, id, resolved, name, referer, listener)
	}

	resolved, err := r.deps.Resolver.Resolve(ctx, target, referer)
	if err != nil {
		if ctx.Err() != nil {
			return r.finishFailed(id, name, listener, ctx.Err())
		}
		log.Warn("resolve_failed_using_original", zap.Error(err))
		resolved = target
	}

	if r.deps.Queue == nil {
		return r.runDirect(ctx, id, resolved, name, referer, listener)
	}

	entryID, err := r.deps.Queue.Enqueue(ctx, domain.QueueRequest{
		URL:         resolved,
		Headers:     r.headersFor(resolved, referer),
		Destination: name,
		Title:       name,
	})
	if err != nil {
		log.Warn("enqueue_failed_going_direct", zap.Error(err))
		return r.runDirect(ctx, id, resolved, name, referer, listener)
	}
	log.Info("route_selected",
		zap.String("route", string(domain.RouteHostQueue)),
		zap.String("entry_id", entryID))

	status, err := r.watchQueue(ctx, entryID)
	if err != nil {
		return r.finishFailed(id, name, listener, err)
	}
	if status == domain.QueueFailed {
		log.Warn("queue_fast_fail", zap.String("entry_id", entryID))
		if err := r.deps.Queue.Cancel(ctx, entryID); err != nil {
			log.Warn("queue_cancel_failed", zap.String("entry_id", entryID), zap.Error(err))
		}
		return r.runDirect(ctx, id, resolved, name, referer, listener)
	}

	r.deps.Status.Clear(id)
	if r.deps.Notifier != nil {
		r.deps.Notifier.NotifyTransferQueued(name)
	}
	return &RouteResult{TransferID: id, Decision: domain.RouteHostQueue, QueueEntryID: entryID}, nil
}

// watchQueue polls an entry for the fast-fail window. It returns QueueFailed as soon
// as the entry fails or disappears, QueueSucceeded as soon as it finishes, and
// otherwise the last status seen when the window closes.
func (r *Router) watchQueue(ctx context.Context, entryID string) (domain.QueueStatus, error) {
	window := r.config.FastFailWindow
	if window <= 0 {
		window = domain.DefaultFastFailWindow
	}
	interval := r.config.PollInterval
	if interval <= 0 {
		interval = domain.DefaultPollInterval
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := domain.QueuePending
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return last, nil
		case <-ticker.C:
			status, err := r.deps.Queue.Status(ctx, entryID)
			if errors.Is(err, domain.ErrEntryNotFound) {
				return domain.QueueFailed, nil
			}
			if err != nil {
				continue
			}
			last = status
			if status == domain.QueueFailed || status == domain.QueueSucceeded {
				return status, nil
			}
		}
	}
}

// runDirect downloads into the temp dir, publishes to the library and removes the temp file
func (r *Router) runDirect(ctx context.Context, id, target, name, referer string, listener domain.TransferListener) (*RouteResult, error) {
	temp := filepath.Join(r.download.TempDir, id+"-"+name)

	var completed domain.Event
	err := r.deps.Runner.Run(ctx, domain.TransferRequest{
		ID:          id,
		URL:         target,
		Destination: temp,
		Referer:     referer,
		Title:       name,
		Policy:      r.download.Policy(),
	}, func(e domain.Event) {
		switch e.Kind {
		case domain.EventStart:
			r.deps.Status.Update(id, 0, e.Total, e.State)
			domain.Dispatch(listener, e)
		case domain.EventProgress:
			r.deps.Status.Update(id, e.Done, e.Total, e.State)
			domain.Dispatch(listener, e)
		case domain.EventState:
			r.deps.Status.SetState(id, e.State)
		case domain.EventComplete:
			completed = e
		}
	})
	if err != nil {
		return r.finishFailed(id, name, listener, err)
	}

	location, err := r.publish(ctx, id, temp, name, completed.ContentType)
	if err != nil {
		return r.finishFailed(id, name, listener, err)
	}
	return r.finishCompleted(id, name, domain.RouteDirect, location, listener), nil
}

// runTranscode remuxes a segmented stream into the temp dir and publishes the result
func (r *Router) runTranscode(ctx context.Context, id, target, name, referer string, listener domain.TransferListener) (*RouteResult, error) {
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ".mp4"
	temp := filepath.Join(r.download.TempDir, id+"-"+name)

	r.deps.Status.SetState(id, domain.StateSingleStream)
	domain.Dispatch(listener, domain.Event{Kind: domain.EventStart, TransferID: id, Total: -1})

	if err := r.deps.Transcoder.Remux(ctx, target, r.headersFor(target, referer), temp); err != nil {
		os.Remove(temp)
		return r.finishFailed(id, name, listener, err)
	}

	location, err := r.publish(ctx, id, temp, name, "video/mp4")
	if err != nil {
		return r.finishFailed(id, name, listener, err)
	}
	return r.finishCompleted(id, name, domain.RouteTranscode, location, listener), nil
}

// publish hands temp to the library. On failure the temp file is kept.
func (r *Router) publish(ctx context.Context, id, temp, name, contentType string) (string, error) {
	location, err := r.deps.Library.Publish(ctx, temp, name, mimeTypeFor(name, contentType))
	if err != nil {
		return "", &domain.PublishError{TempPath: temp, Err: err}
	}
	if err := os.Remove(temp); err != nil {
		r.deps.Logs.Transfer().Warn("failed to remove temp file",
			zap.String("transfer_id", id),
			zap.String("path", temp),
			zap.Error(err))
	}
	return location, nil
}

func (r *Router) finishCompleted(id, name string, decision domain.RouteDecision, location string, listener domain.TransferListener) *RouteResult {
	r.deps.Status.SetState(id, domain.StateCompleted)
	r.expireStatus(id)
	r.deps.Logs.Transfer().Info("transfer_published",
		zap.String("transfer_id", id),
		zap.String("location", location))
	if listener != nil {
		listener.OnComplete(location)
	}
	if r.deps.Notifier != nil {
		r.deps.Notifier.NotifyTransferCompleted(name, location)
	}
	return &RouteResult{TransferID: id, Decision: decision, Location: location}
}

func (r *Router) finishFailed(id, name string, listener domain.TransferListener, err error) (*RouteResult, error) {
	r.deps.Status.SetState(id, domain.StateFailed)
	r.expireStatus(id)
	r.deps.Logs.LogError("transfer failed", zap.String("transfer_id", id), zap.Error(err))
	if listener != nil {
		listener.OnError(err)
	}
	if r.deps.Notifier != nil {
		r.deps.Notifier.NotifyTransferFailed(name, err)
	}
	return nil, err
}

func (r *Router) expireStatus(id string) {
	time.AfterFunc(statusRetention, func() { r.deps.Status.Clear(id) })
}

func (r *Router) headersFor(target, referer string) map[string]string {
	if r.deps.Headers == nil {
		return nil
	}
	return r.deps.Headers.Headers(target, referer)
}

// displayName picks a safe file name from the requested name or the URL path
func displayName(filename, target string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		if u, err := url.Parse(target); err == nil {
			name = path.Base(u.Path)
		}
	}
	if name == "" || name == "." || name == "/" {
		return defaultFileName
	}
	name = domain.SanitizeFileName(name)
	if filepath.Ext(name) == "" {
		name += ".mp4"
	}
	return name
}

// mimeTypeFor prefers a media content type from the server, then the file extension
func mimeTypeFor(name, contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if strings.HasPrefix(mediaType, "video/") || strings.HasPrefix(mediaType, "audio/") {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return "video/mp4"
}

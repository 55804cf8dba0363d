package domain

import "context"

// HeaderSource produces the request headers for a URL.
// It is called before every request and must not mutate shared state.
type HeaderSource interface {
	Headers(targetURL, referer string) map[string]string
}

// HeaderSourceFunc adapts a function to HeaderSource
type HeaderSourceFunc func(targetURL, referer string) map[string]string

// Headers calls f(targetURL, referer)
func (f HeaderSourceFunc) Headers(targetURL, referer string) map[string]string {
	return f(targetURL, referer)
}

// HostQueue is a download service that runs transfers outside the engine
type HostQueue interface {
	// Enqueue submits a request and returns the entry ID
	Enqueue(ctx context.Context, req QueueRequest) (string, error)

	// Status returns the current status of an entry
	Status(ctx context.Context, id string) (QueueStatus, error)

	// Cancel stops and removes an entry
	Cancel(ctx context.Context, id string) error
}

// LibrarySink publishes a finished file to the user's media library
type LibrarySink interface {
	// Publish copies src into the library and returns the visible location
	Publish(ctx context.Context, src, displayName, mimeType string) (string, error)
}

// Transcoder remuxes a segmented stream into a single file
type Transcoder interface {
	Remux(ctx context.Context, playlistURL string, headers map[string]string, out string) error
}

// Notifier sends desktop notifications about transfer outcomes
type Notifier interface {
	NotifyTransferQueued(title string)
	NotifyTransferCompleted(title, location string)
	NotifyTransferFailed(title string, err error)
}

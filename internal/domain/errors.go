package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrShortRead        = errors.New("short read")
	ErrReadTimeout      = errors.New("read timed out")
	ErrRangeOverflow    = errors.New("server sent more bytes than requested")
	ErrSizeMismatch     = errors.New("written size does not match expected size")
	ErrRangeMismatch    = errors.New("server answered a different range")
	ErrRedirectLoop     = errors.New("redirect loop detected")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrMissingLocation  = errors.New("redirect without location header")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrEntryNotFound    = errors.New("queue entry not found")
)

// HTTPStatusError reports a non-success HTTP response
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Range      string
}

func (e *HTTPStatusError) Error() string {
	if e.Range != "" {
		return fmt.Sprintf("http %d for %s (range %s)", e.StatusCode, e.URL, e.Range)
	}
	return fmt.Sprintf("http %d for %s", e.StatusCode, e.URL)
}

// RedirectError reports why a redirect chain could not be resolved
type RedirectError struct {
	URL        string
	Hops       int
	StatusCode int
	Err        error
}

func (e *RedirectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("resolve %s after %d hops: %v (status %d)", e.URL, e.Hops, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("resolve %s after %d hops: %v", e.URL, e.Hops, e.Err)
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}

// PublishError reports a failed hand-off to the media library.
// The finished temp file is kept at TempPath.
type PublishError struct {
	TempPath string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.TempPath, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether retrying the same request is pointless.
// Client errors are permanent except request timeout and rate limiting.
func IsPermanent(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	code := statusErr.StatusCode
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

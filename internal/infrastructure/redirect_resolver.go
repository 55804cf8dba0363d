package infrastructure

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/domain"
)

// RedirectResolver follows redirects by hand so headers and cookies can be
// recomputed for every hop
type RedirectResolver struct {
	client  *http.Client
	headers domain.HeaderSource
	maxHops int
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedirectResolver creates a resolver. The client's redirect policy is replaced.
func NewRedirectResolver(client *http.Client, headers domain.HeaderSource, maxHops int, timeout time.Duration, logger *zap.Logger) *RedirectResolver {
	if maxHops <= 0 {
		maxHops = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectResolver{
		client:  WithoutRedirects(client),
		headers: headers,
		maxHops: maxHops,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve returns the URL that finally answers with a 2xx status
func (r *RedirectResolver) Resolve(ctx context.Context, startURL, referer string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	current := startURL
	seen := make(map[string]bool)

	for hop := 0; hop <= r.maxHops; hop++ {
		if seen[current] {
			return "", &domain.RedirectError{URL: startURL, Hops: hop, Err: domain.ErrRedirectLoop}
		}
		seen[current] = true

		next, final, err := r.step(ctx, current, referer, hop)
		if err != nil {
			return "", err
		}
		if final {
			r.logger.Debug("Redirect chain resolved",
				zap.String("url", startURL),
				zap.String("final_url", next),
				zap.Int("hops", hop))
			return next, nil
		}
		current = next
	}

	return "", &domain.RedirectError{URL: startURL, Hops: r.maxHops, Err: domain.ErrTooManyRedirects}
}

// step performs one request. It returns the next URL to visit, or the final
// URL with final set when the server answered 2xx.
func (r *RedirectResolver) step(ctx context.Context, current, referer string, hop int) (string, bool, error) {
	var headers map[string]string
	if r.headers != nil {
		headers = r.headers.Headers(current, referer)
	}
	req, err := newRequest(ctx, current, headers)
	if err != nil {
		return "", false, &domain.RedirectError{URL: current, Hops: hop, Err: err}
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", false, &domain.RedirectError{URL: current, Hops: hop, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return "", false, &domain.RedirectError{URL: current, Hops: hop, StatusCode: resp.StatusCode, Err: domain.ErrMissingLocation}
		}
		next, err := resolveLocation(current, loc)
		if err != nil {
			return "", false, &domain.RedirectError{URL: current, Hops: hop, StatusCode: resp.StatusCode, Err: err}
		}
		return next, false, nil
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		io.CopyN(io.Discard, resp.Body, 1)
		return resp.Request.URL.String(), true, nil
	}

	return "", false, &domain.RedirectError{URL: current, Hops: hop, StatusCode: resp.StatusCode, Err: domain.ErrUnexpectedStatus}
}

// resolveLocation resolves a Location header against the URL that returned it
func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}

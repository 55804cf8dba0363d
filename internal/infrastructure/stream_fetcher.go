package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/yourusername/mediagrab/internal/domain"
)

// StreamResult describes a finished sequential transfer
type StreamResult struct {
	Written     int64
	Total       int64 // negotiated length, -1 when the server did not say
	ContentType string
}

// StreamFetcher downloads a resource with one sequential request
type StreamFetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	bufferSize  int
	readTimeout time.Duration
}

// NewStreamFetcher creates a new single-stream fetcher. limiter may be nil.
func NewStreamFetcher(client *http.Client, limiter *rate.Limiter, bufferSize int, readTimeout time.Duration) *StreamFetcher {
	if readTimeout <= 0 {
		readTimeout = domain.DefaultReadTimeout
	}
	return &StreamFetcher{
		client:      client,
		limiter:     limiter,
		bufferSize:  bufferSize,
		readTimeout: readTimeout,
	}
}

// Fetch truncates dest and writes the full response body into it.
// expectedTotal is used to verify the result when the response carries no
// Content-Length; pass -1 when unknown. onStart fires once the response
// headers arrive, onProgress reports cumulative bytes.
func (f *StreamFetcher) Fetch(
	ctx context.Context,
	rawURL string,
	headers map[string]string,
	dest string,
	expectedTotal int64,
	onStart func(total int64),
	onProgress func(done, total int64),
) (*StreamResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := newRequest(ctx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	total := resp.ContentLength
	if total < 0 && expectedTotal > 0 {
		total = expectedTotal
	}
	if onStart != nil {
		onStart(total)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	body := newIdleTimeoutReader(resp.Body, f.readTimeout, cancel)
	defer body.Stop()

	dst := &rateLimitedWriter{w: file, limiter: f.limiter, ctx: ctx}
	var done int64
	written, copyErr := copyChunks(ctx, dst, body, f.bufferSize, -1, func(n int64) {
		done += n
		if onProgress != nil {
			onProgress(done, total)
		}
	})

	closeErr := multierr.Combine(file.Sync(), file.Close())
	if copyErr = body.wrap(copyErr); copyErr != nil {
		return nil, fmt.Errorf("stream failed after %d bytes: %w", written, copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize output file: %w", closeErr)
	}

	if total >= 0 && written != total {
		if written < total {
			return nil, fmt.Errorf("got %d of %d bytes: %w", written, total, domain.ErrShortRead)
		}
		return nil, fmt.Errorf("got %d bytes, expected %d: %w", written, total, domain.ErrSizeMismatch)
	}

	return &StreamResult{
		Written:     written,
		Total:       total,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

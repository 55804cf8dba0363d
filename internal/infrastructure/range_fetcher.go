package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourusername/mediagrab/internal/domain"
)

// RangeFetcher downloads one byte range into a shared output file
type RangeFetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	bufferSize  int
	readTimeout time.Duration
}

// NewRangeFetcher creates a new range fetcher. limiter may be nil.
func NewRangeFetcher(client *http.Client, limiter *rate.Limiter, bufferSize int, readTimeout time.Duration) *RangeFetcher {
	if readTimeout <= 0 {
		readTimeout = domain.DefaultReadTimeout
	}
	return &RangeFetcher{
		client:      client,
		limiter:     limiter,
		bufferSize:  bufferSize,
		readTimeout: readTimeout,
	}
}

// Fetch requests r and writes the body at r.Start in out.
// Only bytes inside r are ever written. onProgress receives byte deltas.
func (f *RangeFetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string, r domain.ByteRange, out io.WriterAt, onProgress func(n int64)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := newRequest(ctx, rawURL, headers)
	if err != nil {
		return fmt.Errorf("failed to create range request: %w", err)
	}
	req.Header.Set("Range", r.Header())

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("range %s request failed: %w", r.Header(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL, Range: r.Header()}
	}
	if resp.StatusCode == http.StatusPartialContent {
		if cr := resp.Header.Get("Content-Range"); cr != "" {
			if start, ok := parseContentRangeStart(cr); !ok || start != r.Start {
				return fmt.Errorf("range %s answered with %q: %w", r.Header(), cr, domain.ErrRangeMismatch)
			}
		}
	}

	body := newIdleTimeoutReader(resp.Body, f.readTimeout, cancel)
	defer body.Stop()

	var dst io.Writer = io.NewOffsetWriter(out, r.Start)
	if f.limiter != nil {
		dst = &rateLimitedWriter{w: dst, limiter: f.limiter, ctx: ctx}
	}

	written, err := copyChunks(ctx, dst, body, f.bufferSize, r.Length(), onProgress)
	if err = body.wrap(err); err != nil {
		return fmt.Errorf("range %s failed after %d bytes: %w", r.Header(), written, err)
	}
	if written < r.Length() {
		return fmt.Errorf("range %s: got %d of %d bytes: %w", r.Header(), written, r.Length(), domain.ErrShortRead)
	}

	// A server that ignored the range keeps sending past the end
	var extra [1]byte
	if n, _ := body.Read(extra[:]); n > 0 {
		return fmt.Errorf("range %s: %w", r.Header(), domain.ErrRangeOverflow)
	}
	return nil
}

// parseContentRangeStart returns the first byte position of "bytes a-b/total"
func parseContentRangeStart(header string) (int64, bool) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(strings.ToLower(header), "bytes ") {
		return 0, false
	}
	spec := strings.TrimSpace(header[len("bytes "):])
	dash := strings.IndexByte(spec, '-')
	if dash <= 0 {
		return 0, false
	}
	start, err := strconv.ParseInt(spec[:dash], 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

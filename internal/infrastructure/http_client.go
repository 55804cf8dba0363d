package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/yourusername/mediagrab/internal/domain"
)

// HTTPClientConfig contains transport settings for transfer requests
type HTTPClientConfig struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	ProxyURL        string
	MaxConnsPerHost int
}

// NewHTTPClient creates an HTTP client tuned for media transfers.
// There is no overall request timeout: long bodies are bounded by the
// idle read timeout instead.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = domain.DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = domain.DefaultReadTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{Transport: transport}
}

// WithoutRedirects returns a copy of client that hands 3xx responses back to the caller
func WithoutRedirects(client *http.Client) *http.Client {
	c := *client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

// newRequest builds a GET request carrying the given headers
func newRequest(ctx context.Context, rawURL string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

// mergeHeaders returns base overlaid with overrides
func mergeHeaders(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// idleTimeoutReader cancels the request when no data arrives for the timeout
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleTimeoutReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutReader {
	ir := &idleTimeoutReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		cancel()
	})
	return ir
}

func (ir *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.fired.Load() {
		return n, domain.ErrReadTimeout
	}
	ir.timer.Reset(ir.timeout)
	return n, err
}

func (ir *idleTimeoutReader) Stop() {
	ir.timer.Stop()
}

// wrap attributes err to the idle timeout when the timer fired
func (ir *idleTimeoutReader) wrap(err error) error {
	if err != nil && ir.fired.Load() && !errors.Is(err, domain.ErrReadTimeout) {
		return fmt.Errorf("%w: %v", domain.ErrReadTimeout, err)
	}
	return err
}

package infrastructure

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/domain"
)

// probeDrainBytes bounds how much of a probe body is read before closing
const probeDrainBytes = 64

// Prober checks whether a URL can be fetched in byte ranges
type Prober struct {
	client *http.Client
	logger *zap.Logger
}

// NewProber creates a new capability prober
func NewProber(client *http.Client, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{client: client, logger: logger}
}

// Probe sends a one-byte range request and inspects the response.
// It never fails: any error degrades to "no range support, unknown size".
func (p *Prober) Probe(ctx context.Context, rawURL string, headers map[string]string) domain.CapabilityResult {
	unknown := domain.CapabilityResult{SupportsRanges: false, TotalBytes: -1}

	req, err := newRequest(ctx, rawURL, headers)
	if err != nil {
		p.logger.Debug("Probe request invalid", zap.String("url", rawURL), zap.Error(err))
		return unknown
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Probe failed", zap.String("url", rawURL), zap.Error(err))
		return unknown
	}
	defer resp.Body.Close()
	io.CopyN(io.Discard, resp.Body, probeDrainBytes)

	result := domain.CapabilityResult{
		TotalBytes:  -1,
		ContentType: resp.Header.Get("Content-Type"),
	}
	acceptsBytes := strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes")

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			result.SupportsRanges = true
			result.TotalBytes = total
		} else {
			result.SupportsRanges = acceptsBytes
		}
	case http.StatusOK:
		result.SupportsRanges = acceptsBytes
		if resp.ContentLength >= 0 {
			result.TotalBytes = resp.ContentLength
		}
	default:
		p.logger.Debug("Probe returned unexpected status",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		return unknown
	}

	// Ranges are useless without a known total to plan against
	if result.TotalBytes <= 0 {
		result.SupportsRanges = false
	}

	p.logger.Debug("Probe completed",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Bool("supports_ranges", result.SupportsRanges),
		zap.Int64("total_bytes", result.TotalBytes))

	return result
}

// parseContentRangeTotal extracts the complete length from a Content-Range header
// such as "bytes 0-0/12345". An unknown length ("*") is not accepted.
func parseContentRangeTotal(header string) (int64, bool) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(strings.ToLower(header), "bytes ") {
		return 0, false
	}
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(header[idx+1:]), 10, 64)
	if err != nil || total <= 0 {
		return 0, false
	}
	return total, true
}

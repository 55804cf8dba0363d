package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/yourusername/mediagrab/internal/domain"
)

const (
	defaultBufferSize = 256 * 1024
	rateChunkSize     = 16 * 1024
)

// NewRateLimiter creates a shared bandwidth limiter, or nil when bytesPerSecond is not positive
func NewRateLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(bytesPerSecond)
	if burst < rateChunkSize {
		burst = rateChunkSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// rateLimitedWriter wraps an io.Writer with rate limiting
type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

func (rl *rateLimitedWriter) Write(p []byte) (int, error) {
	if rl.limiter == nil {
		return rl.w.Write(p)
	}

	written := 0
	for written < len(p) {
		chunk := rateChunkSize
		if chunk > len(p)-written {
			chunk = len(p) - written
		}
		if err := rl.limiter.WaitN(rl.ctx, chunk); err != nil {
			return written, err
		}
		n, err := rl.w.Write(p[written : written+chunk])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// copyChunks copies src into dst one buffer at a time, calling onChunk after
// every successful write. It stops at EOF or after limit bytes when limit >= 0.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, bufSize int, limit int64, onChunk func(n int64)) (int64, error) {
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	if limit >= 0 {
		src = io.LimitReader(src, limit)
	}
	buf := make([]byte, bufSize)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
				if onChunk != nil {
					onChunk(int64(nw))
				}
			}
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			if errors.Is(rerr, io.ErrUnexpectedEOF) {
				return written, fmt.Errorf("%w: %v", domain.ErrShortRead, rerr)
			}
			return written, rerr
		}
	}
}

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/yourusername/mediagrab/internal/domain"
)

var _ domain.TransferListener = (*progressListener)(nil)

// progressListener renders transfer callbacks as a terminal progress bar
type progressListener struct {
	out   io.Writer
	title string

	mu  sync.Mutex
	bar *progressbar.ProgressBar
	err error
}

func newProgressListener(out io.Writer, title string) *progressListener {
	return &progressListener{out: out, title: title}
}

func (p *progressListener) OnStart(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.ChangeMax64(total)
		return
	}
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(p.title),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
	)
}

func (p *progressListener) OnProgress(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	if total > 0 && p.bar.GetMax64() != total {
		p.bar.ChangeMax64(total)
	}
	p.bar.Set64(done)
}

func (p *progressListener) OnComplete(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
	}
}

func (p *progressListener) OnError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	if p.bar != nil {
		p.bar.Exit()
		fmt.Fprintln(p.out)
	}
}

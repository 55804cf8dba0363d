package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/yourusername/mediagrab/internal/domain"
)

func testData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*31 + i/251) % 256)
	}
	return data
}

// testPolicy splits 1 MiB into four 256 KiB ranges
func testPolicy() domain.PartPolicy {
	return domain.PartPolicy{
		MaxParts:     4,
		MinPartBytes: 64 * 1024,
		MaxPartBytes: 256 * 1024,
		ReadTimeout:  5 * time.Second,
	}
}

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(nil, &domain.DownloadConfig{BufferSize: 16 * 1024}, nil)
}

// rangeFixtureServer serves data with full byte-range support
func rangeFixtureServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// noRangeServer always answers 200 with the whole body
func noRangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// brokenRangeServer advertises ranges but cuts every range past offset 0 in half.
// Requests without a Range header get the full body unless plainStatus is set.
func brokenRangeServer(t *testing.T, data []byte, plainStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		var start, end int
		if rng != "" {
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err == nil && start > 0 {
				length := end - start + 1
				w.Header().Set("Content-Length", strconv.Itoa(length))
				w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
				w.WriteHeader(http.StatusPartialContent)
				w.Write(data[start : start+length/2])
				return
			}
		}
		if rng == "" && plainStatus != 0 {
			w.WriteHeader(plainStatus)
			return
		}
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) add(e domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofKind(kind domain.EventKind) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) states() []domain.TransferState {
	var out []domain.TransferState
	for _, e := range l.ofKind(domain.EventState) {
		out = append(out, e.State)
	}
	return out
}

// progressMonotonicPerStage checks progress never decreases between state changes
func (l *eventLog) progressMonotonicPerStage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	last := int64(-1)
	for _, e := range l.events {
		switch e.Kind {
		case domain.EventState:
			if e.State == domain.StateSingleStreamFallback {
				last = -1
			}
		case domain.EventProgress:
			if e.Done < last {
				return false
			}
			last = e.Done
		}
	}
	return true
}

func TestOrchestrator_ParallelPath(t *testing.T) {
	data := testData(1024 * 1024)
	srv := rangeFixtureServer(t, data)
	dest := filepath.Join(t.TempDir(), "out", "clip.mp4")

	log := &eventLog{}
	err := newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		ID:          "t1",
		URL:         srv.URL,
		Destination: dest,
		Policy:      testPolicy(),
	}, log.add)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	starts := log.ofKind(domain.EventStart)
	require.Len(t, starts, 1)
	assert.Equal(t, int64(len(data)), starts[0].Total)

	assert.Equal(t, []domain.TransferState{
		domain.StateProbing,
		domain.StatePlanning,
		domain.StateParallel,
		domain.StateAggregating,
		domain.StateCompleted,
	}, log.states())

	progress := log.ofKind(domain.EventProgress)
	require.NotEmpty(t, progress)
	assert.Equal(t, int64(len(data)), progress[len(progress)-1].Done)
	assert.True(t, log.progressMonotonicPerStage())

	complete := log.ofKind(domain.EventComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, dest, complete[0].Path)
	assert.Equal(t, "video/mp4", complete[0].ContentType)
	assert.Equal(t, "t1", complete[0].TransferID)
	assert.Empty(t, log.ofKind(domain.EventError))
}

func TestOrchestrator_SingleStreamWhenRangesIgnored(t *testing.T) {
	data := testData(5_000_000)
	srv := noRangeServer(t, data)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	log := &eventLog{}
	err := newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		URL:         srv.URL,
		Destination: dest,
		Policy:      testPolicy(),
	}, log.add)
	require.NoError(t, err)

	starts := log.ofKind(domain.EventStart)
	require.Len(t, starts, 1)
	assert.Equal(t, int64(5_000_000), starts[0].Total)

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), info.Size())

	states := log.states()
	assert.Contains(t, states, domain.StateSingleStream)
	assert.NotContains(t, states, domain.StatePlanning)
	assert.NotContains(t, states, domain.StateParallel)
}

func TestOrchestrator_ParallelAndSingleStreamAreByteIdentical(t *testing.T) {
	data := testData(700_000)
	parallelDest := filepath.Join(t.TempDir(), "parallel.mp4")
	singleDest := filepath.Join(t.TempDir(), "single.mp4")

	require.NoError(t, newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		URL: rangeFixtureServer(t, data).URL, Destination: parallelDest, Policy: testPolicy(),
	}, nil))
	require.NoError(t, newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		URL: noRangeServer(t, data).URL, Destination: singleDest, Policy: testPolicy(),
	}, nil))

	a, err := os.ReadFile(parallelDest)
	require.NoError(t, err)
	b, err := os.ReadFile(singleDest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
	assert.True(t, bytes.Equal(data, a))
}

func TestOrchestrator_FallbackAfterRangeFailure(t *testing.T) {
	data := testData(1024 * 1024)
	srv := brokenRangeServer(t, data, 0)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	log := &eventLog{}
	err := newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		URL:         srv.URL,
		Destination: dest,
		Policy:      testPolicy(),
	}, log.add)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "fallback output must match the source exactly")

	states := log.states()
	assert.Contains(t, states, domain.StateParallel)
	assert.Contains(t, states, domain.StateSingleStreamFallback)
	assert.NotContains(t, states, domain.StateAggregating)
	assert.Equal(t, domain.StateCompleted, states[len(states)-1])

	assert.Len(t, log.ofKind(domain.EventStart), 1)
	assert.Len(t, log.ofKind(domain.EventComplete), 1)
	assert.True(t, log.progressMonotonicPerStage())
}

func TestOrchestrator_FallbackFailureDeletesOutput(t *testing.T) {
	data := testData(1024 * 1024)
	srv := brokenRangeServer(t, data, http.StatusInternalServerError)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	log := &eventLog{}
	err := newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		URL:         srv.URL,
		Destination: dest,
		Policy:      testPolicy(),
	}, log.add)
	require.Error(t, err)

	var statusErr *domain.HTTPStatusError
	assert.True(t, errors.As(err, &statusErr))

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	assert.Len(t, log.ofKind(domain.EventError), 1)
	assert.Empty(t, log.ofKind(domain.EventComplete))
	states := log.states()
	assert.Equal(t, domain.StateFailed, states[len(states)-1])
}

func TestOrchestrator_CancellationDeletesOutput(t *testing.T) {
	data := testData(1024 * 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "bytes=0-0" {
			http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		for i := 0; i < len(data); i += 1024 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			w.Write(data[i : i+1024])
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := &eventLog{}
	err := newTestOrchestrator().Run(ctx, domain.TransferRequest{
		URL:         srv.URL,
		Destination: dest,
		Policy:      domain.PartPolicy{MaxParts: 1, MinPartBytes: 2 * 1024 * 1024, ReadTimeout: 5 * time.Second},
	}, func(e domain.Event) {
		log.add(e)
		if e.Kind == domain.EventProgress {
			cancel()
		}
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	assert.Len(t, log.ofKind(domain.EventError), 1)
}

func TestOrchestrator_UnknownLengthStream(t *testing.T) {
	data := testData(300_000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < len(data); i += 50_000 {
			w.Write(data[i : i+50_000])
			w.(http.Flusher).Flush()
		}
	}))
	defer srv.Close()
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	log := &eventLog{}
	require.NoError(t, newTestOrchestrator().Run(context.Background(), domain.TransferRequest{
		URL: srv.URL, Destination: dest, Policy: testPolicy(),
	}, log.add))

	starts := log.ofKind(domain.EventStart)
	require.Len(t, starts, 1)
	assert.Equal(t, int64(-1), starts[0].Total)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestOrchestrator_DownloadStreamCloses(t *testing.T) {
	data := testData(512 * 1024)
	srv := rangeFixtureServer(t, data)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	var starts, completes int
	var lastDone int64
	listener := domain.ListenerFuncs{
		Start:    func(total int64) { starts++ },
		Progress: func(done, total int64) { lastDone = done },
		Complete: func(path string) { completes++ },
	}

	var last domain.Event
	for e := range newTestOrchestrator().Download(context.Background(), domain.TransferRequest{
		URL: srv.URL, Destination: dest, Policy: testPolicy(),
	}) {
		domain.Dispatch(listener, e)
		last = e
	}

	assert.True(t, last.IsTerminal())
	assert.Equal(t, domain.EventComplete, last.Kind)
	assert.NotEmpty(t, last.TransferID)
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, completes)
	assert.Equal(t, int64(len(data)), lastDone)
}

func TestOrchestrator_HeaderOverrides(t *testing.T) {
	data := testData(1000)
	var mu sync.Mutex
	var referers, cookies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		referers = append(referers, r.Header.Get("Referer"))
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
	}))
	defer srv.Close()

	source := domain.HeaderSourceFunc(func(target, referer string) map[string]string {
		return map[string]string{"Referer": referer, "Cookie": "from=source"}
	})
	orch := NewOrchestrator(source, &domain.DownloadConfig{}, nil)
	err := orch.Run(context.Background(), domain.TransferRequest{
		URL:         srv.URL,
		Referer:     "https://example.com/page",
		Destination: filepath.Join(t.TempDir(), "clip.mp4"),
		Headers:     map[string]string{"Cookie": "from=request"},
	}, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, referers)
	for i := range referers {
		assert.Equal(t, "https://example.com/page", referers[i])
		assert.Equal(t, "from=request", cookies[i])
	}
}

// shortCountFetcher writes every range in full but reports one byte less for the first range
type shortCountFetcher struct {
	data []byte
}

func (f *shortCountFetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string, r domain.ByteRange, out io.WriterAt, onProgress func(n int64)) error {
	if _, err := out.WriteAt(f.data[r.Start:r.End+1], r.Start); err != nil {
		return err
	}
	n := r.Length()
	if r.Start == 0 {
		n--
	}
	onProgress(n)
	return nil
}

func TestOrchestrator_AggregateMismatchFails(t *testing.T) {
	data := testData(1024 * 1024)
	srv := rangeFixtureServer(t, data)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	orch := newTestOrchestrator()
	orch.newRangeFetcher = func(*http.Client, *rate.Limiter, int, time.Duration) rangeFetcher {
		return &shortCountFetcher{data: data}
	}

	log := &eventLog{}
	err := orch.Run(context.Background(), domain.TransferRequest{
		URL:         srv.URL,
		Destination: dest,
		Policy:      testPolicy(),
	}, log.add)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSizeMismatch))

	assert.Len(t, log.ofKind(domain.EventError), 1)
	assert.Empty(t, log.ofKind(domain.EventComplete))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))

	states := log.states()
	assert.Contains(t, states, domain.StateAggregating)
	assert.NotContains(t, states, domain.StateSingleStreamFallback)
	assert.Equal(t, domain.StateFailed, states[len(states)-1])
}

func TestOrchestrator_DownloadStopsWhenConsumerStalls(t *testing.T) {
	data := testData(4 * 1024 * 1024)
	srv := rangeFixtureServer(t, data)
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := newTestOrchestrator().Download(ctx, domain.TransferRequest{
		URL: srv.URL, Destination: dest, Policy: testPolicy(),
	})

	// Nobody reads, so the transfer stalls once the event buffer is full.
	require.Eventually(t, func() bool {
		_, err := os.Stat(dest)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		_, err := os.Stat(dest)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond, "cancelled transfer must clean up without a reader")

	var drained int
	for range events {
		drained++
	}
	assert.LessOrEqual(t, drained, eventBufferSize)
}

//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/api"
	"github.com/yourusername/mediagrab/internal/app"
	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/internal/infrastructure"
	"github.com/yourusername/mediagrab/pkg/logger"
)

const payloadSize = 1 << 20

func payload() []byte {
	data := make([]byte, payloadSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// origin serves data with byte-range support and counts ranged requests
type origin struct {
	*httptest.Server
	ranged int32
}

func newOrigin(t *testing.T, data []byte) *origin {
	t.Helper()
	o := &origin{}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			atomic.AddInt32(&o.ranged, 1)
		}
		http.ServeContent(w, r, "clip.mp4", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(o.Close)
	return o
}

type stack struct {
	server  *httptest.Server
	router  *app.Router
	queue   *app.QueueManager
	library string
}

func setupTestServer(t *testing.T, withQueue bool) *stack {
	t.Helper()
	base := t.TempDir()

	config := domain.DefaultConfig()
	config.Download.TempDir = filepath.Join(base, "tmp")
	config.Download.MaxParts = 4
	config.Download.MinPartBytes = 64 * 1024
	config.Download.MaxPartBytes = 256 * 1024
	config.Download.BufferSize = 16 * 1024
	config.Router.FastFailWindow = 300 * time.Millisecond
	config.Router.PollInterval = 10 * time.Millisecond
	config.Queue.CheckInterval = 50 * time.Millisecond
	config.Queue.DatabasePath = filepath.Join(base, "queue.db")
	require.NoError(t, os.MkdirAll(config.Download.TempDir, 0755))

	logs := logger.NewSingleLoggerAdapter(zap.NewNop())
	headers, err := infrastructure.NewCookieHeaderSource(config.Download.UserAgent)
	require.NoError(t, err)
	library := infrastructure.NewFilesystemLibrary(filepath.Join(base, "library"))
	resolver := infrastructure.NewRedirectResolver(
		infrastructure.NewHTTPClient(infrastructure.HTTPClientConfig{}),
		headers, config.Router.MaxRedirects, config.Router.ResolveTimeout, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deps := app.RouterDeps{
		Runner:   app.NewOrchestrator(headers, &config.Download, logs),
		Resolver: resolver,
		Library:  library,
		Headers:  headers,
		Logs:     logs,
	}

	var queue *app.QueueManager
	if withQueue {
		repo, err := infrastructure.NewSQLiteQueueRepository(config.Queue.DatabasePath)
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		downloads := app.NewDownloadManager(repo, library, nil, &config.Download, &config.Queue, logs)
		queue = app.NewQueueManager(repo, downloads, &config.Queue, logs)
		require.NoError(t, queue.Start(ctx))
		t.Cleanup(func() { queue.Stop() })
		deps.Queue = queue
	}

	router := app.NewRouter(deps, &config.Router, &config.Download)
	server := httptest.NewServer(api.SetupRouter(ctx, api.Services{
		Router: router,
		Queue:  queue,
		Logs:   logs,
	}))
	t.Cleanup(server.Close)

	return &stack{server: server, router: router, queue: queue, library: library.Dir()}
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestTransfer_DirectParallel(t *testing.T) {
	data := payload()
	src := newOrigin(t, data)
	s := setupTestServer(t, false)

	var started struct {
		TransferID string `json:"transfer_id"`
	}
	status := postJSON(t, s.server.URL+"/api/v1/transfers", map[string]string{
		"url":      src.URL + "/media/clip.mp4",
		"filename": "clip.mp4",
	}, &started)
	require.Equal(t, http.StatusAccepted, status)

	s.router.Wait()

	var snap domain.StatusSnapshot
	require.Equal(t, http.StatusOK, getJSON(t, s.server.URL+"/api/v1/transfers/"+started.TransferID, &snap))
	assert.Equal(t, domain.StateCompleted, snap.State)
	assert.Equal(t, int64(payloadSize), snap.BytesSoFar)

	published, err := os.ReadFile(filepath.Join(s.library, "clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, data, published)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&src.ranged), int32(4))
}

func TestTransfer_HandedToQueue(t *testing.T) {
	data := payload()
	src := newOrigin(t, data)
	s := setupTestServer(t, true)

	status := postJSON(t, s.server.URL+"/api/v1/transfers", map[string]string{
		"url":      src.URL + "/media/queued.mp4",
		"filename": "queued.mp4",
	}, nil)
	require.Equal(t, http.StatusAccepted, status)

	s.router.Wait()

	require.Eventually(t, func() bool {
		var stats domain.QueueStats
		return getJSON(t, s.server.URL+"/api/v1/queue/stats", &stats) == http.StatusOK && stats.Succeeded == 1
	}, 10*time.Second, 50*time.Millisecond)

	published, err := os.ReadFile(filepath.Join(s.library, "queued.mp4"))
	require.NoError(t, err)
	assert.Equal(t, data, published)

	var entries []domain.QueueEntry
	require.Equal(t, http.StatusOK, getJSON(t, s.server.URL+"/api/v1/queue?status=succeeded", &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(payloadSize), entries[0].BytesDone)
}

func TestTransfer_QueueRetryAfterFailure(t *testing.T) {
	var fail int32 = 1
	data := payload()
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, "late.mp4", time.Time{}, bytes.NewReader(data))
	}))
	defer src.Close()
	s := setupTestServer(t, true)

	var entry domain.QueueEntry
	require.Equal(t, http.StatusCreated, postJSON(t, s.server.URL+"/api/v1/queue",
		map[string]string{"url": src.URL + "/late.mp4"}, &entry))

	require.Eventually(t, func() bool {
		var got domain.QueueEntry
		return getJSON(t, s.server.URL+"/api/v1/queue/"+entry.ID, &got) == http.StatusOK &&
			got.Status == domain.QueueFailed
	}, 10*time.Second, 50*time.Millisecond)

	atomic.StoreInt32(&fail, 0)
	require.Equal(t, http.StatusOK, postJSON(t, s.server.URL+"/api/v1/queue/"+entry.ID+"/retry", nil, nil))

	require.Eventually(t, func() bool {
		var got domain.QueueEntry
		return getJSON(t, s.server.URL+"/api/v1/queue/"+entry.ID, &got) == http.StatusOK &&
			got.Status == domain.QueueSucceeded
	}, 10*time.Second, 50*time.Millisecond)
}

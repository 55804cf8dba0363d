package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/mediagrab/internal/domain"
)

// hopRecorder records the Range header of every request by path
type hopRecorder struct {
	mu     sync.Mutex
	ranges map[string]string
}

func (h *hopRecorder) record(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ranges[r.URL.Path] = r.Header.Get("Range")
}

func staticHeaders(values map[string]string) domain.HeaderSource {
	return domain.HeaderSourceFunc(func(targetURL, referer string) map[string]string {
		return values
	})
}

func TestResolve_FollowsThreeHops(t *testing.T) {
	rec := &hopRecorder{ranges: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.Redirect(w, r, "/hop1", http.StatusFound)
	})
	mux.HandleFunc("/hop1", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.Redirect(w, r, "hop2", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		http.Redirect(w, r, "/media/final.mp4", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/media/final.mp4", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Range", "bytes 0-0/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resolver := NewRedirectResolver(newTestClient(), staticHeaders(nil), 5, 5*time.Second, nil)
	final, err := resolver.Resolve(context.Background(), srv.URL+"/start", "")

	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/media/final.mp4", final)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.ranges, 4)
	for path, rng := range rec.ranges {
		assert.Equal(t, "bytes=0-0", rng, "hop %s", path)
	}
}

func TestResolve_RecomputesHeadersPerHop(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]string)
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen["/a"] = r.Header.Get("Cookie")
		mu.Unlock()
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen["/b"] = r.Header.Get("Cookie")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	headers := domain.HeaderSourceFunc(func(targetURL, referer string) map[string]string {
		return map[string]string{"Cookie": "for=" + targetURL[len(targetURL)-1:]}
	})
	_, err := NewRedirectResolver(newTestClient(), headers, 5, time.Second, nil).
		Resolve(context.Background(), srv.URL+"/a", "https://example.com/")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "for=a", seen["/a"])
	assert.Equal(t, "for=b", seen["/b"])
}

func TestResolve_LoopIsFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewRedirectResolver(newTestClient(), nil, 5, time.Second, nil).
		Resolve(context.Background(), srv.URL+"/a", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRedirectLoop))
}

func TestResolve_TooManyHops(t *testing.T) {
	count := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		http.Redirect(w, r, "/hop/"+string(rune('a'+n)), http.StatusFound)
	}))
	defer srv.Close()

	_, err := NewRedirectResolver(newTestClient(), nil, 3, time.Second, nil).
		Resolve(context.Background(), srv.URL+"/start", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTooManyRedirects))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, count)
}

func TestResolve_MissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	_, err := NewRedirectResolver(newTestClient(), nil, 5, time.Second, nil).
		Resolve(context.Background(), srv.URL, "")

	assert.True(t, errors.Is(err, domain.ErrMissingLocation))
}

func TestResolve_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewRedirectResolver(newTestClient(), nil, 5, time.Second, nil).
		Resolve(context.Background(), srv.URL, "")

	var redirectErr *domain.RedirectError
	require.True(t, errors.As(err, &redirectErr))
	assert.Equal(t, http.StatusForbidden, redirectErr.StatusCode)
	assert.True(t, errors.Is(err, domain.ErrUnexpectedStatus))
}

func TestResolveLocation(t *testing.T) {
	next, err := resolveLocation("https://cdn.example.com/a/b/c.mp4?x=1", "../d.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a/d.mp4", next)

	next, err = resolveLocation("https://cdn.example.com/a", "https://other.example.com/z")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/z", next)
}

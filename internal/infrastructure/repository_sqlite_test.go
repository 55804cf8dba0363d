package infrastructure

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/mediagrab/internal/domain"
)

func setupTestRepo(t *testing.T) *SQLiteQueueRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "queue.db")
	repo, err := NewSQLiteQueueRepository(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newEntry(url string) *domain.QueueEntry {
	return domain.NewQueueEntry(domain.QueueRequest{
		URL:         url,
		Destination: "/tmp/out.mp4",
		Title:       "clip",
		Headers:     map[string]string{"Referer": "https://example.com/"},
	})
}

func TestSQLiteQueueRepository_CreateAndFind(t *testing.T) {
	repo := setupTestRepo(t)

	entry := newEntry("https://cdn.example.com/a.mp4")
	require.NoError(t, repo.Create(entry))

	found, err := repo.FindByID(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.URL, found.URL)
	assert.Equal(t, domain.QueuePending, found.Status)
	assert.Equal(t, int64(-1), found.BytesTotal)
	headers, err := found.HeaderMap()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", headers["Referer"])
}

func TestSQLiteQueueRepository_FindByIDMissing(t *testing.T) {
	repo := setupTestRepo(t)

	found, err := repo.FindByID("does-not-exist")
	assert.Nil(t, found)
	assert.True(t, errors.Is(err, domain.ErrEntryNotFound))
}

func TestSQLiteQueueRepository_Update(t *testing.T) {
	repo := setupTestRepo(t)

	entry := newEntry("https://cdn.example.com/a.mp4")
	require.NoError(t, repo.Create(entry))

	entry.MarkRunning()
	entry.MarkSucceeded(4096)
	require.NoError(t, repo.Update(entry))

	found, err := repo.FindByID(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueSucceeded, found.Status)
	assert.Equal(t, int64(4096), found.BytesDone)
	assert.NotNil(t, found.StartedAt)
	assert.NotNil(t, found.CompletedAt)
}

func TestSQLiteQueueRepository_Delete(t *testing.T) {
	repo := setupTestRepo(t)

	entry := newEntry("https://cdn.example.com/a.mp4")
	require.NoError(t, repo.Create(entry))
	require.NoError(t, repo.Delete(entry.ID))

	_, err := repo.FindByID(entry.ID)
	assert.True(t, errors.Is(err, domain.ErrEntryNotFound))
}

func TestSQLiteQueueRepository_FindByURL(t *testing.T) {
	repo := setupTestRepo(t)
	url := "https://cdn.example.com/dup.mp4"

	old := newEntry(url)
	old.MarkFailed(assert.AnError)
	old.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(old))

	newer := newEntry(url)
	require.NoError(t, repo.Create(newer))

	found, err := repo.FindByURL(url, []domain.QueueStatus{domain.QueuePending, domain.QueueRunning})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)

	found, err = repo.FindByURL(url, []domain.QueueStatus{domain.QueueFailed})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, old.ID, found.ID)

	found, err = repo.FindByURL("https://cdn.example.com/none.mp4", []domain.QueueStatus{domain.QueuePending})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSQLiteQueueRepository_FindPendingOldestFirst(t *testing.T) {
	repo := setupTestRepo(t)

	first := newEntry("https://cdn.example.com/1.mp4")
	first.CreatedAt = time.Now().Add(-2 * time.Minute)
	second := newEntry("https://cdn.example.com/2.mp4")
	second.CreatedAt = time.Now().Add(-time.Minute)
	running := newEntry("https://cdn.example.com/3.mp4")
	running.MarkRunning()

	require.NoError(t, repo.Create(second))
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(running))

	pending, err := repo.FindPending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestSQLiteQueueRepository_FindAll(t *testing.T) {
	repo := setupTestRepo(t)

	a := newEntry("https://cdn.example.com/a.mp4")
	b := newEntry("https://cdn.example.com/b.mp4")
	b.MarkCancelled()
	require.NoError(t, repo.Create(a))
	require.NoError(t, repo.Create(b))

	all, err := repo.FindAll(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err := repo.FindAll(map[string]interface{}{"status": domain.QueueCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, b.ID, cancelled[0].ID)

	_, err = repo.FindAll(map[string]interface{}{"1=1; --": "x"})
	assert.Error(t, err)
}

func TestSQLiteQueueRepository_GetStats(t *testing.T) {
	repo := setupTestRepo(t)

	pending := newEntry("https://cdn.example.com/p.mp4")
	running := newEntry("https://cdn.example.com/r.mp4")
	running.MarkRunning()
	failed := newEntry("https://cdn.example.com/f.mp4")
	failed.MarkFailed(assert.AnError)
	paused := newEntry("https://cdn.example.com/z.mp4")
	paused.MarkPaused(assert.AnError)

	for _, e := range []*domain.QueueEntry{pending, running, failed, paused} {
		require.NoError(t, repo.Create(e))
	}

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Running)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Paused)
	assert.Equal(t, int64(0), stats.Succeeded)
}

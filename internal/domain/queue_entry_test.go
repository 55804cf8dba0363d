package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewQueueEntry(t *testing.T) {
	req := QueueRequest{
		URL:         "https://cdn.example.com/clip.mp4",
		Headers:     map[string]string{"User-Agent": "test-agent", "Referer": "https://example.com/"},
		Destination: "/tmp/clip.mp4",
		Title:       "clip.mp4",
	}

	entry := NewQueueEntry(req)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, req.URL, entry.URL)
	assert.Equal(t, req.Destination, entry.Destination)
	assert.Equal(t, QueuePending, entry.Status)
	assert.Equal(t, int64(-1), entry.BytesTotal)
	headers, err := entry.HeaderMap()
	assert.NoError(t, err)
	assert.Equal(t, req.Headers, headers)
}

func TestQueueEntry_EmptyHeaders(t *testing.T) {
	entry := NewQueueEntry(QueueRequest{URL: "https://cdn.example.com/a.mp4"})

	assert.Empty(t, entry.Headers)
	headers, err := entry.HeaderMap()
	assert.NoError(t, err)
	assert.Empty(t, headers)
}

func TestQueueEntry_CorruptHeaders(t *testing.T) {
	entry := NewQueueEntry(QueueRequest{URL: "https://cdn.example.com/a.mp4"})
	entry.Headers = `{"Cookie": "session=`

	headers, err := entry.HeaderMap()
	assert.Error(t, err)
	assert.Nil(t, headers)
}

func TestQueueEntry_Lifecycle(t *testing.T) {
	entry := NewQueueEntry(QueueRequest{URL: "https://cdn.example.com/a.mp4"})

	entry.MarkRunning()
	assert.Equal(t, QueueRunning, entry.Status)
	assert.NotNil(t, entry.StartedAt)
	assert.True(t, entry.IsActive())

	entry.MarkPaused(errors.New("connection reset"))
	assert.Equal(t, QueuePaused, entry.Status)
	assert.Equal(t, "connection reset", entry.ErrorMessage)
	assert.False(t, entry.IsTerminal())

	entry.MarkSucceeded(1024)
	assert.Equal(t, QueueSucceeded, entry.Status)
	assert.Equal(t, int64(1024), entry.BytesDone)
	assert.Empty(t, entry.ErrorMessage)
	assert.NotNil(t, entry.CompletedAt)
	assert.True(t, entry.IsTerminal())
}

func TestQueueEntry_ResetForRetry(t *testing.T) {
	entry := NewQueueEntry(QueueRequest{URL: "https://cdn.example.com/a.mp4"})
	entry.MarkRunning()
	entry.IncrementRetry()
	entry.MarkFailed(errors.New("http 404"))

	entry.ResetForRetry()

	assert.Equal(t, QueuePending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Empty(t, entry.ErrorMessage)
	assert.Nil(t, entry.StartedAt)
	assert.Nil(t, entry.CompletedAt)
}

func TestQueueEntry_IsTerminal(t *testing.T) {
	entry := NewQueueEntry(QueueRequest{URL: "https://cdn.example.com/a.mp4"})
	assert.False(t, entry.IsTerminal())

	entry.MarkCancelled()
	assert.True(t, entry.IsTerminal())
	assert.False(t, entry.IsActive())

	entry.Status = QueueFailed
	assert.True(t, entry.IsTerminal())
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 6, config.Download.MaxParts)
	assert.Equal(t, int64(2*1024*1024), config.Download.MinPartBytes)
	assert.Equal(t, int64(32*1024*1024), config.Download.MaxPartBytes)
	assert.Equal(t, 20*time.Second, config.Download.ConnectTimeout)
	assert.Equal(t, 120*time.Second, config.Download.ReadTimeout)
	assert.Equal(t, 3500*time.Millisecond, config.Router.FastFailWindow)
	assert.Equal(t, 250*time.Millisecond, config.Router.PollInterval)
	assert.Equal(t, 5, config.Router.MaxRedirects)
	assert.ElementsMatch(t, []string{"instagram.com", "cdninstagram", "fbcdn"}, config.Router.CookieGatedHosts)
	assert.Equal(t, 3, config.Queue.MaxRetries)
	assert.True(t, config.Queue.AutoStartWorkers)
	assert.Equal(t, "filesystem", config.Library.Backend)
	assert.False(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestDownloadConfig_Policy(t *testing.T) {
	config := DefaultConfig()
	config.Download.MaxParts = 4

	policy := config.Download.Policy()

	assert.Equal(t, 4, policy.MaxParts)
	assert.Equal(t, config.Download.MinPartBytes, policy.MinPartBytes)
	assert.Equal(t, config.Download.ReadTimeout, policy.ReadTimeout)
}

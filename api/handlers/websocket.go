package handlers

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/app"
	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/pkg/logger"
)

const (
	pingInterval     = 30 * time.Second
	writeTimeout     = 10 * time.Second
	initialLogBatch  = 50
	tailChannelDepth = 100
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, the API is bound to localhost by default
	},
}

// LogWebSocketHandler streams a log category over a WebSocket
type LogWebSocketHandler struct {
	logReader *logger.LogReader
	logger    *zap.Logger
}

// NewLogWebSocketHandler creates a new log streaming handler
func NewLogWebSocketHandler(logsDir string, log *zap.Logger) *LogWebSocketHandler {
	return &LogWebSocketHandler{
		logReader: logger.NewLogReader(logsDir),
		logger:    log,
	}
}

// HandleWebSocket handles GET /api/v1/logs/:category/stream
func (h *LogWebSocketHandler) HandleWebSocket(c *gin.Context) {
	category := c.Param("category")
	if !logger.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("Log stream connected",
		zap.String("category", category),
		zap.String("remote_addr", c.Request.RemoteAddr))

	if entries, err := h.logReader.ReadLogs(logger.LogCategory(category), time.Now(), initialLogBatch); err == nil {
		for _, entry := range entries {
			if err := writeJSON(conn, entry); err != nil {
				return
			}
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	closed := watchClose(conn, cancel)

	entries := make(chan logger.LogEntry, tailChannelDepth)
	go func() {
		if err := h.logReader.TailLogs(ctx, logger.LogCategory(category), entries); err != nil {
			h.logger.Error("Log tailing error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entries:
			if err := writeJSON(conn, entry); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// StatusWebSocketHandler mirrors the live status store over a WebSocket
type StatusWebSocketHandler struct {
	status   *app.StatusStore
	interval time.Duration
	logger   *zap.Logger
}

// NewStatusWebSocketHandler creates a new status streaming handler that
// samples the store every interval
func NewStatusWebSocketHandler(status *app.StatusStore, interval time.Duration, log *zap.Logger) *StatusWebSocketHandler {
	if interval <= 0 {
		interval = domain.DefaultPollInterval
	}
	return &StatusWebSocketHandler{
		status:   status,
		interval: interval,
		logger:   log,
	}
}

// HandleWebSocket handles GET /api/v1/transfers/stream. A message carrying every
// tracked transfer is sent whenever the set of snapshots changes.
func (h *StatusWebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := watchClose(conn, func() {})

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	var last []domain.StatusSnapshot
	send := func() error {
		snaps := h.status.Snapshots()
		if last != nil && reflect.DeepEqual(snaps, last) {
			return nil
		}
		last = snaps
		return writeJSON(conn, snaps)
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		case <-pinger.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// watchClose drains client messages and closes the returned channel once the
// client goes away
func watchClose(conn *websocket.Conn, onClose func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer onClose()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mediagrab/internal/app"
)

// Version is reported by the health endpoint
var Version = "dev"

// HealthHandler handles health check requests
type HealthHandler struct {
	queueMgr *app.QueueManager
	router   *app.Router
}

// NewHealthHandler creates a new health handler. queueMgr may be nil when the
// host queue is disabled.
func NewHealthHandler(queueMgr *app.QueueManager, router *app.Router) *HealthHandler {
	return &HealthHandler{
		queueMgr: queueMgr,
		router:   router,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Transfers int    `json:"transfers"`
	Queue     struct {
		Enabled bool `json:"enabled"`
		Running bool `json:"running"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Version:   Version,
		Transfers: len(h.router.Status().Snapshots()),
	}
	if h.queueMgr != nil {
		response.Queue.Enabled = true
		response.Queue.Running = h.queueMgr.IsRunning()
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.queueMgr != nil && !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue manager not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

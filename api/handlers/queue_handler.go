package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/app"
	"github.com/yourusername/mediagrab/internal/domain"
)

// QueueHandler handles host queue HTTP requests
type QueueHandler struct {
	queueMgr *app.QueueManager
	logger   *zap.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queueMgr *app.QueueManager, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{
		queueMgr: queueMgr,
		logger:   logger,
	}
}

// EnqueueRequest represents a request to add a URL to the host queue
type EnqueueRequest struct {
	URL         string            `json:"url" binding:"required"`
	Destination string            `json:"destination,omitempty"`
	Title       string            `json:"title,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// Enqueue handles POST /api/v1/queue
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.queueMgr.Enqueue(c.Request.Context(), domain.QueueRequest{
		URL:         req.URL,
		Headers:     req.Headers,
		Destination: req.Destination,
		Title:       req.Title,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.queueMgr.GetEntry(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// GetEntry handles GET /api/v1/queue/:id
func (h *QueueHandler) GetEntry(c *gin.Context) {
	entry, err := h.queueMgr.GetEntry(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ListEntries handles GET /api/v1/queue
func (h *QueueHandler) ListEntries(c *gin.Context) {
	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filters["status"] = status
	}
	if url := c.Query("url"); url != "" {
		filters["url"] = url
	}

	entries, err := h.queueMgr.ListEntries(filters)
	if err != nil {
		h.logger.Error("Failed to list entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*domain.QueueEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// GetStats handles GET /api/v1/queue/stats
func (h *QueueHandler) GetStats(c *gin.Context) {
	stats, err := h.queueMgr.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CancelEntry handles DELETE /api/v1/queue/:id
func (h *QueueHandler) CancelEntry(c *gin.Context) {
	id := c.Param("id")
	if err := h.queueMgr.Cancel(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to cancel entry", zap.String("id", id), zap.Error(err))
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "entry cancelled"})
}

// RetryEntry handles POST /api/v1/queue/:id/retry
func (h *QueueHandler) RetryEntry(c *gin.Context) {
	id := c.Param("id")
	if err := h.queueMgr.Retry(id); err != nil {
		h.logger.Error("Failed to retry entry", zap.String("id", id), zap.Error(err))
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "entry queued for retry"})
}

func (h *QueueHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrEntryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/app"
)

// TransferHandler handles requests that start and observe transfers
type TransferHandler struct {
	router *app.Router
	ctx    context.Context
	logger *zap.Logger
}

// NewTransferHandler creates a new transfer handler. Transfers run under ctx,
// not under the HTTP request that started them.
func NewTransferHandler(ctx context.Context, router *app.Router, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		router: router,
		ctx:    ctx,
		logger: logger,
	}
}

// StartTransferRequest represents a request to download a media URL
type StartTransferRequest struct {
	URL      string `json:"url" binding:"required"`
	Filename string `json:"filename,omitempty"`
	Referer  string `json:"referer,omitempty"`
}

// StartTransfer handles POST /api/v1/transfers
func (h *TransferHandler) StartTransfer(c *gin.Context) {
	var req StartTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.router.SmartDownload(h.ctx, req.URL, req.Filename, req.Referer, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Transfer requested", zap.String("transfer_id", id), zap.String("url", req.URL))
	c.JSON(http.StatusAccepted, gin.H{"transfer_id": id})
}

// ListTransfers handles GET /api/v1/transfers
func (h *TransferHandler) ListTransfers(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Status().Snapshots())
}

// GetLatest handles GET /api/v1/transfers/latest
func (h *TransferHandler) GetLatest(c *gin.Context) {
	snap, ok := h.router.Status().Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active transfer"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetTransfer handles GET /api/v1/transfers/:id
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	snap, ok := h.router.Status().Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "transfer not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

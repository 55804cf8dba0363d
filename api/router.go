package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mediagrab/api/handlers"
	"github.com/yourusername/mediagrab/api/middleware"
	"github.com/yourusername/mediagrab/internal/app"
	"github.com/yourusername/mediagrab/pkg/logger"
)

// Services holds what the HTTP API exposes. Queue may be nil.
type Services struct {
	Router         *app.Router
	Queue          *app.QueueManager
	Logs           *logger.LoggerAdapter
	LogsDir        string
	StatusInterval time.Duration
}

// SetupRouter sets up the HTTP router. Transfers started through the API run under ctx.
func SetupRouter(ctx context.Context, svc Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(svc.Logs))
	router.Use(middleware.Recovery(svc.Logs))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(svc.Queue, svc.Router)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		transferHandler := handlers.NewTransferHandler(ctx, svc.Router, svc.Logs.General())
		statusStream := handlers.NewStatusWebSocketHandler(svc.Router.Status(), svc.StatusInterval, svc.Logs.General())
		transfers := v1.Group("/transfers")
		{
			transfers.POST("", transferHandler.StartTransfer)
			transfers.GET("", transferHandler.ListTransfers)
			transfers.GET("/latest", transferHandler.GetLatest)
			transfers.GET("/stream", statusStream.HandleWebSocket)
			transfers.GET("/:id", transferHandler.GetTransfer)
		}

		if svc.Queue != nil {
			queueHandler := handlers.NewQueueHandler(svc.Queue, svc.Logs.Queue())
			queue := v1.Group("/queue")
			{
				queue.POST("", queueHandler.Enqueue)
				queue.GET("", queueHandler.ListEntries)
				queue.GET("/stats", queueHandler.GetStats)
				queue.GET("/:id", queueHandler.GetEntry)
				queue.POST("/:id/retry", queueHandler.RetryEntry)
				queue.DELETE("/:id", queueHandler.CancelEntry)
			}
		}

		if svc.LogsDir != "" {
			logHandler := handlers.NewLogHandler(svc.LogsDir)
			logStream := handlers.NewLogWebSocketHandler(svc.LogsDir, svc.Logs.General())
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
				logs.GET("/:category/stream", logStream.HandleWebSocket)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

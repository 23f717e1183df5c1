package router

import (
	"net/http"

	"github.com/ecomsync/paysync/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(MetricsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "paysync-api-service",
		})
	})

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Initialize sync handler
	syncHandler := handler.NewSyncHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		entries := v1.Group("/payment-entries")
		{
			// GET /api/v1/payment-entries/:entry_id - Get entry with items
			entries.GET("/:entry_id", syncHandler.GetPaymentEntry)

			// POST /api/v1/payment-entries/:entry_id/sync-missing-orders - Start a missing-order sync
			entries.POST("/:entry_id/sync-missing-orders", syncHandler.SyncMissingOrders)

			// POST /api/v1/payment-entries/:entry_id/fetch-invoice-details - Start an invoice-detail fetch
			entries.POST("/:entry_id/fetch-invoice-details", syncHandler.FetchInvoiceDetails)

			// POST /api/v1/payment-entries/:entry_id/reset - Force-clear the in-progress flag
			entries.POST("/:entry_id/reset", syncHandler.ResetInProgress)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs/:job_id/progress - Job status and progress snapshot
			jobs.GET("/:job_id/progress", syncHandler.JobProgress)
		}

		records := v1.Group("/failed-sync-records")
		{
			// GET /api/v1/failed-sync-records - List records with filtering and pagination
			records.GET("", syncHandler.ListFailedSyncRecords)

			// POST /api/v1/failed-sync-records/:record_id/retry - Retry a single record
			records.POST("/:record_id/retry", syncHandler.RetryFailedSyncRecord)
		}
	}

	return r
}

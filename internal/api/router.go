package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/printforge/dispatch/internal/api/handlers"
	"github.com/printforge/dispatch/internal/api/middleware"
	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/core"
	"github.com/printforge/dispatch/internal/db"
)

// NewRouter wires the admin/status API. Everything under /api sits behind
// the optional API-key gate; health and metrics stay open for probes and
// scrapers.
func NewRouter(cfg *config.Config, store *db.Store, client *core.Client, scheduler *core.Scheduler, retryQueue *core.RetryQueue) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	statusHandler := handlers.NewStatusHandler(scheduler, retryQueue)
	router.GET("/healthz", statusHandler.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handlers.NewJobHandler(store, cfg.Scheduler)
	printerHandler := handlers.NewPrinterHandler(store, client)

	apiGroup := router.Group("/api", middleware.APIKey(cfg.Server.APIKey))
	{
		apiGroup.POST("/jobs", jobHandler.CreateJob)
		apiGroup.GET("/jobs", jobHandler.ListJobs)
		apiGroup.GET("/jobs/:id", jobHandler.GetJob)
		apiGroup.POST("/jobs/:id/cancel", jobHandler.CancelJob)
		apiGroup.POST("/jobs/:id/retry", jobHandler.RetryJob)

		apiGroup.POST("/printers", printerHandler.CreatePrinter)
		apiGroup.GET("/printers", printerHandler.ListPrinters)
		apiGroup.GET("/printers/:id", printerHandler.GetPrinter)
		apiGroup.PUT("/printers/:id", printerHandler.UpdatePrinter)
		apiGroup.PATCH("/printers/:id/status", printerHandler.UpdatePrinterStatus)
		apiGroup.DELETE("/printers/:id", printerHandler.DeletePrinter)
		apiGroup.GET("/backends/:index/health", printerHandler.BackendHealth)

		apiGroup.GET("/queue/status", statusHandler.QueueStatus)
	}

	return router
}

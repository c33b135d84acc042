package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printforge/dispatch/internal/core"
)

type StatusHandler struct {
	scheduler  *core.Scheduler
	retryQueue *core.RetryQueue
}

func NewStatusHandler(scheduler *core.Scheduler, retryQueue *core.RetryQueue) *StatusHandler {
	return &StatusHandler{scheduler: scheduler, retryQueue: retryQueue}
}

// QueueStatus reports job counts by status, printer availability and the
// in-memory retry queue depth.
func (h *StatusHandler) QueueStatus(c *gin.Context) {
	status, err := h.scheduler.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get queue status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":              status.Jobs,
		"printers":          status.Printers,
		"retry_queue_depth": h.retryQueue.Len(),
	})
}

func (h *StatusHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

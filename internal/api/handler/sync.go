package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/scheduler"
)

// SyncHandler exposes sync cycle triggering and scheduler control.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSyncHandler creates a new sync handler.
// Parameters:
//   - sched: scheduler instance owning the single-flight guard.
//   - log: logger instance.
// Returns:
//   - *SyncHandler: initialized handler.
func NewSyncHandler(sched *scheduler.Scheduler, log *logger.Logger) *SyncHandler {
	return &SyncHandler{
		scheduler: sched,
		logger:    log,
	}
}

// TriggerSyncRequest is the manual trigger request body. All fields are
// optional; the body itself may be empty.
type TriggerSyncRequest struct {
	Metadata domain.JSONMap `json:"metadata"`
}

// TriggerSync handles POST /api/v1/sync.
//
// A sync cycle that runs but fails at a stage still answers 200 with a
// success=false body; the request itself was served. 409 is reserved for a
// trigger arriving while a cycle is already in flight.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
	}

	result, err := h.scheduler.TriggerManualSync(c.Request.Context(), req.Metadata)
	if err != nil {
		if errors.Is(err, scheduler.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to run sync: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SchedulerStatus handles GET /api/v1/scheduler/status.
func (h *SyncHandler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// StartScheduler handles POST /api/v1/scheduler/start. Starting an already
// running scheduler is a no-op and still answers 200.
func (h *SyncHandler) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start scheduler: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started",
		"status":  h.scheduler.Status(),
	})
}

// StopScheduler handles POST /api/v1/scheduler/stop. An in-flight cycle
// finishes; only future ticks are suppressed.
func (h *SyncHandler) StopScheduler(c *gin.Context) {
	h.scheduler.Stop()
	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped",
		"status":  h.scheduler.Status(),
	})
}

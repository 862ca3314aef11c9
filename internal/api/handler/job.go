package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/repository"
	"github.com/vivanti/ordersync/internal/service"
)

// JobHandler exposes the sync job history and job-level controls.
type JobHandler struct {
	jobs        *repository.SyncJobRepository
	syncService *service.SyncService
	logger      *logger.Logger
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: sync job repository.
//   - syncService: sync service used for job retry.
//   - log: logger instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *repository.SyncJobRepository, syncService *service.SyncService, log *logger.Logger) *JobHandler {
	return &JobHandler{
		jobs:        jobs,
		syncService: syncService,
		logger:      log,
	}
}

// ListRecent handles GET /api/v1/jobs.
func (h *JobHandler) ListRecent(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit: must be an integer between 1 and 200",
			})
			return
		}
		limit = parsed
	}

	jobs, err := h.jobs.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// ListFailed handles GET /api/v1/jobs/failed.
func (h *JobHandler) ListFailed(c *gin.Context) {
	jobs, err := h.jobs.Failed(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list failed jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// ListRunning handles GET /api/v1/jobs/running.
func (h *JobHandler) ListRunning(c *gin.Context) {
	jobs, err := h.jobs.Running(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list running jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, job)
}

// RetryJob handles POST /api/v1/jobs/:id/retry. The retry runs a full cycle
// synchronously; a cycle that fails again still answers 200 with a
// success=false body.
func (h *JobHandler) RetryJob(c *gin.Context) {
	id := c.Param("id")
	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}
	if !job.CanRetry() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "Job is not retryable",
			"status":      job.Status,
			"retry_count": job.RetryCount,
			"max_retries": job.MaxRetries,
		})
		return
	}

	result, err := h.syncService.RetryJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelJob handles POST /api/v1/jobs/:id/cancel. Cancellation is
// administrative: the record is marked, in-flight work is not interrupted.
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusRunning {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Only pending or running jobs can be cancelled",
			"status": job.Status,
		})
		return
	}

	job.MarkCancelled(time.Now())
	if err := h.jobs.Save(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Job cancelled",
		"job":     job,
	})
}

// GetStats handles GET /api/v1/jobs/stats.
func (h *JobHandler) GetStats(c *gin.Context) {
	window := 100
	if raw := c.Query("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid window: must be an integer between 1 and 1000",
			})
			return
		}
		window = parsed
	}

	stats, err := h.jobs.Stats(c.Request.Context(), window)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute job stats: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

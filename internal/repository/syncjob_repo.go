package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vivanti/ordersync/internal/domain"
	"gorm.io/gorm"
)

// JobStats summarizes recent job history for dashboards.
type JobStats struct {
	TotalJobs       int     `json:"total_jobs"`
	CompletedJobs   int     `json:"completed_jobs"`
	FailedJobs      int     `json:"failed_jobs"`
	RunningJobs     int     `json:"running_jobs"`
	SuccessRate     float64 `json:"success_rate"`
	AverageDuration float64 `json:"average_duration_ms"`
}

// SyncJobRepository handles sync job records. Rows are append-only history;
// there is no delete.
type SyncJobRepository struct {
	db *gorm.DB
}

// NewSyncJobRepository creates a new SyncJobRepository.
func NewSyncJobRepository(db *gorm.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts a new pending job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobType: what the job does.
//   - triggeredBy: trigger origin.
//   - maxRetries: retry bound for the sweep.
//   - metadata: free-form caller metadata.
// Returns:
//   - *domain.SyncJob: the created job.
//   - error: non-nil if the insert fails.
func (r *SyncJobRepository) Create(ctx context.Context, jobType domain.JobType, triggeredBy domain.TriggerOrigin, maxRetries int, metadata domain.JSONMap) (*domain.SyncJob, error) {
	job := &domain.SyncJob{
		ID:          uuid.New().String(),
		JobType:     jobType,
		Status:      domain.JobStatusPending,
		MaxRetries:  maxRetries,
		TriggeredBy: triggeredBy,
		Metadata:    metadata,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// Save persists the job's current state.
func (r *SyncJobRepository) Save(ctx context.Context, job *domain.SyncJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its id.
func (r *SyncJobRepository) GetByID(ctx context.Context, id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Recent retrieves the newest jobs, most recent first.
func (r *SyncJobRepository) Recent(ctx context.Context, limit int) ([]domain.SyncJob, error) {
	var jobs []domain.SyncJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Failed retrieves all jobs in terminal failed state, newest first.
func (r *SyncJobRepository) Failed(ctx context.Context) ([]domain.SyncJob, error) {
	var jobs []domain.SyncJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusFailed).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Retryable retrieves failed jobs still under their retry bound. Used by the
// scheduler's retry sweep.
func (r *SyncJobRepository) Retryable(ctx context.Context) ([]domain.SyncJob, error) {
	var jobs []domain.SyncJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < max_retries", domain.JobStatusFailed).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Running retrieves jobs currently marked running.
func (r *SyncJobRepository) Running(ctx context.Context) ([]domain.SyncJob, error) {
	var jobs []domain.SyncJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", domain.JobStatusRunning).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Stats computes success rate and average duration over the most recent jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - window: how many recent jobs to aggregate over.
// Returns:
//   - *JobStats: aggregate counters.
//   - error: non-nil if any query fails.
func (r *SyncJobRepository) Stats(ctx context.Context, window int) (*JobStats, error) {
	recent, err := r.Recent(ctx, window)
	if err != nil {
		return nil, err
	}

	stats := &JobStats{TotalJobs: len(recent)}
	var totalDuration int64
	for _, job := range recent {
		switch job.Status {
		case domain.JobStatusCompleted:
			stats.CompletedJobs++
		case domain.JobStatusFailed:
			stats.FailedJobs++
		case domain.JobStatusRunning:
			stats.RunningJobs++
		}
		totalDuration += job.Duration
	}
	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
		stats.AverageDuration = float64(totalDuration) / float64(stats.TotalJobs)
	}
	return stats, nil
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivanti/ordersync/internal/domain"
)

func newTestJobRepo(t *testing.T) *SyncJobRepository {
	return NewSyncJobRepository(newTestDB(t))
}

func TestSyncJobCreateAndLifecycle(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerManual, 3, domain.JSONMap{"source": "test"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)

	start := time.Now().Add(-2 * time.Second)
	job.MarkRunning(start)
	require.NoError(t, repo.Save(ctx, job))

	job.ShopifyOrdersFetched = 187
	job.MarkCompleted(time.Now(), domain.JSONMap{"ok": true})
	require.NoError(t, repo.Save(ctx, job))

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 187, stored.ShopifyOrdersFetched)
	require.NotNil(t, stored.CompletedAt)
	assert.Greater(t, stored.Duration, int64(0))
	assert.Equal(t, domain.TriggerManual, stored.TriggeredBy)
}

func TestRetryableFiltersByStatusAndBudget(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	failed, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerScheduled, 3, nil)
	require.NoError(t, err)
	failed.MarkRunning(time.Now())
	failed.MarkFailed(time.Now(), domain.JobError{Stage: domain.StageShopifyFetch, Message: "boom"})
	require.NoError(t, repo.Save(ctx, failed))

	exhausted, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerScheduled, 2, nil)
	require.NoError(t, err)
	exhausted.MarkRunning(time.Now())
	exhausted.MarkFailed(time.Now(), domain.JobError{Stage: domain.StageAirtableSync, Message: "boom"})
	exhausted.RetryCount = 2
	require.NoError(t, repo.Save(ctx, exhausted))

	completed, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerManual, 3, nil)
	require.NoError(t, err)
	completed.MarkRunning(time.Now())
	completed.MarkCompleted(time.Now(), nil)
	require.NoError(t, repo.Save(ctx, completed))

	retryable, err := repo.Retryable(ctx)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, failed.ID, retryable[0].ID)

	allFailed, err := repo.Failed(ctx)
	require.NoError(t, err)
	assert.Len(t, allFailed, 2)
}

func TestJobErrorsSurviveRoundTrip(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	job, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerWebhook, 3, nil)
	require.NoError(t, err)
	job.MarkRunning(time.Now())
	job.MarkFailed(time.Now(), domain.JobError{
		Stage:   domain.StageDatabaseUpsert,
		Message: "disk full",
		Detail:  "UNKNOWN_ERROR",
	})
	require.NoError(t, repo.Save(ctx, job))

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stored.Errors, 1)
	assert.Equal(t, domain.StageDatabaseUpsert, stored.Errors[0].Stage)
	assert.Equal(t, "disk full", stored.Errors[0].Message)
	assert.False(t, stored.Errors[0].Timestamp.IsZero())
}

func TestStats(t *testing.T) {
	repo := newTestJobRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerScheduled, 3, nil)
		require.NoError(t, err)
		job.MarkRunning(time.Now().Add(-time.Second))
		job.MarkCompleted(time.Now(), nil)
		require.NoError(t, repo.Save(ctx, job))
	}
	job, err := repo.Create(ctx, domain.JobTypeFullSync, domain.TriggerScheduled, 3, nil)
	require.NoError(t, err)
	job.MarkRunning(time.Now())
	job.MarkFailed(time.Now(), domain.JobError{Stage: domain.StageShopifyFetch, Message: "boom"})
	require.NoError(t, repo.Save(ctx, job))

	stats, err := repo.Stats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalJobs)
	assert.Equal(t, 3, stats.CompletedJobs)
	assert.Equal(t, 1, stats.FailedJobs)
	assert.InDelta(t, 75.0, stats.SuccessRate, 0.01)
	assert.Greater(t, stats.AverageDuration, 0.0)
}

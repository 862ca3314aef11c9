package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a sync job. Transitions are
// monotonic (pending → running → completed/failed/cancelled) except for the
// explicit failed → pending transition performed by retry.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobType identifies what a sync job does. Only full sync exists today.
type JobType string

const (
	JobTypeFullSync JobType = "full_sync"
)

// TriggerOrigin records what started a job.
type TriggerOrigin string

const (
	TriggerManual    TriggerOrigin = "manual"
	TriggerScheduled TriggerOrigin = "scheduled"
	TriggerWebhook   TriggerOrigin = "webhook"
)

// Stage names used for failure attribution on a job.
const (
	StageShopifyFetch   = "shopify_fetch"
	StageDatabaseUpsert = "database_upsert"
	StageAirtableSync   = "airtable_sync"
	StageCritical       = "critical_error"
)

// JobError is one stage-tagged error entry on a job.
type JobError struct {
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobErrors is stored as a JSON column.
type JobErrors []JobError

// Value implements the driver.Valuer interface for database serialization.
func (e JobErrors) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (e *JobErrors) Scan(value interface{}) error {
	if value == nil {
		*e = JobErrors{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JobErrors")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, e)
}

// JSONMap is free-form metadata stored as a JSON column.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// SyncJob records one orchestration run end to end. Rows are append-only
// history; jobs are never deleted.
type SyncJob struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	JobType     JobType    `gorm:"type:text;not null;index:idx_sync_jobs_type_status" json:"job_type"`
	Status      JobStatus  `gorm:"type:text;index:idx_sync_jobs_type_status;index:idx_sync_jobs_status;default:pending" json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Duration    int64      `json:"duration_ms"` // milliseconds, set at the terminal transition

	ShopifyOrdersFetched   int `gorm:"default:0" json:"shopify_orders_fetched"`
	ShopifyOrdersUpserted  int `gorm:"default:0" json:"shopify_orders_upserted"`
	AirtableRecordsCreated int `gorm:"default:0" json:"airtable_records_created"`
	AirtableRecordsUpdated int `gorm:"default:0" json:"airtable_records_updated"`

	Errors  JobErrors `gorm:"type:text" json:"errors"`
	Summary JSONMap   `gorm:"type:text" json:"summary,omitempty"`

	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	MaxRetries  int        `gorm:"default:3" json:"max_retries"`
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`

	TriggeredBy TriggerOrigin `gorm:"type:text;default:manual" json:"triggered_by"`
	Metadata    JSONMap       `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_sync_jobs_created" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SyncJob.
func (SyncJob) TableName() string {
	return "sync_jobs"
}

// MarkRunning moves the job to running and stamps the start time.
func (j *SyncJob) MarkRunning(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// MarkCompleted moves the job to its terminal completed state. CompletedAt and
// Duration are set here exactly once.
func (j *SyncJob) MarkCompleted(now time.Time, summary JSONMap) {
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.Duration = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.Summary = summary
}

// MarkFailed moves the job to its terminal failed state, recording the error
// that stopped it.
func (j *SyncJob) MarkFailed(now time.Time, jobErr JobError) {
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.Duration = now.Sub(*j.StartedAt).Milliseconds()
	}
	j.AddError(jobErr)
}

// MarkCancelled records an administrative cancellation. In-flight work is not
// interrupted; only the record is marked.
func (j *SyncJob) MarkCancelled(now time.Time) {
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.Duration = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// AddError appends a stage-tagged error entry.
func (j *SyncJob) AddError(jobErr JobError) {
	if jobErr.Timestamp.IsZero() {
		jobErr.Timestamp = time.Now()
	}
	j.Errors = append(j.Errors, jobErr)
}

// CanRetry reports whether the retry sweep may pick this job up.
func (j *SyncJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// IncrementRetry moves a failed job back to pending and bumps its retry
// counter. The only non-monotonic status transition.
func (j *SyncJob) IncrementRetry(now time.Time) {
	j.RetryCount++
	j.LastRetryAt = &now
	j.Status = JobStatusPending
}

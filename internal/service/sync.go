// Package service implements the synchronization engine: field derivation
// from stored orders to Airtable rows, and the orchestrator that drives the
// fetch → upsert → push cycle under a tracked sync job.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vivanti/ordersync/internal/client"
	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/repository"
)

// ShopifyFetcher is the upstream surface the orchestrator consumes.
type ShopifyFetcher interface {
	FetchAllOrders(ctx context.Context, batchSize int) (*client.FetchResult, *client.Error)
}

// AirtableBatcher is the downstream surface the orchestrator consumes. Both
// calls accept at most client.MaxBatchSize records; the push stage pre-chunks.
type AirtableBatcher interface {
	CreateBatch(ctx context.Context, tableName string, records []client.Record) (*client.BatchResult, *client.Error)
	UpsertBatch(ctx context.Context, tableName string, records []client.Record) (*client.BatchResult, *client.Error)
}

// OrderStore is the intermediate-store surface the orchestrator consumes.
type OrderStore interface {
	UpsertBatch(ctx context.Context, orders []domain.Order) (*repository.UpsertOutcome, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	SetAirtableRef(ctx context.Context, shopifyID, recordID, tableName string) error
	GetByLegacyResourceID(ctx context.Context, legacyID string) (*domain.Order, error)
}

// JobStore persists sync job records.
type JobStore interface {
	Create(ctx context.Context, jobType domain.JobType, triggeredBy domain.TriggerOrigin, maxRetries int, metadata domain.JSONMap) (*domain.SyncJob, error)
	Save(ctx context.Context, job *domain.SyncJob) error
	GetByID(ctx context.Context, id string) (*domain.SyncJob, error)
}

// SyncConfig holds tuning knobs for the sync cycle.
type SyncConfig struct {
	// PageSize is the Shopify pagination page size.
	PageSize int
	// BatchDelay is the pause between Airtable batch calls.
	BatchDelay time.Duration
	// MaxRetries bounds the retry sweep per job.
	MaxRetries int
	// TableName is the destination Airtable table.
	TableName string
}

// SyncService coordinates one-directional sync cycles: Shopify → store →
// Airtable. A cycle runs its stages strictly sequentially and any stage
// failure is terminal for that cycle, leaving the job in an inspectable
// failed state tagged with the stage that stopped it.
type SyncService struct {
	shopify  ShopifyFetcher
	airtable AirtableBatcher
	orders   OrderStore
	jobs     JobStore
	logger   *logger.Logger
	cfg      SyncConfig
}

// NewSyncService creates a sync service.
func NewSyncService(shopify ShopifyFetcher, airtable AirtableBatcher, orders OrderStore, jobs JobStore, log *logger.Logger, cfg SyncConfig) *SyncService {
	if cfg.PageSize == 0 {
		cfg.PageSize = 150
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = 200 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &SyncService{
		shopify:  shopify,
		airtable: airtable,
		orders:   orders,
		jobs:     jobs,
		logger:   log,
		cfg:      cfg,
	}
}

// SyncResult is the outcome of one full sync cycle.
type SyncResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	JobID   string         `json:"job_id,omitempty"`
	Summary domain.JSONMap `json:"summary,omitempty"`
	Error   *client.Error  `json:"error,omitempty"`
}

// PushOutcome reports the Airtable push sub-procedure. Chunk-level failures
// are accumulated here, never raised; the push stage as a whole fails only if
// the store itself cannot be read.
type PushOutcome struct {
	CreatedRecords int            `json:"created_records"`
	UpdatedRecords int            `json:"updated_records"`
	CreateBatches  int            `json:"create_batches"`
	UpdateBatches  int            `json:"update_batches"`
	ChunkErrors    []client.Error `json:"chunk_errors,omitempty"`
}

// RunFullSync executes one complete cycle: create the job record, fetch all
// orders from Shopify, upsert them into the store, then push create/update
// batches to Airtable. Each stage boundary is persisted on the job.
// Parameters:
//   - ctx: context for cancellation; the caller may impose a per-cycle deadline.
//   - triggeredBy: what started this cycle.
//   - metadata: free-form metadata stored on the job.
// Returns:
//   - *SyncResult: cycle outcome; Success is false on any stage failure.
//   - error: non-nil only when the job record itself cannot be persisted.
func (s *SyncService) RunFullSync(ctx context.Context, triggeredBy domain.TriggerOrigin, metadata domain.JSONMap) (*SyncResult, error) {
	job, err := s.jobs.Create(ctx, domain.JobTypeFullSync, triggeredBy, s.cfg.MaxRetries, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}

	ctx = logger.SetJobID(ctx, job.ID)
	log := logger.FromContext(ctx)
	log.WithField(logger.FieldTrigger, string(triggeredBy)).Info("Starting sync job")

	job.MarkRunning(time.Now())
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}

	// Stage 1: fetch all orders from Shopify.
	fetch, cerr := s.shopify.FetchAllOrders(ctx, s.cfg.PageSize)
	if cerr != nil {
		return s.failJob(ctx, job, domain.StageShopifyFetch, cerr)
	}
	job.ShopifyOrdersFetched = fetch.TotalCount
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job after fetch: %w", err)
	}
	log.WithField(logger.FieldCount, fetch.TotalCount).Info("Fetched orders from Shopify")

	// Stage 2: upsert into the intermediate store. Per-record failures are
	// absorbed into the outcome; only a batch-level error fails the stage.
	outcome, err := s.orders.UpsertBatch(ctx, fetch.Orders)
	if err != nil {
		return s.failJob(ctx, job, domain.StageDatabaseUpsert, &client.Error{
			Type:    client.ErrUnknown,
			Message: err.Error(),
			Err:     err,
		})
	}
	job.ShopifyOrdersUpserted = outcome.UpsertedCount()
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job after upsert: %w", err)
	}
	log.WithFields(logger.Fields{
		"created": outcome.Created,
		"updated": outcome.Updated,
		"errors":  outcome.Errors,
	}).Info("Upserted orders to database")

	// Stage 3: push create/update batches to Airtable.
	push, err := s.syncAirtable(ctx)
	if err != nil {
		return s.failJob(ctx, job, domain.StageAirtableSync, &client.Error{
			Type:    client.ErrUnknown,
			Message: err.Error(),
			Err:     err,
		})
	}
	job.AirtableRecordsCreated = push.CreatedRecords
	job.AirtableRecordsUpdated = push.UpdatedRecords
	if len(push.ChunkErrors) > 0 {
		for _, ce := range push.ChunkErrors {
			job.AddError(domain.JobError{
				Stage:   domain.StageAirtableSync,
				Message: ce.Message,
				Detail:  string(ce.Type),
			})
		}
	}

	now := time.Now()
	summary := domain.JSONMap{
		"shopifyOrdersFetched":   job.ShopifyOrdersFetched,
		"shopifyOrdersUpserted":  job.ShopifyOrdersUpserted,
		"airtableRecordsCreated": job.AirtableRecordsCreated,
		"airtableRecordsUpdated": job.AirtableRecordsUpdated,
	}
	if job.StartedAt != nil {
		summary["totalDurationMs"] = now.Sub(*job.StartedAt).Milliseconds()
	}
	job.MarkCompleted(now, summary)
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job completed: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldCount: job.ShopifyOrdersFetched,
	}).WithDuration(job.Duration).Info(ctx, "Sync job completed: created=%d updated=%d", job.AirtableRecordsCreated, job.AirtableRecordsUpdated)

	return &SyncResult{
		Success: true,
		Message: "Full sync completed successfully",
		JobID:   job.ID,
		Summary: summary,
	}, nil
}

// failJob records the stage error, moves the job to its terminal failed
// state, and converts the failure into a non-success result.
func (s *SyncService) failJob(ctx context.Context, job *domain.SyncJob, stage string, cerr *client.Error) (*SyncResult, error) {
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldStage: stage,
	}).WithError(cerr).Error("Sync stage failed")

	job.MarkFailed(time.Now(), domain.JobError{
		Stage:   stage,
		Message: cerr.Message,
		Detail:  cerr.Error(),
	})
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to mark job failed: %w", err)
	}

	message := cerr.UserMessage
	if message == "" {
		message = cerr.Message
	}
	return &SyncResult{
		Success: false,
		Message: message,
		JobID:   job.ID,
		Error:   cerr,
	}, nil
}

// syncAirtable partitions all stored orders into to-create (no downstream id)
// and to-update (back-reference present), chunks each partition to the
// Airtable batch ceiling, and pushes the chunks sequentially with a fixed
// inter-chunk delay. Newly created records are resolved back to their
// originating orders through the composed order number and back-referenced.
func (s *SyncService) syncAirtable(ctx context.Context) (*PushOutcome, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var toCreate, toUpdate []client.Record
	for i := range orders {
		order := &orders[i]
		if order.AirtableRecordID != nil && *order.AirtableRecordID != "" {
			toUpdate = append(toUpdate, ToUpdateRecord(order, now))
		} else {
			toCreate = append(toCreate, ToCreateRecord(order, now))
		}
	}

	outcome := &PushOutcome{
		CreatedRecords: len(toCreate),
		UpdatedRecords: len(toUpdate),
	}
	log := logger.FromContext(ctx)

	createChunks := chunkRecords(toCreate, client.MaxBatchSize)
	outcome.CreateBatches = len(createChunks)
	for i, chunk := range createChunks {
		log.WithFields(logger.Fields{
			"batch": i + 1,
			"total": len(createChunks),
			"size":  len(chunk),
		}).Info("Pushing create batch to Airtable")

		result, cerr := s.airtable.CreateBatch(ctx, s.cfg.TableName, chunk)
		if cerr != nil {
			outcome.ChunkErrors = append(outcome.ChunkErrors, *cerr)
		} else {
			s.storeBackReferences(ctx, result.Records)
		}

		if i < len(createChunks)-1 {
			if err := sleepCtx(ctx, s.cfg.BatchDelay); err != nil {
				return outcome, err
			}
		}
	}

	updateChunks := chunkRecords(toUpdate, client.MaxBatchSize)
	outcome.UpdateBatches = len(updateChunks)
	for i, chunk := range updateChunks {
		log.WithFields(logger.Fields{
			"batch": i + 1,
			"total": len(updateChunks),
			"size":  len(chunk),
		}).Info("Pushing update batch to Airtable")

		if _, cerr := s.airtable.UpsertBatch(ctx, s.cfg.TableName, chunk); cerr != nil {
			outcome.ChunkErrors = append(outcome.ChunkErrors, *cerr)
		}

		if i < len(updateChunks)-1 {
			if err := sleepCtx(ctx, s.cfg.BatchDelay); err != nil {
				return outcome, err
			}
		}
	}

	return outcome, nil
}

// storeBackReferences resolves each created Airtable record to its
// originating order via the legacy id embedded in the order number and
// persists the downstream record id. Resolution failures are logged, not
// raised: the next cycle will simply re-create the record.
func (s *SyncService) storeBackReferences(ctx context.Context, records []client.Record) {
	log := logger.FromContext(ctx)
	for _, rec := range records {
		number, _ := rec.Fields[ColOrderNumber].(string)
		legacyID := ExtractLegacyID(number)
		if legacyID == "" {
			log.WithField("order_number", number).Warn("Created record has no extractable legacy id")
			continue
		}
		order, err := s.orders.GetByLegacyResourceID(ctx, legacyID)
		if err != nil {
			log.WithField("legacy_id", legacyID).WithError(err).Warn("Failed to resolve order for created record")
			continue
		}
		if err := s.orders.SetAirtableRef(ctx, order.ShopifyID, rec.ID, s.cfg.TableName); err != nil {
			log.WithField(logger.FieldOrderID, order.ShopifyID).WithError(err).Error("Failed to store Airtable back-reference")
		}
	}
}

// RetryJob transitions a failed job back to pending and re-runs the sync.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: the failed job to retry.
// Returns:
//   - *SyncResult: outcome of the re-run cycle.
//   - error: non-nil if the job is missing or not retryable.
func (s *SyncService) RetryJob(ctx context.Context, jobID string) (*SyncResult, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job not found: %w", err)
	}
	if !job.CanRetry() {
		return nil, fmt.Errorf("job %s cannot be retried (status %s, retry %d/%d)", job.ID, job.Status, job.RetryCount, job.MaxRetries)
	}

	job.IncrementRetry(time.Now())
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist retry transition: %w", err)
	}

	return s.RunFullSync(ctx, job.TriggeredBy, domain.JSONMap{"retry_of": job.ID})
}

// chunkRecords splits records into groups of at most size.
func chunkRecords(records []client.Record, size int) [][]client.Record {
	var chunks [][]client.Record
	for len(records) > 0 {
		n := size
		if len(records) < n {
			n = len(records)
		}
		chunks = append(chunks, records[:n])
		records = records[n:]
	}
	return chunks
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

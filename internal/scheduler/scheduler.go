// Package scheduler owns the cron-driven execution of sync cycles. It wraps a
// robfig/cron instance and enforces the single-flight rule: at most one sync
// cycle runs at a time, regardless of whether the trigger is a schedule tick
// or a manual request.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vivanti/ordersync/internal/domain"
	"github.com/vivanti/ordersync/internal/logger"
	"github.com/vivanti/ordersync/internal/service"
)

// SyncRunner is the slice of the sync service the scheduler needs.
type SyncRunner interface {
	RunFullSync(ctx context.Context, triggeredBy domain.TriggerOrigin, metadata domain.JSONMap) (*service.SyncResult, error)
	RetryJob(ctx context.Context, jobID string) (*service.SyncResult, error)
}

// RetryLister lists failed jobs eligible for the retry sweep.
type RetryLister interface {
	Retryable(ctx context.Context) ([]domain.SyncJob, error)
}

// Config holds scheduler settings.
type Config struct {
	// SyncCron is the cron expression for the full sync cycle.
	SyncCron string
	// RetryCron is the cron expression for the failed-job retry sweep.
	RetryCron string
	// CycleTimeout bounds one sync cycle; zero means no deadline.
	CycleTimeout time.Duration
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Running     bool       `json:"running"`
	Syncing     bool       `json:"syncing"`
	SyncCron    string     `json:"sync_cron"`
	RetryCron   string     `json:"retry_cron"`
	NextSyncAt  *time.Time `json:"next_sync_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// Scheduler drives scheduled sync cycles and the retry sweep.
type Scheduler struct {
	cron   *cron.Cron
	runner SyncRunner
	jobs   RetryLister
	logger *logger.Logger
	cfg    Config

	mu         sync.Mutex
	started    bool
	syncEntry  cron.EntryID
	retryEntry cron.EntryID

	// flight guards the single-flight rule for sync cycles.
	flight  sync.Mutex
	syncing bool
}

// New creates a scheduler. Entries are registered on Start, not here.
func New(runner SyncRunner, jobs RetryLister, log *logger.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		jobs:   jobs,
		logger: log,
		cfg:    cfg,
	}
}

// Start registers the cron entries and starts the ticker. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	var err error
	s.syncEntry, err = s.cron.AddFunc(s.cfg.SyncCron, s.runScheduledSync)
	if err != nil {
		return fmt.Errorf("invalid sync cron expression %q: %w", s.cfg.SyncCron, err)
	}
	if s.cfg.RetryCron != "" {
		s.retryEntry, err = s.cron.AddFunc(s.cfg.RetryCron, s.runRetrySweep)
		if err != nil {
			return fmt.Errorf("invalid retry cron expression %q: %w", s.cfg.RetryCron, err)
		}
	}

	s.cron.Start()
	s.started = true
	s.logger.WithFields(logger.Fields{
		"sync_cron":  s.cfg.SyncCron,
		"retry_cron": s.cfg.RetryCron,
	}).Info("Scheduler started")
	return nil
}

// Stop halts the ticker. An in-flight sync cycle is allowed to finish; only
// future ticks are suppressed. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	// Stop suppresses future ticks without waiting for an in-flight cycle.
	s.cron.Stop()
	s.cron.Remove(s.syncEntry)
	if s.retryEntry != 0 {
		s.cron.Remove(s.retryEntry)
	}
	s.started = false
	s.logger.Info("Scheduler stopped")
}

// Status reports whether the ticker is running, whether a cycle is in flight,
// and the next fire times.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:   s.started,
		Syncing:   s.isSyncing(),
		SyncCron:  s.cfg.SyncCron,
		RetryCron: s.cfg.RetryCron,
	}
	if s.started {
		if next := s.cron.Entry(s.syncEntry).Next; !next.IsZero() {
			st.NextSyncAt = &next
		}
		if s.retryEntry != 0 {
			if next := s.cron.Entry(s.retryEntry).Next; !next.IsZero() {
				st.NextRetryAt = &next
			}
		}
	}
	return st
}

// TriggerManualSync runs a sync cycle immediately on the caller's goroutine.
// Parameters:
//   - ctx: request context; a cycle timeout is layered on top if configured.
//   - metadata: free-form metadata recorded on the job.
// Returns:
//   - *service.SyncResult: cycle outcome.
//   - error: non-nil if a cycle is already in flight or the job record fails.
func (s *Scheduler) TriggerManualSync(ctx context.Context, metadata domain.JSONMap) (*service.SyncResult, error) {
	if !s.acquireFlight() {
		return nil, ErrSyncInProgress
	}
	defer s.releaseFlight()

	ctx, cancel := s.cycleContext(ctx)
	defer cancel()
	return s.runner.RunFullSync(ctx, domain.TriggerManual, metadata)
}

// ErrSyncInProgress is returned when a trigger arrives while a cycle is
// already running.
var ErrSyncInProgress = fmt.Errorf("a sync cycle is already in progress")

// runScheduledSync is the cron entry for full sync cycles. A tick that fires
// while a cycle is still running is skipped, not queued.
func (s *Scheduler) runScheduledSync() {
	if !s.acquireFlight() {
		s.logger.Warn("Skipping scheduled sync: previous cycle still running")
		return
	}
	defer s.releaseFlight()

	ctx, cancel := s.cycleContext(context.Background())
	defer cancel()

	result, err := s.runner.RunFullSync(ctx, domain.TriggerScheduled, nil)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled sync failed to run")
		return
	}
	if !result.Success {
		s.logger.WithField(logger.FieldJobID, result.JobID).Warn("Scheduled sync completed with failure")
	}
}

// runRetrySweep retries each eligible failed job sequentially. One job's
// failure never stops the sweep, and each retry is itself a full cycle under
// the single-flight guard.
func (s *Scheduler) runRetrySweep() {
	ctx, cancel := s.cycleContext(context.Background())
	defer cancel()

	jobs, err := s.jobs.Retryable(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Retry sweep failed to list jobs")
		return
	}
	if len(jobs) == 0 {
		return
	}
	s.logger.WithField(logger.FieldCount, len(jobs)).Info("Retry sweep found failed jobs")

	for _, job := range jobs {
		if !s.acquireFlight() {
			s.logger.Warn("Skipping retry sweep: a sync cycle is in progress")
			return
		}
		result, err := s.runner.RetryJob(ctx, job.ID)
		s.releaseFlight()

		if err != nil {
			s.logger.WithField(logger.FieldJobID, job.ID).WithError(err).Error("Job retry failed to run")
			continue
		}
		if !result.Success {
			s.logger.WithField(logger.FieldJobID, job.ID).Warn("Job retry completed with failure")
		}
	}
}

func (s *Scheduler) acquireFlight() bool {
	s.flight.Lock()
	defer s.flight.Unlock()
	if s.syncing {
		return false
	}
	s.syncing = true
	return true
}

func (s *Scheduler) releaseFlight() {
	s.flight.Lock()
	s.syncing = false
	s.flight.Unlock()
}

func (s *Scheduler) isSyncing() bool {
	s.flight.Lock()
	defer s.flight.Unlock()
	return s.syncing
}

func (s *Scheduler) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CycleTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.CycleTimeout)
	}
	return context.WithCancel(ctx)
}

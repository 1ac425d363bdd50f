package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the sync scheduler
type SyncSchedulerConfig struct {
	// Workers is the number of concurrent jobs across all keys
	Workers int
	// QueueSize is the capacity of the pending job queue
	QueueSize int
	// RunBudget is the maximum time a job can run
	RunBudget time.Duration
	// LaneDepth is the number of jobs that may wait behind the running job of one key
	LaneDepth int
	// RetryAttempts is the number of retries for transient failures of non-scheduled jobs
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// HistorySize is the number of finished jobs kept for the status endpoint
	HistorySize int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Workers:         4,
		QueueSize:       256,
		RunBudget:       10 * time.Minute,
		LaneDepth:       32,
		RetryAttempts:   2,
		RetryDelay:      time.Minute,
		HistorySize:     100,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.RunBudget <= 0 || c.LaneDepth <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.HistorySize < 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts > 0 && c.RetryDelay <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// JobObserver receives every finished job (metrics)
type JobObserver interface {
	RecordJob(ctx context.Context, job *SyncJob)
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// SyncScheduler runs sync jobs on a bounded worker pool.
// Jobs of the same key never overlap: a job whose key is busy waits in the key's
// lane and runs right after the current one, without holding a worker meanwhile.
type SyncScheduler struct {
	config   SyncSchedulerConfig
	executor SyncExecutor
	lanes    *KeyLanes
	observer JobObserver
	logger   *zap.Logger

	jobs      chan *SyncJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	retries   map[uuid.UUID]*time.Timer

	// Job history for monitoring (in-memory, limited size)
	historyMu sync.RWMutex
	history   []SyncJob
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, executor SyncExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		config:   config,
		executor: executor,
		lanes:    NewKeyLanes(config.LaneDepth),
		logger:   logger.Named("sync_scheduler"),
		retries:  make(map[uuid.UUID]*time.Timer),
		history:  make([]SyncJob, 0, config.HistorySize),
	}, nil
}

// SetObserver registers a job observer; call before Start
func (s *SyncScheduler) SetObserver(o JobObserver) {
	s.observer = o
}

// Lanes exposes the per-key lanes for status reporting
func (s *SyncScheduler) Lanes() *KeyLanes {
	return s.lanes
}

// Start starts the worker pool
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.jobs = make(chan *SyncJob, s.config.QueueSize)
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("run_budget", s.config.RunBudget),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs until ctx ends
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for id, t := range s.retries {
		t.Stop()
		delete(s.retries, id)
	}
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Sync scheduler stop timed out, running jobs cancelled")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// SubmitJob enqueues a job without blocking. It refuses jobs of a key whose lane is full
// so callers can report back pressure instead of losing the work later.
func (s *SyncScheduler) SubmitJob(job *SyncJob) error {
	if job == nil || job.Key.Validate() != nil || !job.Resource.IsValid() {
		return ErrInvalidJob
	}
	if s.lanes.Full(job.Key) {
		return ErrLaneFull
	}
	if job.MaxRetries == 0 && job.Trigger != TriggerScheduled {
		job.MaxRetries = s.config.RetryAttempts
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Sync job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("tenant_id", job.Key.TenantID.String()),
			zap.String("marketplace", job.Key.Marketplace.String()),
			zap.String("resource", job.Resource.String()),
			zap.String("trigger", string(job.Trigger)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob runs job when its key is free, otherwise leaves it in the key's lane.
// The owning worker then drains the lane before releasing the key.
func (s *SyncScheduler) processJob(ctx context.Context, job *SyncJob, workerID int) {
	verdict, pending := s.lanes.Enter(job)
	switch verdict {
	case LaneQueued:
		s.jobLogger(job, workerID).Debug("Sync job waiting for its key", zap.Int("pending", s.lanes.Pending(job.Key)))
		return
	case LaneCoalesced:
		job.Skip(ErrSyncAlreadyPending.Error())
		s.jobLogger(job, workerID).Info("Sync job skipped", zap.String("pending_job_id", pending.ID.String()))
		s.finish(ctx, job)
		return
	case LaneFull:
		job.Complete(nil, ErrLaneFull)
		log := s.jobLogger(job, workerID)
		log.Warn("Sync job rejected by its key lane", zap.Error(ErrLaneFull))
		s.finish(ctx, job)
		if job.ShouldRetry(ErrLaneFull) {
			s.scheduleRetry(job, log)
		}
		return
	}

	for job != nil {
		if ctx.Err() != nil {
			job.Skip("scheduler stopped")
			s.finish(ctx, job)
		} else {
			s.runJob(ctx, job, workerID)
		}
		job = s.lanes.Leave(job.Key)
	}
}

func (s *SyncScheduler) jobLogger(job *SyncJob, workerID int) *zap.Logger {
	return s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.Key.TenantID.String()),
		zap.String("marketplace", job.Key.Marketplace.String()),
		zap.String("resource", job.Resource.String()),
		zap.String("external_id", job.ExternalID),
		zap.String("trigger", string(job.Trigger)),
	)
}

// runJob executes a job whose key is owned by the calling worker
func (s *SyncScheduler) runJob(ctx context.Context, job *SyncJob, workerID int) {
	log := s.jobLogger(job, workerID)
	job.Start()
	log.Info("Processing sync job")

	jobCtx, cancel := context.WithTimeout(logger.WithJob(ctx, job.ID.String(), string(job.Trigger)), s.config.RunBudget)
	result, err := s.executor.Execute(jobCtx, job)
	cancel()

	job.Complete(result, err)
	if err != nil {
		log.Error("Sync job failed",
			zap.String("error_kind", job.ErrorKind),
			zap.Int("imported", job.Imported),
			zap.Int("updated", job.Updated),
			zap.Error(err),
		)
		s.finish(ctx, job)
		if job.ShouldRetry(err) {
			s.scheduleRetry(job, log)
		}
		return
	}

	log.Info("Sync job completed",
		zap.String("status", string(job.Status)),
		zap.Int("imported", job.Imported),
		zap.Int("updated", job.Updated),
		zap.Int("failed", job.Failed),
		zap.Int("pages", job.Pages),
		zap.Duration("duration", job.Duration()),
	)
	s.finish(ctx, job)
}

func (s *SyncScheduler) scheduleRetry(job *SyncJob, log *zap.Logger) {
	delay := job.ScheduleRetry(s.config.RetryDelay)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.retries[job.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.retries, job.ID)
		s.mu.Unlock()
		if err := s.SubmitJob(job); err != nil {
			log.Warn("Failed to re-queue sync job for retry", zap.Error(err))
		}
	})
	log.Info("Sync job scheduled for retry",
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Duration("delay", delay),
	)
}

func (s *SyncScheduler) finish(ctx context.Context, job *SyncJob) {
	s.addToHistory(job)
	if s.observer != nil {
		s.observer.RecordJob(ctx, job)
	}
}

// addToHistory adds a snapshot of a finished job to history
func (s *SyncScheduler) addToHistory(job *SyncJob) {
	if s.config.HistorySize == 0 {
		return
	}
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]SyncJob{*job}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}

// GetJobHistory returns recent finished jobs, newest first
func (s *SyncScheduler) GetJobHistory(limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]SyncJob, limit)
	copy(result, s.history[:limit])
	return result
}

// GetJobHistoryByKey returns recent finished jobs of one tenant/marketplace
func (s *SyncScheduler) GetJobHistoryByKey(key integration.Key, limit int) []SyncJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]SyncJob, 0)
	for _, job := range s.history {
		if job.Key != key {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

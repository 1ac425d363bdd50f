package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// SyncJobStatus represents the status of a sync job
type SyncJobStatus string

const (
	SyncJobStatusPending SyncJobStatus = "PENDING"
	SyncJobStatusRunning SyncJobStatus = "RUNNING"
	SyncJobStatusSuccess SyncJobStatus = "SUCCESS"
	SyncJobStatusPartial SyncJobStatus = "PARTIAL"
	SyncJobStatusFailed  SyncJobStatus = "FAILED"
	SyncJobStatusSkipped SyncJobStatus = "SKIPPED"
)

// JobTrigger tells what enqueued a job
type JobTrigger string

const (
	TriggerScheduled JobTrigger = "scheduled"
	TriggerWebhook   JobTrigger = "webhook"
	TriggerManual    JobTrigger = "manual"
)

// SyncJob is one unit of work for the per-key execution lane.
// An empty ExternalID means a full listing run of Resource.
type SyncJob struct {
	ID         uuid.UUID
	Key        integration.Key
	Resource   integration.ResourceKind
	ExternalID string
	// Since overrides the cursor watermark of an order listing when non-zero
	Since       time.Time
	Trigger     JobTrigger
	Status      SyncJobStatus
	Error       string
	ErrorKind   string
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// Sync results
	Imported       int
	Updated        int
	Failed         int
	Pages          int
	CursorAdvanced bool
	Warnings       []string
}

// NewSyncJob creates a full listing job
func NewSyncJob(key integration.Key, resource integration.ResourceKind, trigger JobTrigger) *SyncJob {
	return &SyncJob{
		ID:         uuid.New(),
		Key:        key,
		Resource:   resource,
		Trigger:    trigger,
		Status:     SyncJobStatusPending,
		EnqueuedAt: time.Now(),
	}
}

// NewResourceSyncJob creates a single-resource job
func NewResourceSyncJob(key integration.Key, resource integration.ResourceKind, externalID string, trigger JobTrigger) *SyncJob {
	job := NewSyncJob(key, resource, trigger)
	job.ExternalID = externalID
	return job
}

// IsSingleResource reports whether the job resyncs one resource only
func (j *SyncJob) IsSingleResource() bool {
	return j.ExternalID != ""
}

// Start marks the job as running
func (j *SyncJob) Start() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
	j.Error = ""
	j.ErrorKind = ""
}

// Complete records the result of a run. A run error marks the job failed
// while keeping the partial counts.
func (j *SyncJob) Complete(result *integration.SyncResult, err error) {
	now := time.Now()
	j.CompletedAt = &now
	if result != nil {
		j.Imported = result.Imported
		j.Updated = result.Updated
		j.Failed = len(result.Errors)
		j.Pages = result.Pages
		j.CursorAdvanced = result.CursorAdvanced
		j.Warnings = result.Warnings
	}

	switch {
	case err != nil:
		j.Status = SyncJobStatusFailed
		j.Error = err.Error()
		j.ErrorKind = integration.ErrorKind(err)
		if errors.Is(err, context.DeadlineExceeded) {
			j.ErrorKind = "timeout"
		}
	case j.Failed == 0:
		j.Status = SyncJobStatusSuccess
	case j.Imported+j.Updated > 0:
		j.Status = SyncJobStatusPartial
	default:
		j.Status = SyncJobStatusFailed
	}
}

// Skip marks a job that never ran
func (j *SyncJob) Skip(reason string) {
	now := time.Now()
	j.Status = SyncJobStatusSkipped
	j.CompletedAt = &now
	j.Error = reason
}

// ShouldRetry returns true if a failed job may be retried.
// Throttling, transient failures and a full key lane are retried; authentication failures are terminal.
func (j *SyncJob) ShouldRetry(err error) bool {
	if j.Status != SyncJobStatusFailed || j.RetryCount >= j.MaxRetries || err == nil {
		return false
	}
	return errors.Is(err, integration.ErrTransientNetwork) ||
		errors.Is(err, integration.ErrRateLimitExceeded) ||
		errors.Is(err, ErrLaneFull)
}

// ScheduleRetry schedules the job for retry with exponential backoff
func (j *SyncJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = SyncJobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	next := time.Now().Add(delay)
	j.NextRetryAt = &next
	return delay
}

// Duration returns how long the job ran
func (j *SyncJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// ---------------------------------------------------------------------------
// SyncExecutor Interface
// ---------------------------------------------------------------------------

// SyncExecutor runs sync jobs against the reconciliation engine
type SyncExecutor interface {
	Execute(ctx context.Context, job *SyncJob) (*integration.SyncResult, error)
}

// SyncExecutorFunc adapts a function to SyncExecutor
type SyncExecutorFunc func(ctx context.Context, job *SyncJob) (*integration.SyncResult, error)

// Execute calls f(ctx, job)
func (f SyncExecutorFunc) Execute(ctx context.Context, job *SyncJob) (*integration.SyncResult, error) {
	return f(ctx, job)
}

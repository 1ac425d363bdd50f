package telemetry

import (
	"context"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics records token, client, sync run and job metrics.
// It satisfies the observer interfaces of the token manager, the API client,
// the sync service and the scheduler.
type SyncMetrics struct {
	logger *zap.Logger

	tokenRefreshTotal    *Counter
	tokenRefreshDuration *Histogram

	clientRetryTotal   *Counter
	rateLimitWait      *Histogram
	rateLimitWaitTotal *Counter

	syncRunTotal     *Counter
	syncItemTotal    *Counter
	syncWarningTotal *Counter
	syncPageTotal    *Counter
	syncRunDuration  *Histogram

	jobTotal    *Counter
	jobDuration *Histogram
}

// SyncMetricsConfig holds configuration for SyncMetrics.
type SyncMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSyncMetrics creates every instrument on cfg.Meter.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SyncMetrics{logger: logger}
	var err error

	// Token lifecycle
	if m.tokenRefreshTotal, err = NewCounter(cfg.Meter,
		"marketsync_token_refresh_total",
		"Total number of token refresh attempts by outcome",
		"{refresh}",
	); err != nil {
		return nil, err
	}
	if m.tokenRefreshDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketsync_token_refresh_duration_seconds",
		Description: "Duration of token refreshes including backoff",
		Unit:        "s",
		Boundaries:  RefreshDurationBuckets,
	}); err != nil {
		return nil, err
	}

	// Client retries and pacing
	if m.clientRetryTotal, err = NewCounter(cfg.Meter,
		"marketsync_client_retry_total",
		"Total number of marketplace API request retries by reason",
		"{retry}",
	); err != nil {
		return nil, err
	}
	if m.rateLimitWait, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketsync_client_rate_limit_wait_seconds",
		Description: "Time spent waiting on marketplace rate limits",
		Unit:        "s",
		Boundaries:  WaitBuckets,
	}); err != nil {
		return nil, err
	}
	if m.rateLimitWaitTotal, err = NewCounter(cfg.Meter,
		"marketsync_client_rate_limit_wait_total",
		"Total number of rate-limit waits",
		"{wait}",
	); err != nil {
		return nil, err
	}

	// Sync runs
	if m.syncRunTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_run_total",
		"Total number of sync runs by outcome",
		"{run}",
	); err != nil {
		return nil, err
	}
	if m.syncItemTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_item_total",
		"Total number of synced items by outcome",
		"{item}",
	); err != nil {
		return nil, err
	}
	if m.syncWarningTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_warning_total",
		"Total number of non-fatal sync warnings",
		"{warning}",
	); err != nil {
		return nil, err
	}
	if m.syncPageTotal, err = NewCounter(cfg.Meter,
		"marketsync_sync_page_total",
		"Total number of listing pages attempted",
		"{page}",
	); err != nil {
		return nil, err
	}
	if m.syncRunDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketsync_sync_run_duration_seconds",
		Description: "Duration of sync runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}

	// Scheduler jobs
	if m.jobTotal, err = NewCounter(cfg.Meter,
		"marketsync_job_total",
		"Total number of finished sync jobs by status",
		"{job}",
	); err != nil {
		return nil, err
	}
	if m.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "marketsync_job_duration_seconds",
		Description: "Duration of sync jobs from start to completion",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}

	m.logger.Info("Sync metrics initialized")
	return m, nil
}

func keyAttrs(key integration.Key, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2+len(extra))
	attrs = append(attrs,
		AttrTenantID.String(key.TenantID.String()),
		AttrMarketplace.String(key.Marketplace.String()),
	)
	return append(attrs, extra...)
}

// RecordTokenRefresh records one refresh attempt of key.
func (m *SyncMetrics) RecordTokenRefresh(ctx context.Context, key integration.Key, outcome string, duration time.Duration) {
	attrs := keyAttrs(key, AttrOutcome.String(outcome))
	m.tokenRefreshTotal.Inc(ctx, attrs...)
	m.tokenRefreshDuration.RecordDuration(ctx, duration, attrs...)
}

// RecordClientRetry records one retried API request.
func (m *SyncMetrics) RecordClientRetry(ctx context.Context, key integration.Key, reason string) {
	m.clientRetryTotal.Inc(ctx, keyAttrs(key, AttrReason.String(reason))...)
}

// RecordRateLimitWait records a sleep imposed by the rate limit policy.
func (m *SyncMetrics) RecordRateLimitWait(ctx context.Context, key integration.Key, wait time.Duration) {
	attrs := keyAttrs(key)
	m.rateLimitWaitTotal.Inc(ctx, attrs...)
	m.rateLimitWait.RecordDuration(ctx, wait, attrs...)
}

// RecordSyncRun records the outcome of one listing run.
func (m *SyncMetrics) RecordSyncRun(ctx context.Context, result *integration.SyncResult, err error) {
	if result == nil {
		return
	}
	resource := AttrResource.String(result.Resource.String())

	outcome := "success"
	switch {
	case err != nil:
		outcome = "aborted"
	case len(result.Errors) > 0:
		outcome = "partial"
	}
	runAttrs := keyAttrs(result.Key, resource, AttrOutcome.String(outcome))
	if err != nil {
		runAttrs = append(runAttrs, AttrErrorKind.String(integration.ErrorKind(err)))
	}
	m.syncRunTotal.Inc(ctx, runAttrs...)
	m.syncRunDuration.RecordDuration(ctx, result.Duration(), keyAttrs(result.Key, resource, AttrOutcome.String(outcome))...)

	if result.Pages > 0 {
		m.syncPageTotal.Add(ctx, int64(result.Pages), keyAttrs(result.Key, resource)...)
	}
	if result.Imported > 0 {
		m.syncItemTotal.Add(ctx, int64(result.Imported), keyAttrs(result.Key, resource, AttrOutcome.String("imported"))...)
	}
	if result.Updated > 0 {
		m.syncItemTotal.Add(ctx, int64(result.Updated), keyAttrs(result.Key, resource, AttrOutcome.String("updated"))...)
	}
	for _, itemErr := range result.Errors {
		m.syncItemTotal.Inc(ctx, keyAttrs(result.Key, resource,
			AttrOutcome.String("failed"),
			AttrErrorKind.String(itemErr.Kind),
		)...)
	}
	if len(result.Warnings) > 0 {
		m.syncWarningTotal.Add(ctx, int64(len(result.Warnings)), keyAttrs(result.Key, resource)...)
	}
}

// RecordJob records a finished scheduler job.
func (m *SyncMetrics) RecordJob(ctx context.Context, job *scheduler.SyncJob) {
	if job == nil {
		return
	}
	attrs := keyAttrs(job.Key,
		AttrResource.String(job.Resource.String()),
		AttrTrigger.String(string(job.Trigger)),
		AttrJobStatus.String(string(job.Status)),
	)
	m.jobTotal.Inc(ctx, attrs...)
	if job.StartedAt != nil && job.CompletedAt != nil {
		m.jobDuration.RecordDuration(ctx, job.CompletedAt.Sub(*job.StartedAt), attrs...)
	}
}

package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"go.uber.org/zap"
)

// JobSubmitter accepts sync jobs; *SyncScheduler implements it
type JobSubmitter interface {
	SubmitJob(job *SyncJob) error
}

// ---------------------------------------------------------------------------
// IntervalTriggerConfig
// ---------------------------------------------------------------------------

// IntervalTriggerConfig holds configuration for the interval trigger
type IntervalTriggerConfig struct {
	// CheckInterval is how often due keys are looked up
	CheckInterval time.Duration
	// OrdersInterval is the order sync period per key
	OrdersInterval time.Duration
	// ProductsInterval is the catalog sync period per key
	ProductsInterval time.Duration
}

// DefaultIntervalTriggerConfig returns default configuration
func DefaultIntervalTriggerConfig() IntervalTriggerConfig {
	return IntervalTriggerConfig{
		CheckInterval:    time.Minute,
		OrdersInterval:   15 * time.Minute,
		ProductsInterval: 30 * time.Minute,
	}
}

// Validate validates the configuration
func (c IntervalTriggerConfig) Validate() error {
	if c.CheckInterval <= 0 || c.OrdersInterval <= 0 || c.ProductsInterval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// IntervalTrigger
// ---------------------------------------------------------------------------

type scheduleKey struct {
	key      integration.Key
	resource integration.ResourceKind
}

// IntervalTrigger enqueues periodic sync jobs for every key with an active credential
type IntervalTrigger struct {
	config      IntervalTriggerConfig
	submitter   JobSubmitter
	credentials integration.CredentialStore
	logger      *zap.Logger
	now         func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	// Track last scheduled time per key and resource to avoid duplicate scheduling
	lastScheduledMu sync.RWMutex
	lastScheduled   map[scheduleKey]time.Time
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	config IntervalTriggerConfig,
	submitter JobSubmitter,
	credentials integration.CredentialStore,
	logger *zap.Logger,
) (*IntervalTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config:        config,
		submitter:     submitter,
		credentials:   credentials,
		logger:        logger.Named("interval_trigger"),
		now:           time.Now,
		lastScheduled: make(map[scheduleKey]time.Time),
	}, nil
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Duration("check_interval", t.config.CheckInterval),
		zap.Duration("orders_interval", t.config.OrdersInterval),
		zap.Duration("products_interval", t.config.ProductsInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	t.CheckAndSchedule(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckAndSchedule(ctx)
		}
	}
}

// CheckAndSchedule enqueues every due (key, resource) pair and returns how many jobs were submitted
func (t *IntervalTrigger) CheckAndSchedule(ctx context.Context) int {
	creds, err := t.credentials.ListActive(ctx)
	if err != nil {
		t.logger.Error("Failed to list active credentials", zap.Error(err))
		return 0
	}

	now := t.now()
	submitted := 0
	for _, cred := range creds {
		key := cred.Key()
		for _, resource := range []integration.ResourceKind{integration.ResourceOrders, integration.ResourceProducts} {
			if !t.isDue(key, resource, now) {
				continue
			}
			if err := t.submitter.SubmitJob(NewSyncJob(key, resource, TriggerScheduled)); err != nil {
				t.logger.Warn("Failed to schedule sync job",
					zap.String("tenant_id", key.TenantID.String()),
					zap.String("marketplace", key.Marketplace.String()),
					zap.String("resource", resource.String()),
					zap.Error(err),
				)
				continue
			}
			t.updateLastScheduled(key, resource, now)
			submitted++
		}
	}
	if submitted > 0 {
		t.logger.Debug("Scheduled sync jobs", zap.Int("jobs", submitted), zap.Int("keys", len(creds)))
	}
	return submitted
}

func (t *IntervalTrigger) interval(resource integration.ResourceKind) time.Duration {
	if resource == integration.ResourceProducts {
		return t.config.ProductsInterval
	}
	return t.config.OrdersInterval
}

func (t *IntervalTrigger) isDue(key integration.Key, resource integration.ResourceKind, now time.Time) bool {
	t.lastScheduledMu.RLock()
	last, ok := t.lastScheduled[scheduleKey{key, resource}]
	t.lastScheduledMu.RUnlock()
	return !ok || now.Sub(last) >= t.interval(resource)
}

func (t *IntervalTrigger) updateLastScheduled(key integration.Key, resource integration.ResourceKind, at time.Time) {
	t.lastScheduledMu.Lock()
	t.lastScheduled[scheduleKey{key, resource}] = at
	t.lastScheduledMu.Unlock()
}

// TriggerManualSync enqueues an immediate full sync of one resource.
// A non-zero since overrides the order cursor watermark.
func (t *IntervalTrigger) TriggerManualSync(ctx context.Context, key integration.Key, resource integration.ResourceKind, since time.Time) (*SyncJob, error) {
	job := NewSyncJob(key, resource, TriggerManual)
	job.Since = since
	return t.submitManual(ctx, job)
}

// TriggerManualResourceSync enqueues an immediate resync of a single order or item.
func (t *IntervalTrigger) TriggerManualResourceSync(ctx context.Context, key integration.Key, resource integration.ResourceKind, externalID string) (*SyncJob, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrInvalidJob
	}
	return t.submitManual(ctx, NewResourceSyncJob(key, resource, externalID, TriggerManual))
}

func (t *IntervalTrigger) submitManual(ctx context.Context, job *SyncJob) (*SyncJob, error) {
	if err := job.Key.Validate(); err != nil {
		return nil, err
	}
	if !job.Resource.IsValid() {
		return nil, integration.ErrInvalidResourceKind
	}
	cred, err := t.credentials.Get(ctx, job.Key)
	if err != nil {
		if errors.Is(err, integration.ErrCredentialNotFound) {
			return nil, ErrNoActiveCredentials
		}
		return nil, err
	}
	if !cred.IsActive() {
		return nil, ErrNoActiveCredentials
	}

	if err := t.submitter.SubmitJob(job); err != nil {
		return nil, err
	}
	t.logger.Info("Manual sync triggered",
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.Key.TenantID.String()),
		zap.String("marketplace", job.Key.Marketplace.String()),
		zap.String("resource", job.Resource.String()),
		zap.String("external_id", job.ExternalID),
	)
	return job, nil
}

// TriggerStats summarises the trigger state
type TriggerStats struct {
	IsRunning     bool                 `json:"is_running"`
	CheckInterval string               `json:"check_interval"`
	TrackedKeys   int                  `json:"tracked_keys"`
	LastScheduled map[string]time.Time `json:"last_scheduled"`
}

// Stats returns statistics about the trigger
func (t *IntervalTrigger) Stats() TriggerStats {
	t.mu.Lock()
	running := t.isRunning
	t.mu.Unlock()

	t.lastScheduledMu.RLock()
	defer t.lastScheduledMu.RUnlock()

	stats := TriggerStats{
		IsRunning:     running,
		CheckInterval: t.config.CheckInterval.String(),
		TrackedKeys:   len(t.lastScheduled),
		LastScheduled: make(map[string]time.Time, len(t.lastScheduled)),
	}
	for k, at := range t.lastScheduled {
		stats.LastScheduled[k.key.String()+":"+k.resource.String()] = at
	}
	return stats
}

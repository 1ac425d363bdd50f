package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// WebhookServiceConfig holds webhook receiver settings
type WebhookServiceConfig struct {
	// DedupeTTL is how long a delivery is remembered
	DedupeTTL time.Duration
	// FullResyncOnItem turns an item notification into a full catalog sync instead of a single-item resync
	FullResyncOnItem bool
	// ApplicationID, when set, drops notifications addressed to other applications
	ApplicationID string
}

// WebhookService validates, routes and deduplicates marketplace notifications.
// It never runs sync work itself: accepted notifications become scheduler jobs.
type WebhookService struct {
	credentials integration.CredentialStore
	deliveries  integration.DeliveryStore
	jobs        scheduler.JobSubmitter
	validate    *validator.Validate
	config      WebhookServiceConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewWebhookService creates a WebhookService
func NewWebhookService(
	credentials integration.CredentialStore,
	deliveries integration.DeliveryStore,
	jobs scheduler.JobSubmitter,
	config WebhookServiceConfig,
	logger *zap.Logger,
) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = time.Hour
	}
	return &WebhookService{
		credentials: credentials,
		deliveries:  deliveries,
		jobs:        jobs,
		validate:    validator.New(),
		config:      config,
		logger:      logger.Named("webhook_service"),
		now:         time.Now,
	}
}

// HandleWebhook acknowledges a notification and enqueues its sync work.
// Returned errors mean the marketplace should redeliver; every other outcome is an ack.
func (s *WebhookService) HandleWebhook(ctx context.Context, marketplace integration.MarketplaceCode, req *WebhookNotificationRequest) (*WebhookAck, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidNotification, err)
	}
	n := req.ToDomain(marketplace, s.now().UTC())
	if err := n.Validate(); err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String("marketplace", marketplace.String()),
		zap.String("topic", string(n.Topic)),
		zap.String("resource", n.Resource),
		zap.String("user_id", n.UserID),
	)

	if s.config.ApplicationID != "" && n.ApplicationID != "" && n.ApplicationID != s.config.ApplicationID {
		log.Debug("Notification for another application ignored", zap.String("application_id", n.ApplicationID))
		return &WebhookAck{Status: WebhookIgnored, Reason: "foreign application"}, nil
	}

	resource, ok := n.Topic.ResourceKind()
	if !ok {
		log.Debug("Unsupported topic ignored")
		return &WebhookAck{Status: WebhookIgnored, Reason: integration.ErrUnsupportedTopic.Error()}, nil
	}

	cred, err := s.credentials.FindByExternalUserID(ctx, marketplace, n.UserID)
	if errors.Is(err, integration.ErrCredentialNotFound) {
		log.Info("Notification for unknown seller ignored")
		return &WebhookAck{Status: WebhookIgnored, Reason: "unknown seller"}, nil
	}
	if err != nil {
		return nil, err
	}
	if !cred.IsActive() {
		log.Info("Notification for invalid credential ignored", zap.String("tenant_id", cred.TenantID.String()))
		return &WebhookAck{Status: WebhookIgnored, Reason: "credential requires re-authorization"}, nil
	}

	key := cred.Key()
	dedupeKey := n.DedupeKey(key)
	fresh, err := s.deliveries.MarkProcessed(ctx, dedupeKey, s.config.DedupeTTL)
	if err != nil {
		// Upserts are idempotent, so a dedupe outage only costs a redundant sync.
		log.Warn("Delivery dedupe unavailable, processing anyway", zap.Error(err))
		fresh = true
	}
	if !fresh {
		log.Debug("Duplicate notification acknowledged")
		return &WebhookAck{Status: WebhookDuplicate}, nil
	}

	job := s.jobFor(key, resource, n.ResourceID())
	if err := s.jobs.SubmitJob(job); err != nil {
		if ferr := s.deliveries.Forget(ctx, dedupeKey); ferr != nil {
			log.Warn("Failed to forget delivery after dispatch failure", zap.Error(ferr))
		}
		return nil, fmt.Errorf("dispatch webhook job: %w", err)
	}

	log.Info("Notification accepted",
		zap.String("tenant_id", key.TenantID.String()),
		zap.String("job_id", job.ID.String()),
	)
	return &WebhookAck{Status: WebhookAccepted, JobID: &job.ID}, nil
}

// jobFor builds the job of a notification. Item notifications resync only the item
// unless FullResyncOnItem is set.
func (s *WebhookService) jobFor(key integration.Key, resource integration.ResourceKind, externalID string) *scheduler.SyncJob {
	if resource == integration.ResourceProducts && s.config.FullResyncOnItem {
		return scheduler.NewSyncJob(key, resource, scheduler.TriggerWebhook)
	}
	return scheduler.NewResourceSyncJob(key, resource, externalID, scheduler.TriggerWebhook)
}

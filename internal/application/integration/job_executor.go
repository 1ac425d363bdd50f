package integration

import (
	"context"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// SyncJobExecutor runs scheduler jobs against the sync service
type SyncJobExecutor struct {
	service SyncService
}

// NewSyncJobExecutor creates a SyncJobExecutor
func NewSyncJobExecutor(service SyncService) *SyncJobExecutor {
	return &SyncJobExecutor{service: service}
}

// Execute dispatches a job to the matching sync operation
func (e *SyncJobExecutor) Execute(ctx context.Context, job *scheduler.SyncJob) (result *integration.SyncResult, err error) {
	attrs := append(telemetry.KeyAttributes(job.Key),
		telemetry.AttrResource.String(job.Resource.String()),
		telemetry.AttrTrigger.String(string(job.Trigger)),
		attribute.String("job.id", job.ID.String()),
	)
	ctx, span := telemetry.StartServiceSpan(ctx, "sync_job", job.Resource.String(), attrs...)
	defer func() { telemetry.EndSpan(span, err) }()

	return e.dispatch(ctx, job)
}

func (e *SyncJobExecutor) dispatch(ctx context.Context, job *scheduler.SyncJob) (*integration.SyncResult, error) {
	switch {
	case job.Resource == integration.ResourceOrders && job.IsSingleResource():
		return e.service.SyncOrder(ctx, job.Key, job.ExternalID)
	case job.Resource == integration.ResourceProducts && job.IsSingleResource():
		return e.service.SyncProduct(ctx, job.Key, job.ExternalID)
	case job.Resource == integration.ResourceOrders:
		return e.service.SyncOrders(ctx, job.Key.TenantID, job.Key.Marketplace, job.Since)
	case job.Resource == integration.ResourceProducts:
		return e.service.SyncProducts(ctx, job.Key.TenantID, job.Key.Marketplace)
	default:
		return nil, integration.ErrInvalidResourceKind
	}
}

// Ensure SyncJobExecutor implements scheduler.SyncExecutor
var _ scheduler.SyncExecutor = (*SyncJobExecutor)(nil)

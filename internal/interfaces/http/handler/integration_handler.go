package handler

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// defaultStaleAge matches the scheduled order sync period
	defaultStaleAge = 15 * time.Minute
)

// CredentialConnector connects marketplace accounts
type CredentialConnector interface {
	Authorize(ctx context.Context, key integration.Key, code string) (*appintegration.CredentialStatusResponse, error)
	Status(ctx context.Context, key integration.Key) (*appintegration.CredentialStatusResponse, error)
}

// ManualTrigger enqueues operator requested syncs
type ManualTrigger interface {
	TriggerManualSync(ctx context.Context, key integration.Key, resource integration.ResourceKind, since time.Time) (*scheduler.SyncJob, error)
	TriggerManualResourceSync(ctx context.Context, key integration.Key, resource integration.ResourceKind, externalID string) (*scheduler.SyncJob, error)
}

// JobHistory exposes recent sync jobs
type JobHistory interface {
	GetJobHistoryByKey(key integration.Key, limit int) []scheduler.SyncJob
}

// StaleOrderLister finds mirrored orders that have not been refreshed lately
type StaleOrderLister interface {
	ListStaleOrders(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, olderThan time.Duration) ([]*integration.CanonicalOrder, error)
}

// IntegrationHandler serves the tenant facing integration API
type IntegrationHandler struct {
	BaseHandler
	credentials CredentialConnector
	trigger     ManualTrigger
	jobs        JobHistory
	orders      StaleOrderLister
}

// NewIntegrationHandler creates an IntegrationHandler
func NewIntegrationHandler(credentials CredentialConnector, trigger ManualTrigger, jobs JobHistory, orders StaleOrderLister) *IntegrationHandler {
	return &IntegrationHandler{
		credentials: credentials,
		trigger:     trigger,
		jobs:        jobs,
		orders:      orders,
	}
}

// OAuthCallback handles GET /integrations/:marketplace/oauth/callback.
// The marketplace redirects the seller here without tenant headers, so the
// tenant travels in the state parameter.
//
// @ID           oauthCallbackIntegration
// @Summary      Complete marketplace authorization
// @Description  Exchanges the authorization code and stores (or revives) the tenant credential
// @Tags         integrations
// @Produce      json
// @Param        marketplace path  string true "Marketplace code" Enums(mercadolibre)
// @Param        code        query string true "Authorization code"
// @Param        state       query string true "Tenant ID"
// @Success      200 {object} dto.Response{data=appintegration.CredentialStatusResponse}
// @Failure      400 {object} dto.Response
// @Failure      502 {object} dto.Response
// @Router       /api/v1/integrations/{marketplace}/oauth/callback [get]
func (h *IntegrationHandler) OAuthCallback(c *gin.Context) {
	marketplace, err := integration.ParseMarketplaceCode(c.Param("marketplace"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	tenantID, err := uuid.Parse(c.Query("state"))
	if err != nil || tenantID == uuid.Nil {
		h.BadRequest(c, "state must carry the tenant ID")
		return
	}
	if errMsg := c.Query("error"); errMsg != "" {
		h.BadRequest(c, "Authorization was declined: "+errMsg)
		return
	}

	status, err := h.credentials.Authorize(c.Request.Context(), integration.NewKey(tenantID, marketplace), c.Query("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// GetCredential godoc
// @ID           getIntegrationCredential
// @Summary      Get credential status
// @Description  Returns whether the tenant's marketplace credential is usable, without token values
// @Tags         integrations
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        marketplace path   string true "Marketplace code" Enums(mercadolibre)
// @Success      200 {object} dto.Response{data=appintegration.CredentialStatusResponse}
// @Failure      404 {object} dto.Response
// @Router       /api/v1/integrations/{marketplace}/credential [get]
func (h *IntegrationHandler) GetCredential(c *gin.Context) {
	key, err := keyFromRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	status, err := h.credentials.Status(c.Request.Context(), key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// TriggerSync godoc
// @ID           triggerIntegrationSync
// @Summary      Trigger a sync
// @Description  Enqueues a full orders or products sync; it runs after any sync already running for the key
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        X-Tenant-ID header string true  "Tenant ID"
// @Param        marketplace path   string true  "Marketplace code" Enums(mercadolibre)
// @Param        resource    path   string true  "Resource" Enums(orders, products)
// @Param        request     body   appintegration.SyncTriggerRequest false "Optional order watermark"
// @Success      202 {object} dto.Response{data=appintegration.SyncJobResponse}
// @Failure      400 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      429 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /api/v1/integrations/{marketplace}/sync/{resource} [post]
func (h *IntegrationHandler) TriggerSync(c *gin.Context) {
	key, resource, ok := h.syncTarget(c)
	if !ok {
		return
	}

	var req appintegration.SyncTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.BadRequest(c, "Body must be empty or a JSON object")
		return
	}
	var since time.Time
	if req.Since != nil {
		since = req.Since.UTC()
	}

	job, err := h.trigger.TriggerManualSync(c.Request.Context(), key, resource, since)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, appintegration.ToSyncJobResponse(job))
}

// TriggerResourceSync godoc
// @ID           triggerIntegrationResourceSync
// @Summary      Resync one order or item
// @Tags         integrations
// @Produce      json
// @Param        X-Tenant-ID header string true "Tenant ID"
// @Param        marketplace path   string true "Marketplace code" Enums(mercadolibre)
// @Param        resource    path   string true "Resource" Enums(orders, products)
// @Param        external_id path   string true "Marketplace order or item ID"
// @Success      202 {object} dto.Response{data=appintegration.SyncJobResponse}
// @Failure      400 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Router       /api/v1/integrations/{marketplace}/sync/{resource}/{external_id} [post]
func (h *IntegrationHandler) TriggerResourceSync(c *gin.Context) {
	key, resource, ok := h.syncTarget(c)
	if !ok {
		return
	}
	job, err := h.trigger.TriggerManualResourceSync(c.Request.Context(), key, resource, c.Param("external_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, appintegration.ToSyncJobResponse(job))
}

// ListStaleOrders godoc
// @ID           listIntegrationStaleOrders
// @Summary      List stale orders
// @Description  Mirrored orders whose last sync is older than older_than (default 24h)
// @Tags         integrations
// @Produce      json
// @Param        X-Tenant-ID header string true  "Tenant ID"
// @Param        marketplace path   string true  "Marketplace code" Enums(mercadolibre)
// @Param        older_than  query  string false "Go duration" default(24h)
// @Param        limit       query  int    false "Page size"
// @Success      200 {object} dto.Response{data=[]appintegration.OrderResponse}
// @Failure      400 {object} dto.Response
// @Router       /api/v1/integrations/{marketplace}/stale-orders [get]
func (h *IntegrationHandler) ListStaleOrders(c *gin.Context) {
	key, err := keyFromRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	olderThan := defaultStaleAge
	if raw := c.Query("older_than"); raw != "" {
		olderThan, err = time.ParseDuration(raw)
		if err != nil || olderThan <= 0 {
			h.BadRequest(c, "older_than must be a positive duration such as 30m")
			return
		}
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListStaleOrders(c.Request.Context(), key.TenantID, key.Marketplace, olderThan)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	total := len(orders)
	if len(orders) > limit {
		orders = orders[:limit]
	}
	h.SuccessList(c, appintegration.ToOrderResponses(orders), total, limit)
}

// ListJobs godoc
// @ID           listIntegrationJobs
// @Summary      List recent sync jobs
// @Tags         integrations
// @Produce      json
// @Param        X-Tenant-ID header string true  "Tenant ID"
// @Param        marketplace path   string true  "Marketplace code" Enums(mercadolibre)
// @Param        limit       query  int    false "Page size"
// @Success      200 {object} dto.Response{data=[]appintegration.SyncJobResponse}
// @Router       /api/v1/integrations/{marketplace}/jobs [get]
func (h *IntegrationHandler) ListJobs(c *gin.Context) {
	key, err := keyFromRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	jobs := h.jobs.GetJobHistoryByKey(key, limit)
	h.SuccessList(c, appintegration.ToSyncJobResponses(jobs), len(jobs), limit)
}

func (h *IntegrationHandler) syncTarget(c *gin.Context) (integration.Key, integration.ResourceKind, bool) {
	key, err := keyFromRequest(c)
	if err != nil {
		h.HandleError(c, err)
		return integration.Key{}, "", false
	}
	resource := integration.ResourceKind(c.Param("resource"))
	if !resource.IsValid() {
		h.HandleError(c, integration.ErrInvalidResourceKind)
		return integration.Key{}, "", false
	}
	return key, resource, true
}

func (h *IntegrationHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		h.BadRequest(c, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/erp/marketsync/docs"
	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_SubgroupMiddleware(t *testing.T) {
	engine := gin.New()
	var calls []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			calls = append(calls, name)
			c.Next()
		}
	}

	g := NewDomainGroup("outer", "/outer").Use(mark("outer"))
	g.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })
	inner := g.Group("inner", "/inner").Use(mark("inner"))
	inner.GET("/closed", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.RegisterRoutes(engine.Group(""))

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/outer/open", nil))
	assert.Equal(t, []string{"outer"}, calls)

	calls = nil
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/outer/inner/closed", nil))
	assert.Equal(t, []string{"outer", "inner"}, calls)
	assert.Equal(t, "inner", inner.Name())
	assert.Equal(t, "/inner", inner.Prefix())
}

type stubReceiver struct{}

func (stubReceiver) HandleWebhook(context.Context, integration.MarketplaceCode, *appintegration.WebhookNotificationRequest) (*appintegration.WebhookAck, error) {
	return &appintegration.WebhookAck{Status: appintegration.WebhookIgnored}, nil
}

type stubIntegration struct{}

func (stubIntegration) Authorize(_ context.Context, key integration.Key, _ string) (*appintegration.CredentialStatusResponse, error) {
	return &appintegration.CredentialStatusResponse{TenantID: key.TenantID, Marketplace: key.Marketplace}, nil
}

func (stubIntegration) Status(_ context.Context, key integration.Key) (*appintegration.CredentialStatusResponse, error) {
	return &appintegration.CredentialStatusResponse{TenantID: key.TenantID, Marketplace: key.Marketplace}, nil
}

func (stubIntegration) TriggerManualSync(_ context.Context, key integration.Key, resource integration.ResourceKind, _ time.Time) (*scheduler.SyncJob, error) {
	return scheduler.NewSyncJob(key, resource, scheduler.TriggerManual), nil
}

func (stubIntegration) TriggerManualResourceSync(_ context.Context, key integration.Key, resource integration.ResourceKind, id string) (*scheduler.SyncJob, error) {
	return scheduler.NewResourceSyncJob(key, resource, id, scheduler.TriggerManual), nil
}

func (stubIntegration) GetJobHistoryByKey(integration.Key, int) []scheduler.SyncJob {
	return nil
}

func (stubIntegration) ListStaleOrders(context.Context, uuid.UUID, integration.MarketplaceCode, time.Duration) ([]*integration.CanonicalOrder, error) {
	return nil, nil
}

func mountedEngine(cfg RouteConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID())
	stub := stubIntegration{}
	NewRouter(engine).Mount(Handlers{
		Webhook:     handler.NewWebhookHandler(stubReceiver{}),
		Integration: handler.NewIntegrationHandler(stub, stub, stub, stub),
		System:      handler.NewSystemHandler("test", nil),
	}, cfg)
	return engine
}

func TestMount(t *testing.T) {
	tenantID := uuid.New().String()
	engine := mountedEngine(RouteConfig{WebhookBodyLimit: 1 << 10})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		tenant string
		status int
	}{
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ready", http.MethodGet, "/ready", "", "", http.StatusOK},
		{"webhook without tenant", http.MethodPost, "/api/v1/webhooks/mercadolibre", `{"resource":"/items/MLA1","user_id":1,"topic":"items"}`, "", http.StatusOK},
		{"webhook too large", http.MethodPost, "/api/v1/webhooks/mercadolibre", strings.Repeat("x", 2048), "", http.StatusRequestEntityTooLarge},
		{"oauth callback without tenant header", http.MethodGet, "/api/v1/integrations/mercadolibre/oauth/callback?code=c&state=" + tenantID, "", "", http.StatusOK},
		{"credential requires tenant", http.MethodGet, "/api/v1/integrations/mercadolibre/credential", "", "", http.StatusUnauthorized},
		{"credential", http.MethodGet, "/api/v1/integrations/mercadolibre/credential", "", tenantID, http.StatusOK},
		{"jobs", http.MethodGet, "/api/v1/integrations/mercadolibre/jobs", "", tenantID, http.StatusOK},
		{"stale orders", http.MethodGet, "/api/v1/integrations/mercadolibre/stale-orders", "", tenantID, http.StatusOK},
		{"manual sync", http.MethodPost, "/api/v1/integrations/mercadolibre/sync/orders", "", tenantID, http.StatusAccepted},
		{"single resync", http.MethodPost, "/api/v1/integrations/mercadolibre/sync/products/MLA1", "", tenantID, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.tenant != "" {
				req.Header.Set(middleware.TenantHeaderKey, tt.tenant)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestMount_SyncLimiter(t *testing.T) {
	engine := mountedEngine(RouteConfig{SyncLimiter: middleware.NewRateLimiter(1, time.Hour)})
	tenantID := uuid.New().String()

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/integrations/mercadolibre/sync/orders", nil)
		req.Header.Set(middleware.TenantHeaderKey, tenantID)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestMount_Swagger(t *testing.T) {
	get := func(engine *gin.Engine, path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	t.Run("disabled", func(t *testing.T) {
		engine := mountedEngine(RouteConfig{})
		w := get(engine, "/swagger/doc.json", "10.1.2.3:4000")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("serves the registered document", func(t *testing.T) {
		engine := mountedEngine(RouteConfig{Swagger: middleware.SwaggerConfig{Enabled: true}})
		w := get(engine, "/swagger/doc.json", "10.1.2.3:4000")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/api/v1/webhooks/{marketplace}")
		assert.Contains(t, w.Body.String(), "/api/v1/integrations/{marketplace}/sync/{resource}")
	})

	t.Run("outside allow list", func(t *testing.T) {
		engine := mountedEngine(RouteConfig{Swagger: middleware.SwaggerConfig{
			Enabled:    true,
			AllowedIPs: []string{"192.168.0.0/16"},
		}})
		w := get(engine, "/swagger/doc.json", "10.1.2.3:4000")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

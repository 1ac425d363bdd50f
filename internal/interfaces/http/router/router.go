// Package router wires HTTP handlers and middleware into gin route groups.
package router

import (
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup creates a route group for a specific domain
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{
		name:   name,
		prefix: prefix,
	}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "GET", path: path, handlers: handlers})
	return dg
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "POST", path: path, handlers: handlers})
	return dg
}

// Group creates a sub-group within this domain
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	subgroup := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, subgroup)
	return subgroup
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}

	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, subgroup := range dg.subgroups {
		subgroup.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Handlers bundles the API handlers
type Handlers struct {
	Webhook     *handler.WebhookHandler
	Integration *handler.IntegrationHandler
	System      *handler.SystemHandler
}

// RouteConfig holds per-route protections
type RouteConfig struct {
	// WebhookBodyLimit caps notification bodies
	WebhookBodyLimit int64
	// SyncLimiter throttles manual sync triggers per tenant; nil disables it
	SyncLimiter *middleware.RateLimiter
	// Swagger gates the API docs; disabled serves 404
	Swagger middleware.SwaggerConfig
}

// Mount registers health endpoints and API docs at the root and the versioned API groups.
func (r *Router) Mount(h Handlers, cfg RouteConfig) {
	if cfg.WebhookBodyLimit <= 0 {
		cfg.WebhookBodyLimit = 64 << 10
	}

	r.engine.GET("/health", h.System.Health)
	r.engine.GET("/ready", h.System.Ready)
	r.engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Swagger),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	webhooks := NewDomainGroup("webhooks", "/webhooks").
		Use(middleware.BodyLimit(cfg.WebhookBodyLimit))
	webhooks.POST("/:marketplace", h.Webhook.Receive)

	integrations := NewDomainGroup("integrations", "/integrations/:marketplace")
	// The marketplace redirect carries no tenant header
	integrations.GET("/oauth/callback", h.Integration.OAuthCallback)

	tenant := integrations.Group("tenant", "").
		Use(middleware.Tenant(), middleware.TracingAttributeInjector())
	tenant.GET("/credential", h.Integration.GetCredential)
	tenant.GET("/stale-orders", h.Integration.ListStaleOrders)
	tenant.GET("/jobs", h.Integration.ListJobs)

	sync := tenant.Group("sync", "/sync")
	if cfg.SyncLimiter != nil {
		sync.Use(middleware.RateLimitByKey(cfg.SyncLimiter, middleware.TenantKey))
	}
	sync.POST("/:resource", h.Integration.TriggerSync)
	sync.POST("/:resource/:external_id", h.Integration.TriggerResourceSync)

	r.Register(webhooks).Register(integrations)
	r.Setup()
}

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/cache"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/ecommerce"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/oauth"
	"github.com/erp/marketsync/internal/infrastructure/persistence"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/infrastructure/secret"
	"github.com/erp/marketsync/internal/infrastructure/storage"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/erp/marketsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/erp/marketsync/docs"
)

//	@title			Marketplace Sync API
//	@version		1.0
//	@description	Marketplace integration engine: OAuth credentials, webhook intake and sync jobs.

//	@BasePath	/

//	@securityDefinitions.apikey	TenantHeader
//	@in							header
//	@name						X-Tenant-ID

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting marketplace sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingEndpoint,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileGoroutines: true,
		ProfileAlloc:      true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = lp.Bridge(log, logger.ParseLevel(cfg.Log.Level))
	if profiler.IsEnabled() {
		if err := tp.EnableSpanProfiles(); err != nil {
			log.Warn("Span profiles unavailable", zap.Error(err))
		}
	}

	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:  mp.Meter("marketsync/sync"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Database
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log)
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithDatabaseLogger(log,
			logger.WithSlowQueryThreshold(cfg.Telemetry.DBSlowQueryThresh),
			logger.WithQueryParams(cfg.Telemetry.DBLogFullSQL),
		),
		persistence.WithDatabaseTracing(dbTracing),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")
	if _, err := telemetry.RegisterDBPoolMetrics(mp.Meter("marketsync/db"), db.PoolStats); err != nil {
		log.Warn("Database pool metrics unavailable", zap.Error(err))
	}

	// Repositories
	cipher, err := secret.NewTokenCipherFromBase64(cfg.Token.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid token encryption key", zap.Error(err))
	}
	if cipher == nil {
		log.Warn("Token encryption key not set, marketplace tokens are stored in plaintext")
	}
	credentialRepo := persistence.NewGormCredentialRepository(db.DB, cipher)
	cursorRepo := persistence.NewGormCursorRepository(db.DB)
	mirrorRepo := persistence.NewGormMirrorRepository(db.DB)

	// Token lifecycle and marketplace clients
	ml := cfg.Marketplace.MercadoLibre
	provider := oauth.NewHTTPProviderClient(oauth.ProviderConfig{
		TokenURL:     ml.TokenURL,
		ClientID:     ml.ClientID,
		ClientSecret: ml.ClientSecret,
		RedirectURI:  ml.RedirectURI,
	}, &http.Client{Timeout: cfg.Token.ProviderTimeout})

	tokenManager, err := oauth.NewTokenManager(credentialRepo, provider, oauth.TokenManagerConfig{
		RefreshSkew:           cfg.Token.RefreshSkew,
		RefreshAttempts:       cfg.Token.RefreshAttempts,
		RefreshInitialBackoff: cfg.Token.RefreshInitialBackoff,
		RefreshMaxBackoff:     cfg.Token.RefreshMaxBackoff,
		RefreshTimeout:        cfg.Token.RefreshTimeout,
	}, log, oauth.WithRefreshObserver(syncMetrics))
	if err != nil {
		log.Fatal("Failed to create token manager", zap.Error(err))
	}

	apis := map[integration.MarketplaceCode]integration.MarketplaceAPI{}
	if ml.Enabled {
		adapter, err := newMercadoLibreAdapter(cfg, tokenManager, syncMetrics, log)
		if err != nil {
			log.Fatal("Failed to create MercadoLibre adapter", zap.Error(err))
		}
		apis[integration.MarketplaceMercadoLibre] = adapter
	} else {
		log.Warn("MercadoLibre integration disabled")
	}

	// Sync engine
	quarantine, err := newQuarantine(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create payload quarantine", zap.Error(err))
	}
	syncService := appintegration.NewSyncService(apis, credentialRepo, mirrorRepo, cursorRepo,
		appintegration.SyncServiceConfig{
			DetailRate:      cfg.Sync.DetailRate,
			DetailBurst:     cfg.Sync.DetailBurst,
			InitialLookback: cfg.Sync.InitialLookback,
			MaxPages:        cfg.Sync.MaxPages,
			StaleAfter:      cfg.Sync.StaleAfter,
			RunBudget:       cfg.Sync.RunBudget,
			StaleLimit:      appintegration.DefaultSyncServiceConfig().StaleLimit,
		},
		log,
		appintegration.WithQuarantine(quarantine),
		appintegration.WithSyncObserver(syncMetrics),
	)

	schedulerCfg := scheduler.DefaultSyncSchedulerConfig()
	schedulerCfg.Workers = cfg.Sync.Workers
	schedulerCfg.QueueSize = cfg.Sync.QueueSize
	schedulerCfg.RunBudget = cfg.Sync.RunBudget
	schedulerCfg.LaneDepth = cfg.Sync.LaneDepth
	schedulerCfg.HistorySize = cfg.Sync.HistorySize
	syncScheduler, err := scheduler.NewSyncScheduler(schedulerCfg, appintegration.NewSyncJobExecutor(syncService), log)
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	syncScheduler.SetObserver(syncMetrics)

	triggerCfg := scheduler.DefaultIntervalTriggerConfig()
	triggerCfg.OrdersInterval = cfg.Sync.OrdersInterval
	triggerCfg.ProductsInterval = cfg.Sync.ProductsInterval
	trigger, err := scheduler.NewIntervalTrigger(triggerCfg, syncScheduler, credentialRepo, log)
	if err != nil {
		log.Fatal("Failed to create interval trigger", zap.Error(err))
	}

	if err := syncScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}
	if cfg.Sync.Enabled {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start interval trigger", zap.Error(err))
		}
	} else {
		log.Warn("Scheduled syncs disabled, only webhooks and manual triggers run")
	}

	// Webhooks
	deliveries, err := cache.NewDeliveryStoreFactory(cfg.Redis, cfg.Webhook.DedupeStore, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create webhook delivery store", zap.Error(err))
	}
	if closer, ok := deliveries.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	webhookService := appintegration.NewWebhookService(credentialRepo, deliveries, syncScheduler,
		appintegration.WebhookServiceConfig{
			DedupeTTL:        cfg.Webhook.DedupeTTL,
			FullResyncOnItem: cfg.Webhook.FullResyncOnItem,
			ApplicationID:    cfg.Webhook.ApplicationID,
		}, log)
	credentialService := appintegration.NewCredentialService(tokenManager, credentialRepo, ml.RedirectURI, log)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	httpMetrics, err := middleware.HTTPMetrics(mp.Meter("marketsync/http"))
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}
	engine.Use(
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: cfg.Telemetry.Enabled}),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log, logger.WithQuietPaths("/health", "/ready")),
		logger.Recovery(log),
		httpMetrics,
	)

	systemHandler := handler.NewSystemHandler(version, map[string]handler.ReadinessCheck{
		"database": func(context.Context) error { return db.Ping() },
		"scheduler": func(context.Context) error {
			if !syncScheduler.IsRunning() {
				return scheduler.ErrSchedulerNotRunning
			}
			return nil
		},
	})
	router.NewRouter(engine).Mount(router.Handlers{
		Webhook:     handler.NewWebhookHandler(webhookService),
		Integration: handler.NewIntegrationHandler(credentialService, trigger, syncScheduler, syncService),
		System:      systemHandler,
	}, router.RouteConfig{
		WebhookBodyLimit: cfg.HTTP.MaxBodySize,
		SyncLimiter:      middleware.NewRateLimiter(10, time.Minute),
		Swagger: middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		},
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// Stop intake first so no job is accepted after the workers drain
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Error("Interval trigger stop failed", zap.Error(err))
	}
	if err := syncScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Sync scheduler stop failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Profiler stop failed", zap.Error(err))
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		log.Error("Logger provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newMercadoLibreAdapter(cfg *config.Config, tokens ecommerce.TokenSource, observer ecommerce.ClientObserver, log *zap.Logger) (*ecommerce.MercadoLibreAdapter, error) {
	ml := cfg.Marketplace.MercadoLibre
	mlConfig := ecommerce.NewMercadoLibreConfig(ml.ClientID, ml.ClientSecret, ml.RedirectURI)
	if ml.APIBaseURL != "" {
		mlConfig.APIBaseURL = ml.APIBaseURL
	}
	if ml.TokenURL != "" {
		mlConfig.TokenURL = ml.TokenURL
	}
	if ml.PageSize > 0 {
		mlConfig.PageSize = ml.PageSize
	}
	if err := mlConfig.Validate(); err != nil {
		return nil, err
	}

	clientCfg := ecommerce.DefaultClientConfig(mlConfig.APIBaseURL)
	clientCfg.TimeoutSeconds = int(cfg.Client.Timeout.Seconds())
	clientCfg.LowWaterMark = cfg.Client.LowWaterMark
	clientCfg.MaxRateLimitWait = cfg.Client.MaxRateLimitWait
	clientCfg.MaxRateLimitAttempts = cfg.Client.MaxRateLimitAttempts
	clientCfg.MaxTransientAttempts = cfg.Client.MaxTransientAttempts
	clientCfg.InitialBackoff = cfg.Client.InitialBackoff
	clientCfg.MaxBackoff = cfg.Client.MaxBackoff
	clientCfg.DefaultRetryAfter = cfg.Client.DefaultRetryAfter

	client, err := ecommerce.NewRetryingClient(clientCfg, tokens, log, ecommerce.WithClientObserver(observer))
	if err != nil {
		return nil, err
	}
	return ecommerce.NewMercadoLibreAdapter(client, mlConfig)
}

func newQuarantine(ctx context.Context, cfg *config.Config, log *zap.Logger) (integration.PayloadQuarantine, error) {
	if cfg.Quarantine.Backend != "s3" {
		log.Info("Using in-memory payload quarantine")
		return storage.NewMemoryQuarantine(0), nil
	}
	q, err := storage.NewS3Quarantine(&cfg.Quarantine, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := q.EnsureBucket(ensureCtx); err != nil {
		return nil, err
	}
	log.Info("Using S3 payload quarantine", zap.String("bucket", q.Bucket()))
	return q, nil
}

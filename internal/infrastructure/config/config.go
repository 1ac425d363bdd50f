package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Swagger     SwaggerConfig
	Telemetry   TelemetryConfig
	Marketplace MarketplaceConfig
	Token       TokenConfig
	Client      ClientConfig
	Sync        SyncConfig
	Webhook     WebhookConfig
	Quarantine  QuarantineConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int    // in minutes
	ConnMaxIdleTime int    // in minutes
	LogLevel        string // silent, error, warn, info
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// SwaggerConfig holds API documentation endpoint configuration
type SwaggerConfig struct {
	Enabled    bool     // Whether to serve /swagger
	AllowedIPs []string // IPs or CIDRs allowed to read the docs (empty = allow all)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// LogsEnabled exports zap entries to the collector next to stdout
	LogsEnabled bool
	// Database tracing options
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
	// Continuous profiling
	ProfilingEnabled  bool
	ProfilingEndpoint string
}

// MarketplaceConfig holds the marketplace application registrations
type MarketplaceConfig struct {
	MercadoLibre MercadoLibreConfig
}

// MercadoLibreConfig holds the MercadoLibre application registration
type MercadoLibreConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIBaseURL   string
	TokenURL     string
	PageSize     int
}

// TokenConfig holds token lifecycle settings
type TokenConfig struct {
	RefreshSkew           time.Duration
	RefreshAttempts       int
	RefreshInitialBackoff time.Duration
	RefreshMaxBackoff     time.Duration
	RefreshTimeout        time.Duration
	ProviderTimeout       time.Duration
	// EncryptionKey is a base64 encoded 32 byte key sealing tokens at rest (empty = plaintext)
	EncryptionKey string
}

// ClientConfig holds marketplace API client retry and pacing settings
type ClientConfig struct {
	Timeout              time.Duration
	LowWaterMark         int
	MaxRateLimitWait     time.Duration
	MaxRateLimitAttempts int
	MaxTransientAttempts int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	DefaultRetryAfter    time.Duration
}

// SyncConfig holds the sync engine and scheduler settings
type SyncConfig struct {
	Enabled          bool
	Workers          int
	QueueSize        int
	OrdersInterval   time.Duration
	ProductsInterval time.Duration
	RunBudget        time.Duration
	LaneDepth        int // jobs that may wait behind the running job of one key
	DetailRate       float64 // detail fetches per second per key
	DetailBurst      int
	InitialLookback  time.Duration
	MaxPages         int
	StaleAfter       time.Duration
	HistorySize      int
}

// WebhookConfig holds webhook receiver settings
type WebhookConfig struct {
	DedupeTTL        time.Duration
	DedupeStore      string // memory, redis
	FullResyncOnItem bool
	ApplicationID    string // when set, notifications for other applications are ignored
}

// QuarantineConfig holds where unmappable payloads are kept
type QuarantineConfig struct {
	Backend         string // memory, s3
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with MSYNC_ prefix (e.g., MSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("MSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Swagger: SwaggerConfig{
			Enabled:    v.GetBool("swagger.enabled"),
			AllowedIPs: v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingEndpoint: v.GetString("telemetry.profiling_endpoint"),
		},
		Marketplace: MarketplaceConfig{
			MercadoLibre: MercadoLibreConfig{
				Enabled:      v.GetBool("marketplace.mercadolibre.enabled"),
				ClientID:     v.GetString("marketplace.mercadolibre.client_id"),
				ClientSecret: v.GetString("marketplace.mercadolibre.client_secret"),
				RedirectURI:  v.GetString("marketplace.mercadolibre.redirect_uri"),
				APIBaseURL:   v.GetString("marketplace.mercadolibre.api_base_url"),
				TokenURL:     v.GetString("marketplace.mercadolibre.token_url"),
				PageSize:     v.GetInt("marketplace.mercadolibre.page_size"),
			},
		},
		Token: TokenConfig{
			RefreshSkew:           v.GetDuration("token.refresh_skew"),
			RefreshAttempts:       v.GetInt("token.refresh_attempts"),
			RefreshInitialBackoff: v.GetDuration("token.refresh_initial_backoff"),
			RefreshMaxBackoff:     v.GetDuration("token.refresh_max_backoff"),
			RefreshTimeout:        v.GetDuration("token.refresh_timeout"),
			ProviderTimeout:       v.GetDuration("token.provider_timeout"),
			EncryptionKey:         v.GetString("token.encryption_key"),
		},
		Client: ClientConfig{
			Timeout:              v.GetDuration("client.timeout"),
			LowWaterMark:         v.GetInt("client.low_water_mark"),
			MaxRateLimitWait:     v.GetDuration("client.max_rate_limit_wait"),
			MaxRateLimitAttempts: v.GetInt("client.max_rate_limit_attempts"),
			MaxTransientAttempts: v.GetInt("client.max_transient_attempts"),
			InitialBackoff:       v.GetDuration("client.initial_backoff"),
			MaxBackoff:           v.GetDuration("client.max_backoff"),
			DefaultRetryAfter:    v.GetDuration("client.default_retry_after"),
		},
		Sync: SyncConfig{
			Enabled:          v.GetBool("sync.enabled"),
			Workers:          v.GetInt("sync.workers"),
			QueueSize:        v.GetInt("sync.queue_size"),
			OrdersInterval:   v.GetDuration("sync.orders_interval"),
			ProductsInterval: v.GetDuration("sync.products_interval"),
			RunBudget:        v.GetDuration("sync.run_budget"),
			LaneDepth:        v.GetInt("sync.lane_depth"),
			DetailRate:       v.GetFloat64("sync.detail_rate"),
			DetailBurst:      v.GetInt("sync.detail_burst"),
			InitialLookback:  v.GetDuration("sync.initial_lookback"),
			MaxPages:         v.GetInt("sync.max_pages"),
			StaleAfter:       v.GetDuration("sync.stale_after"),
			HistorySize:      v.GetInt("sync.history_size"),
		},
		Webhook: WebhookConfig{
			DedupeTTL:        v.GetDuration("webhook.dedupe_ttl"),
			DedupeStore:      v.GetString("webhook.dedupe_store"),
			FullResyncOnItem: v.GetBool("webhook.full_resync_on_item"),
			ApplicationID:    v.GetString("webhook.application_id"),
		},
		Quarantine: QuarantineConfig{
			Backend:         v.GetString("quarantine.backend"),
			Bucket:          v.GetString("quarantine.bucket"),
			Prefix:          v.GetString("quarantine.prefix"),
			Region:          v.GetString("quarantine.region"),
			Endpoint:        v.GetString("quarantine.endpoint"),
			AccessKeyID:     v.GetString("quarantine.access_key_id"),
			SecretAccessKey: v.GetString("quarantine.secret_access_key"),
			UsePathStyle:    v.GetBool("quarantine.use_path_style"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "marketsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "marketsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // webhook bodies are small
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "marketsync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.ProfilingEndpoint == "" {
		cfg.Telemetry.ProfilingEndpoint = "http://localhost:4040"
	}

	ml := &cfg.Marketplace.MercadoLibre
	if ml.APIBaseURL == "" {
		ml.APIBaseURL = "https://api.mercadolibre.com"
	}
	if ml.TokenURL == "" {
		ml.TokenURL = "https://api.mercadolibre.com/oauth/token"
	}
	if ml.PageSize == 0 {
		ml.PageSize = 50
	}

	if cfg.Token.RefreshSkew == 0 {
		cfg.Token.RefreshSkew = time.Hour
	}
	if cfg.Token.RefreshAttempts == 0 {
		cfg.Token.RefreshAttempts = 4
	}
	if cfg.Token.RefreshInitialBackoff == 0 {
		cfg.Token.RefreshInitialBackoff = 500 * time.Millisecond
	}
	if cfg.Token.RefreshMaxBackoff == 0 {
		cfg.Token.RefreshMaxBackoff = 10 * time.Second
	}
	if cfg.Token.RefreshTimeout == 0 {
		cfg.Token.RefreshTimeout = 45 * time.Second
	}
	if cfg.Token.ProviderTimeout == 0 {
		cfg.Token.ProviderTimeout = 10 * time.Second
	}

	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 30 * time.Second
	}
	if cfg.Client.LowWaterMark == 0 {
		cfg.Client.LowWaterMark = 5
	}
	if cfg.Client.MaxRateLimitWait == 0 {
		cfg.Client.MaxRateLimitWait = 2 * time.Minute
	}
	if cfg.Client.MaxRateLimitAttempts == 0 {
		cfg.Client.MaxRateLimitAttempts = 3
	}
	if cfg.Client.MaxTransientAttempts == 0 {
		cfg.Client.MaxTransientAttempts = 4
	}
	if cfg.Client.InitialBackoff == 0 {
		cfg.Client.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.Client.MaxBackoff == 0 {
		cfg.Client.MaxBackoff = 15 * time.Second
	}
	if cfg.Client.DefaultRetryAfter == 0 {
		cfg.Client.DefaultRetryAfter = 5 * time.Second
	}

	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 256
	}
	if cfg.Sync.OrdersInterval == 0 {
		cfg.Sync.OrdersInterval = 15 * time.Minute
	}
	if cfg.Sync.ProductsInterval == 0 {
		cfg.Sync.ProductsInterval = 30 * time.Minute
	}
	if cfg.Sync.RunBudget == 0 {
		cfg.Sync.RunBudget = 10 * time.Minute
	}
	if cfg.Sync.LaneDepth == 0 {
		cfg.Sync.LaneDepth = 32
	}
	if cfg.Sync.DetailRate == 0 {
		cfg.Sync.DetailRate = 5
	}
	if cfg.Sync.DetailBurst == 0 {
		cfg.Sync.DetailBurst = 1
	}
	if cfg.Sync.InitialLookback == 0 {
		cfg.Sync.InitialLookback = 30 * 24 * time.Hour
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 100
	}
	if cfg.Sync.StaleAfter == 0 {
		cfg.Sync.StaleAfter = 24 * time.Hour
	}
	if cfg.Sync.HistorySize == 0 {
		cfg.Sync.HistorySize = 100
	}

	if cfg.Webhook.DedupeTTL == 0 {
		cfg.Webhook.DedupeTTL = time.Hour
	}
	if cfg.Webhook.DedupeStore == "" {
		cfg.Webhook.DedupeStore = "memory"
	}

	if cfg.Quarantine.Backend == "" {
		cfg.Quarantine.Backend = "memory"
	}
	if cfg.Quarantine.Prefix == "" {
		cfg.Quarantine.Prefix = "quarantine"
	}
	if cfg.Quarantine.Region == "" {
		cfg.Quarantine.Region = "us-east-1"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	ml := c.Marketplace.MercadoLibre
	if ml.Enabled && (ml.ClientID == "" || ml.ClientSecret == "") {
		return fmt.Errorf("marketplace.mercadolibre.client_id and client_secret are required when enabled")
	}
	if ml.PageSize < 1 || ml.PageSize > 50 {
		return fmt.Errorf("marketplace.mercadolibre.page_size must be between 1 and 50, got %d", ml.PageSize)
	}

	if c.Token.RefreshSkew < 0 {
		return fmt.Errorf("token.refresh_skew cannot be negative")
	}
	if c.Token.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Token.EncryptionKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("token.encryption_key must be 32 bytes encoded as base64")
		}
	}

	if c.Client.LowWaterMark < 0 {
		return fmt.Errorf("client.low_water_mark cannot be negative")
	}

	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if c.Sync.DetailRate < 0 {
		return fmt.Errorf("sync.detail_rate cannot be negative")
	}
	if c.Sync.RunBudget < time.Second {
		return fmt.Errorf("sync.run_budget must be at least 1s, got %s", c.Sync.RunBudget)
	}

	switch c.Webhook.DedupeStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("webhook.dedupe_store must be memory or redis, got %q", c.Webhook.DedupeStore)
	}

	switch c.Quarantine.Backend {
	case "memory":
	case "s3":
		if c.Quarantine.Bucket == "" {
			return fmt.Errorf("quarantine.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("quarantine.backend must be memory or s3, got %q", c.Quarantine.Backend)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Token.EncryptionKey == "" {
			return fmt.Errorf("token.encryption_key is required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
		if c.Swagger.Enabled && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger.allowed_ips is required when swagger is enabled in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

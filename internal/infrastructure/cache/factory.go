package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DeliveryStoreFactory creates the webhook delivery store selected by configuration
type DeliveryStoreFactory struct {
	redisConfig           config.RedisConfig
	backend               string
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DeliveryStoreFactoryOption is a functional option for configuring the factory
type DeliveryStoreFactoryOption func(*DeliveryStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DeliveryStoreFactoryOption {
	return func(f *DeliveryStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the in-memory store.
// Default is true.
func WithInMemoryFallback(allow bool) DeliveryStoreFactoryOption {
	return func(f *DeliveryStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDeliveryStoreFactory creates a factory. backend is "memory" or "redis".
func NewDeliveryStoreFactory(redisCfg config.RedisConfig, backend string, opts ...DeliveryStoreFactoryOption) *DeliveryStoreFactory {
	f := &DeliveryStoreFactory{
		redisConfig:           redisCfg,
		backend:               strings.ToLower(strings.TrimSpace(backend)),
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the configured store
func (f *DeliveryStoreFactory) CreateStore(ctx context.Context) (integration.DeliveryStore, error) {
	switch f.backend {
	case "", "memory":
		f.logger.Info("Using in-memory webhook delivery store")
		return NewInMemoryDeliveryStore(0), nil
	case "redis":
	default:
		return nil, fmt.Errorf("unknown delivery store backend %q", f.backend)
	}

	store, err := NewRedisDeliveryStore(ctx, f.redisConfig.Addr(), f.redisConfig.Password, f.redisConfig.DB)
	if err == nil {
		f.logger.Info("Using Redis webhook delivery store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for webhook dedupe but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory webhook delivery store. "+
		"Redeliveries reaching another instance will be processed twice.",
		zap.Error(err),
	)
	return NewInMemoryDeliveryStore(0), nil
}

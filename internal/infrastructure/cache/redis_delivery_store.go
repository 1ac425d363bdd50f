package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

// DefaultDeliveryKeyPrefix namespaces delivery marks in Redis
const DefaultDeliveryKeyPrefix = "marketsync:webhook:delivery:"

// RedisDeliveryStore shares webhook delivery marks between instances
type RedisDeliveryStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisDeliveryStore connects to Redis and verifies the connection
func NewRedisDeliveryStore(ctx context.Context, addr, password string, db int) (*RedisDeliveryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisDeliveryStoreWithClient(client, ""), nil
}

// NewRedisDeliveryStoreWithClient wraps an existing client
func NewRedisDeliveryStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisDeliveryStore {
	if keyPrefix == "" {
		keyPrefix = DefaultDeliveryKeyPrefix
	}
	return &RedisDeliveryStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed sets the mark with SET NX so concurrent receivers agree on one winner
func (s *RedisDeliveryStore) MarkProcessed(ctx context.Context, deliveryKey string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+deliveryKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery: %w", err)
	}
	return ok, nil
}

// Forget deletes the mark
func (s *RedisDeliveryStore) Forget(ctx context.Context, deliveryKey string) error {
	if err := s.client.Del(ctx, s.keyPrefix+deliveryKey).Err(); err != nil {
		return fmt.Errorf("failed to forget delivery: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisDeliveryStore) Close() error {
	return s.client.Close()
}

// Ensure RedisDeliveryStore implements integration.DeliveryStore
var _ integration.DeliveryStore = (*RedisDeliveryStore)(nil)

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache provides caching functionality using Redis
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(redisURL string, log *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Info("redis connection established")
	return &RedisCache{client: client, log: log}, nil
}

// Set stores a value in cache with expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetOrSet retrieves a value from cache, or calls the callback to fetch and cache it.
// A nil cache always calls the callback.
func GetOrSet[T any](c *RedisCache, ctx context.Context, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	if c == nil {
		return fn()
	}

	var result T
	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}

	result, err := fn()
	if err != nil {
		return result, err
	}

	// Cache write failures only cost a recomputation
	if err := c.Set(ctx, key, result, expiration); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}

	return result, nil
}

// Delete removes a key from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Exists checks if a key exists in cache
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// SetNX sets a value only if key doesn't exist
func (c *RedisCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, data, expiration).Result()
}

// InvalidateTenant drops every cached report for a tenant
func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID uint) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, ReportSummaryKey(tenantID)); err != nil {
		c.log.Warn("cache invalidation failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
	}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client for advanced operations
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// ReportSummaryKey is the cache key of a tenant's summary report
func ReportSummaryKey(tenantID uint) string {
	return fmt.Sprintf("report:summary:%d", tenantID)
}

// TenantCacheInvalidator drops cached data for a tenant after a write
type TenantCacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID uint)
}

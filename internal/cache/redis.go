package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// keyPrefix namespaces every key this service writes to a shared Redis.
const keyPrefix = "rastreador:"

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client without pinging it.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, workspaceID string, key string) ([]byte, error) {
	if workspaceID == "" {
		return nil, ErrWorkspaceRequired
	}

	val, err := c.client.Get(ctx, redisKey(workspaceID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL. A non-positive ttl is a no-op so
// nothing is ever stored without expiry.
func (c *RedisCache) Set(ctx context.Context, workspaceID string, key string, value []byte, ttl time.Duration) error {
	if workspaceID == "" {
		return ErrWorkspaceRequired
	}
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, redisKey(workspaceID, key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, workspaceID string, key string) error {
	if workspaceID == "" {
		return ErrWorkspaceRequired
	}
	return c.client.Del(ctx, redisKey(workspaceID, key)).Err()
}

// GetResult retrieves a cached analysis result.
func (c *RedisCache) GetResult(ctx context.Context, workspaceID string, key string) (*domain.AnalysisResult, error) {
	data, err := c.Get(ctx, workspaceID, key)
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

// SetResult caches an analysis result.
func (c *RedisCache) SetResult(ctx context.Context, workspaceID string, key string, result *domain.AnalysisResult, ttl time.Duration) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return c.Set(ctx, workspaceID, key, data, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(workspaceID, key string) string {
	return keyPrefix + workspaceID + ":" + key
}

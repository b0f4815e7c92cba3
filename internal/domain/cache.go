package domain

import (
	"context"
	"time"
)

// Cache stores serialized values under a workspace namespace.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, workspaceID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, workspaceID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, workspaceID string, key string) error

	// GetResult retrieves a cached analysis result.
	// Returns nil, nil if key not found.
	GetResult(ctx context.Context, workspaceID string, key string) (*AnalysisResult, error)

	// SetResult caches an analysis result.
	SetResult(ctx context.Context, workspaceID string, key string, result *AnalysisResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type" json:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `yaml:"local_max_size" json:"localMaxSize"`
	LocalTTL     time.Duration `yaml:"local_ttl" json:"localTtl"`

	// Redis settings (Pro tier)
	RedisAddr     string `yaml:"redis_addr" json:"redisAddr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redisDb"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"two_phase" json:"twoPhase"` // If true, check local first, then Redis
}

// Package cache holds computed analysis results so repeated requests against
// unchanged datasets skip the linkage pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// ErrWorkspaceRequired is returned when a call omits the workspace namespace.
var ErrWorkspaceRequired = errors.New("workspaceID is required")

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// ResultKey derives the cache key of an analysis from the checksums of its
// inputs and its parameters. Any upload changes a checksum and therefore the
// key, so stale results are never served.
func ResultKey(contributionsChecksum, contractsChecksum string, params domain.AnalysisParams) string {
	h := sha256.New()
	for _, part := range []string{
		contributionsChecksum,
		contractsChecksum,
		strconv.Itoa(params.WindowMonths),
		params.PartyFilter,
		params.Filter,
		strconv.Itoa(params.TopSuspects),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "result:" + hex.EncodeToString(h.Sum(nil))
}

func encodeResult(result *domain.AnalysisResult) ([]byte, error) {
	if result == nil {
		return nil, errors.New("nil analysis result")
	}
	return json.Marshal(result)
}

func decodeResult(data []byte) (*domain.AnalysisResult, error) {
	if data == nil {
		return nil, nil
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, nil
}

// TwoPhaseCache keeps a short-lived local copy in front of Redis.
// L1: Local LRU cache for fast reads
// L2: Redis shared by every API replica
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

func (c *TwoPhaseCache) localTTL(ttl time.Duration) time.Duration {
	if ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, workspaceID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, workspaceID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, workspaceID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, workspaceID, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 never outlives l1TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, workspaceID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, workspaceID, key, value, c.localTTL(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, workspaceID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, workspaceID string, key string) error {
	if err := c.local.Delete(ctx, workspaceID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, workspaceID, key)
}

// GetResult reads a cached analysis result through both levels.
func (c *TwoPhaseCache) GetResult(ctx context.Context, workspaceID string, key string) (*domain.AnalysisResult, error) {
	data, err := c.Get(ctx, workspaceID, key)
	if err != nil {
		return nil, err
	}
	return decodeResult(data)
}

// SetResult caches an analysis result in both levels.
func (c *TwoPhaseCache) SetResult(ctx context.Context, workspaceID string, key string, result *domain.AnalysisResult, ttl time.Duration) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return c.Set(ctx, workspaceID, key, data, ttl)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}

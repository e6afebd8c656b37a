// Package cache is the key/value collaborator used for read-through caching of
// balances, the benefit catalog and per-user mission lists. The cache is advisory:
// every invariant is enforced by the store, so cache failures are logged and swallowed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	"github.com/civicrewards/rewards-api/internal/pkg/metrics"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically increments the integer stored at key, starting from zero,
	// and returns the new value. Counters never expire.
	Incr(ctx context.Context, key string) (int64, error)
}

// GetJSON loads key into dest. It reports false on a miss or on any cache error.
func GetJSON(ctx context.Context, c Cache, key string, dest interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			metrics.Default().ObserveCacheError("get")
			logger.LogWarn(ctx, "cache get failed", "key", key, "error", err.Error())
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		logger.LogWarn(ctx, "cache entry undecodable", "key", key, "error", err.Error())
		return false
	}
	return true
}

// SetJSON stores value under key. Failures are logged, never returned.
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) {
	if c == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logger.LogWarn(ctx, "cache entry unencodable", "key", key, "error", err.Error())
		return
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		metrics.Default().ObserveCacheError("set")
		logger.LogWarn(ctx, "cache set failed", "key", key, "error", err.Error())
	}
}

// Generation returns how many times key has been invalidated.
func Generation(ctx context.Context, c Cache, key string) (int64, error) {
	raw, err := c.Get(ctx, generationKey(key))
	if errors.Is(err, ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// Load reads key through the cache, calling fill on a miss. Values are stored
// under the generation observed before fill ran, so a fill that overlaps an
// invalidation lands in a generation no later reader looks at. variant splits
// one invalidation key into several entries (for example by page size).
func Load[T any](ctx context.Context, inv *Invalidator, key, variant string, ttl time.Duration, fill func(context.Context) (T, error)) (T, error) {
	c := inv.Cache()
	if c == nil || ttl <= 0 {
		return fill(ctx)
	}

	gen, err := Generation(ctx, c, key)
	if err != nil {
		metrics.Default().ObserveCacheError("get")
		logger.LogWarn(ctx, "cache generation unreadable", "key", key, "error", err.Error())
		return fill(ctx)
	}

	entry := EntryKey(key, gen, variant)
	var cached T
	if GetJSON(ctx, c, entry, &cached) {
		return cached, nil
	}

	value, err := fill(ctx)
	if err != nil {
		return value, err
	}
	SetJSON(ctx, c, entry, value, ttl)
	return value, nil
}

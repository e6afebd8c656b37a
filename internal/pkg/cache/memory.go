package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/civicrewards/rewards-api/internal/pkg/clock"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache used when Redis is not configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clock.Clock
}

func NewMemoryCache(c clock.Clock) *MemoryCache {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   c,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if c.expired(entry) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if current, ok := c.entries[key]; ok && c.expired(current) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, ErrMiss
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	if entry, ok := c.entries[key]; ok && !c.expired(entry) {
		parsed, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	c.entries[key] = memoryEntry{value: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}

// expired treats a zero expiry as "never".
func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt)
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package cache

import (
	"context"

	"github.com/google/uuid"

	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	"github.com/civicrewards/rewards-api/internal/pkg/metrics"
)

// Invalidator tells the cache which keys went stale after a committed mutation.
// It must only be called after commit; it never fails the caller.
type Invalidator struct {
	cache Cache
}

func NewInvalidator(c Cache) *Invalidator {
	return &Invalidator{cache: c}
}

// Invalidate advances the generation of every key, which hides all entries
// Load stored for it, then drops the entries of the previous generation.
func (i *Invalidator) Invalidate(ctx context.Context, keys ...string) {
	if i == nil || i.cache == nil || len(keys) == 0 {
		return
	}

	stale := make([]string, 0, len(keys))
	for _, key := range keys {
		gen, err := i.cache.Incr(ctx, generationKey(key))
		if err != nil {
			metrics.Default().ObserveCacheError("incr")
			logger.LogWarn(ctx, "cache invalidation failed", "key", key, "error", err.Error())
			continue
		}
		stale = append(stale, EntryKey(key, gen-1, ""))
	}
	if len(stale) == 0 {
		return
	}

	if err := i.cache.Delete(ctx, stale...); err != nil {
		metrics.Default().ObserveCacheError("delete")
		logger.LogWarn(ctx, "cache cleanup failed", "keys", stale, "error", err.Error())
	}
}

// WalletBalance invalidates the balance entry after a credit or debit.
func (i *Invalidator) WalletBalance(ctx context.Context, userID uuid.UUID) {
	i.Invalidate(ctx, WalletBalanceKey(userID))
}

// BenefitStock invalidates catalog entries after a stock change.
func (i *Invalidator) BenefitStock(ctx context.Context, benefitID uuid.UUID) {
	i.Invalidate(ctx, BenefitCatalogKey, BenefitKey(benefitID))
}

// MissionList invalidates the per-user mission list after an approval.
func (i *Invalidator) MissionList(ctx context.Context, userID uuid.UUID) {
	i.Invalidate(ctx, MissionListKey(userID))
}

// Cache exposes the underlying collaborator for read-through callers.
func (i *Invalidator) Cache() Cache {
	if i == nil {
		return nil
	}
	return i.cache
}

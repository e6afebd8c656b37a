package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	inv := NewInvalidator(NewMemoryCache(nil))
	key := MissionListKey(uuid.New())

	calls := 0
	fill := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}

	v, err := Load(ctx, inv, key, "", time.Hour, fill)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = Load(ctx, inv, key, "", time.Hour, fill)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	inv.Invalidate(ctx, key)

	v, err = Load(ctx, inv, key, "", time.Hour, fill)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestLoadDropsFillThatOverlapsInvalidation(t *testing.T) {
	ctx := context.Background()
	inv := NewInvalidator(NewMemoryCache(nil))
	key := WalletBalanceKey(uuid.New())

	balance := 10
	racing := func(ctx context.Context) (int, error) {
		read := balance
		// A writer commits and invalidates before the read result is stored.
		balance = 20
		inv.Invalidate(ctx, key)
		return read, nil
	}
	fresh := func(context.Context) (int, error) { return balance, nil }

	v, err := Load(ctx, inv, key, "", time.Hour, racing)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = Load(ctx, inv, key, "", time.Hour, fresh)
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestLoadVariantsShareInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)
	inv := NewInvalidator(c)
	key := WalletBalanceKey(uuid.New())

	for _, variant := range []string{"1", "10"} {
		_, err := Load(ctx, inv, key, variant, time.Hour, func(context.Context) (string, error) { return variant, nil })
		require.NoError(t, err)
	}
	_, err := c.Get(ctx, EntryKey(key, 0, "1"))
	require.NoError(t, err)
	_, err = c.Get(ctx, EntryKey(key, 0, "10"))
	require.NoError(t, err)

	inv.Invalidate(ctx, key)

	v, err := Load(ctx, inv, key, "10", time.Hour, func(context.Context) (string, error) { return "refreshed", nil })
	require.NoError(t, err)
	assert.Equal(t, "refreshed", v)
}

func TestLoadPassesThroughWithoutCache(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")

	var nilInv *Invalidator
	v, err := Load(ctx, nilInv, BenefitCatalogKey, "", time.Hour, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	c := NewMemoryCache(nil)
	inv := NewInvalidator(c)
	_, err = Load(ctx, inv, BenefitCatalogKey, "", time.Hour, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	_, err = Load(ctx, inv, BenefitCatalogKey, "", 0, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

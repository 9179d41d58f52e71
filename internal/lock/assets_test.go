package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetLocksConflictNamesHolders(t *testing.T) {
	ctx := context.Background()
	locks := NewAssetLocks(NewMemoryStore(), 0)

	require.NoError(t, locks.Lock(ctx, []int64{1, 2}, 10))

	err := locks.Lock(ctx, []int64{2, 3}, 11)
	var held *AssetsHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, map[int64]int64{2: 10}, held.Holders)

	locked, err := locks.CheckLocked(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 10, 2: 10}, locked)
}

func TestAssetLocksUnlock(t *testing.T) {
	ctx := context.Background()
	rs, _ := newRedisStore(t)
	locks := NewAssetLocks(rs, time.Minute)

	require.NoError(t, locks.Lock(ctx, []int64{7}, 3))
	require.NoError(t, locks.Unlock(ctx, []int64{7}, 4), "other transfer cannot free the asset")

	locked, _ := locks.CheckLocked(ctx, []int64{7})
	assert.Equal(t, map[int64]int64{7: 3}, locked)

	require.NoError(t, locks.Unlock(ctx, []int64{7}, 3))
	locked, _ = locks.CheckLocked(ctx, []int64{7})
	assert.Empty(t, locked)

	assert.NoError(t, locks.Lock(ctx, []int64{7}, 4))
}

func TestAssetLocksLockForExtendsReservation(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	now := time.Now()
	mem.Now = func() time.Time { return now }
	locks := NewAssetLocks(mem, time.Hour)

	require.NoError(t, locks.LockFor(ctx, []int64{5}, 1, 3*time.Hour))

	now = now.Add(3*time.Hour + 59*time.Minute)
	locked, _ := locks.CheckLocked(ctx, []int64{5})
	assert.Equal(t, map[int64]int64{5: 1}, locked)

	now = now.Add(time.Minute)
	assert.NoError(t, locks.Lock(ctx, []int64{5}, 2))

	rs, mr := newRedisStore(t)
	require.NoError(t, NewAssetLocks(rs, time.Hour).LockFor(ctx, []int64{6}, 1, -time.Minute))
	assert.Equal(t, time.Hour, mr.TTL(AssetKey(6)), "a past date keeps the plain TTL")
}

func TestAssetKey(t *testing.T) {
	assert.Equal(t, "transfer:lock:asset:42", AssetKey(42))
	assert.Equal(t, "transfer:execute:42", GuardKey(42))
}

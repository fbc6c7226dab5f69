package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_SetGetOverwrite(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKVStore(pool)

	require.NoError(t, store.Set(ctx, "k1", "v1", 0))

	got, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", got)

	require.NoError(t, store.Set(ctx, "k1", "v2", 0))
	got, ok, err = store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestKVStore_MissingKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewKVStore(pool)

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore_ExpiredKeyAbsent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKVStore(pool)

	require.NoError(t, store.Set(ctx, "k1", "v1", time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must read as absent")
}

func TestKVStore_IncrCounts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKVStore(pool)

	for want := int64(1); want <= 3; want++ {
		n, err := store.Incr(ctx, "counter", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestKVStore_IncrResetsExpiredCounter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewKVStore(pool)

	n, err := store.Incr(ctx, "counter", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	time.Sleep(20 * time.Millisecond)

	n, err = store.Incr(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expired counter restarts at 1")
}

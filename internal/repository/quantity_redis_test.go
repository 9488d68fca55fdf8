package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"stockledger-api/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisQuantityStore {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	store := newRedisQuantityStore(client, "test:"+uuid.NewString())
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, store.keyPrefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})
	return store
}

func TestRedisQuantityStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	_, err := store.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := store.CreateIfAbsent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.Quantity)
	assert.Equal(t, int64(0), created.Version)

	rec, err := store.CompareAndSwap(ctx, 1, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.Quantity)
	assert.Equal(t, int64(1), rec.Version)

	_, err = store.CompareAndSwap(ctx, 1, 0, 3)
	assert.ErrorIs(t, err, ErrConflict)

	again, err := store.CreateIfAbsent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), again.Quantity)
	assert.Equal(t, int64(1), again.Version)

	_, err = store.CompareAndSwap(ctx, 2, 0, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisQuantityStore_Reporting(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	for id, q := range map[int64]int64{1: 0, 2: 4, 3: 30} {
		rec, err := store.CreateIfAbsent(ctx, id)
		require.NoError(t, err)
		if q > 0 {
			_, err = store.CompareAndSwap(ctx, id, rec.Version, q)
			require.NoError(t, err)
		}
	}

	stats, err := store.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryStats{TotalRecords: 3, TotalQuantity: 34, OutOfStock: 1, LowStock: 2, LowStockThreshold: 10}, *stats)

	below, err := store.ListBelow(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, below, 2)

	empty, err := store.ListOutOfStock(ctx)
	require.NoError(t, err)
	require.Len(t, empty, 1)
	assert.Equal(t, int64(1), empty[0].ProductID)
}

package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stockledger-api/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLQuantityStore {
	t.Helper()
	store, err := NewSQLiteQuantityStore(filepath.Join(t.TempDir(), "inventory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLQuantityStore_GetMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLQuantityStore_CreateIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	first, err := store.CreateIfAbsent(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), first.ProductID)
	assert.Equal(t, int64(0), first.Quantity)
	assert.Equal(t, int64(0), first.Version)

	updated, err := store.CompareAndSwap(ctx, 7, 0, 12)
	require.NoError(t, err)

	again, err := store.CreateIfAbsent(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(12), again.Quantity)
	assert.Equal(t, updated.Version, again.Version, "existing record must not be bumped")
}

func TestSQLQuantityStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	created, err := store.CreateIfAbsent(ctx, 1)
	require.NoError(t, err)

	rec, err := store.CompareAndSwap(ctx, 1, created.Version, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Quantity)
	assert.Equal(t, created.Version+1, rec.Version)
	assert.False(t, rec.UpdatedAt.Before(created.UpdatedAt))
	assert.WithinDuration(t, created.CreatedAt, rec.CreatedAt, time.Millisecond)

	t.Run("stale version conflicts without writing", func(t *testing.T) {
		_, err := store.CompareAndSwap(ctx, 1, created.Version, 99)
		assert.ErrorIs(t, err, ErrConflict)

		current, err := store.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(5), current.Quantity)
		assert.Equal(t, rec.Version, current.Version)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := store.CompareAndSwap(ctx, 404, 0, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("negative quantity rejected", func(t *testing.T) {
		_, err := store.CompareAndSwap(ctx, 1, rec.Version, -1)
		assert.ErrorIs(t, err, ErrNegativeQuantity)
	})
}

func TestSQLQuantityStore_ConcurrentSwapsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	created, err := store.CreateIfAbsent(ctx, 3)
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(q int64) {
			defer wg.Done()
			_, err := store.CompareAndSwap(ctx, 3, created.Version, q)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, ErrConflict) {
				conflicts++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

func TestSQLQuantityStore_Reporting(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	quantities := map[int64]int64{1: 0, 2: 3, 3: 10, 4: 25, 5: 0}
	for id, q := range quantities {
		rec, err := store.CreateIfAbsent(ctx, id)
		require.NoError(t, err)
		if q > 0 {
			_, err = store.CompareAndSwap(ctx, id, rec.Version, q)
			require.NoError(t, err)
		}
	}

	stats, err := store.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.InventoryStats{
		TotalRecords:      5,
		TotalQuantity:     38,
		OutOfStock:        2,
		LowStock:          3,
		LowStockThreshold: 10,
	}, *stats)

	below, err := store.ListBelow(ctx, 10)
	require.NoError(t, err)
	require.Len(t, below, 3)
	assert.Equal(t, []int64{1, 5, 2}, []int64{below[0].ProductID, below[1].ProductID, below[2].ProductID})

	empty, err := store.ListOutOfStock(ctx)
	require.NoError(t, err)
	require.Len(t, empty, 2)
	assert.Equal(t, int64(1), empty[0].ProductID)
	assert.Equal(t, int64(5), empty[1].ProductID)
}

func TestSQLQuantityStore_StatsEmpty(t *testing.T) {
	store := newTestSQLiteStore(t)

	stats, err := store.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalRecords)
	assert.Equal(t, int64(0), stats.TotalQuantity)
}

func TestSQLAuditRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	audit := NewSQLAuditRepository(store)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	unit := decimal.RequireFromString("2.50")
	total := decimal.RequireFromString("25.00")

	entries := []*model.AuditEntry{
		{ID: "a", ProductID: 9, Kind: model.AuditSet, Quantity: 42, PreviousQuantity: 0, ResultingQuantity: 42, Note: "adjusted 0 -> 42", OccurredAt: base},
		{ID: "b", ProductID: 9, Kind: model.AuditIncrease, Quantity: 10, PreviousQuantity: 42, ResultingQuantity: 52, UnitPrice: &unit, TotalPrice: &total, OccurredAt: base.Add(time.Second)},
		{ID: "c", ProductID: 9, Kind: model.AuditDecrease, Quantity: 2, PreviousQuantity: 52, ResultingQuantity: 50, OccurredAt: base.Add(2 * time.Second)},
		{ID: "d", ProductID: 10, Kind: model.AuditSet, Quantity: 1, ResultingQuantity: 1, OccurredAt: base},
	}
	for _, e := range entries {
		require.NoError(t, audit.Append(ctx, e))
	}

	got, total64, err := audit.List(ctx, AuditFilter{ProductID: 9, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total64)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[2].ID)
	assert.Equal(t, "adjusted 0 -> 42", got[2].Note)

	increase := got[1]
	require.NotNil(t, increase.UnitPrice)
	require.NotNil(t, increase.TotalPrice)
	assert.True(t, increase.UnitPrice.Equal(unit))
	assert.True(t, increase.TotalPrice.Equal(total))

	filtered, n, err := audit.List(ctx, AuditFilter{ProductID: 9, Kind: model.AuditIncrease, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].ID)

	page, n, err := audit.List(ctx, AuditFilter{ProductID: 9, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestSQLAuditRepository_SameTimestampKeepsAppendOrder(t *testing.T) {
	ctx := context.Background()
	audit := NewSQLAuditRepository(newTestSQLiteStore(t))

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// ids sort opposite to append order
	for _, id := range []string{"z", "m", "a"} {
		require.NoError(t, audit.Append(ctx, &model.AuditEntry{ID: id, ProductID: 5, Kind: model.AuditIncrease, Quantity: 1, OccurredAt: at}))
	}

	got, _, err := audit.List(ctx, AuditFilter{ProductID: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestDialect_Rebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", sqliteDialect.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", postgresDialect.rebind("a = ? AND b = ?"))
}

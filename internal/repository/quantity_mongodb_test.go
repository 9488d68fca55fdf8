package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"stockledger-api/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func newTestMongoClient(t *testing.T) (*mongo.Client, string) {
	t.Helper()

	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}

	dbName := "stockledger_test_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		ctx := context.Background()
		_ = client.Database(dbName).Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return client, dbName
}

func TestMongoDBQuantityStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client, dbName := newTestMongoClient(t)

	store, err := NewMongoDBQuantityStore(ctx, client, dbName, "inventory")
	require.NoError(t, err)

	_, err = store.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := store.CreateIfAbsent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.Version)

	rec, err := store.CompareAndSwap(ctx, 5, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.Quantity)
	assert.Equal(t, int64(1), rec.Version)

	_, err = store.CompareAndSwap(ctx, 5, 0, 1)
	assert.ErrorIs(t, err, ErrConflict)

	again, err := store.CreateIfAbsent(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(11), again.Quantity)
	assert.Equal(t, int64(1), again.Version)

	stats, err := store.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)
	assert.Equal(t, int64(11), stats.TotalQuantity)
	assert.Equal(t, int64(0), stats.LowStock)
}

func TestMongoDBAuditRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	client, dbName := newTestMongoClient(t)

	audit, err := NewMongoDBAuditRepository(ctx, client, dbName, "audit", false)
	require.NoError(t, err)

	unit := decimal.RequireFromString("2.50")
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, audit.Append(ctx, &model.AuditEntry{ID: "one", ProductID: 1, Kind: model.AuditIncrease, Quantity: 2, UnitPrice: &unit, OccurredAt: now}))
	require.NoError(t, audit.Append(ctx, &model.AuditEntry{ID: "two", ProductID: 1, Kind: model.AuditDecrease, Quantity: 1, OccurredAt: now.Add(time.Second)}))

	entries, total, err := audit.List(ctx, AuditFilter{ProductID: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].ID)
	require.NotNil(t, entries[1].UnitPrice)
	assert.True(t, entries[1].UnitPrice.Equal(unit))
}

func TestMongoDBAuditRepository_SameTimestampKeepsAppendOrder(t *testing.T) {
	ctx := context.Background()
	client, dbName := newTestMongoClient(t)

	audit, err := NewMongoDBAuditRepository(ctx, client, dbName, "audit", false)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Millisecond)
	for _, id := range []string{"z", "m", "a"} {
		require.NoError(t, audit.Append(ctx, &model.AuditEntry{ID: id, ProductID: 5, Kind: model.AuditIncrease, Quantity: 1, OccurredAt: at}))
	}

	got, _, err := audit.List(ctx, AuditFilter{ProductID: 5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

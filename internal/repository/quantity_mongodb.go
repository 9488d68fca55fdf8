package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger-api/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBQuantityStore implements QuantityStore using MongoDB.
// CompareAndSwap relies on FindOneAndUpdate matching {product_id, version}.
type MongoDBQuantityStore struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	now        func() time.Time
}

// ConnectMongo connects and pings a MongoDB deployment.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewMongoDBQuantityStore creates a MongoDB quantity store on an existing client.
func NewMongoDBQuantityStore(ctx context.Context, client *mongo.Client, database, collection string) (*MongoDBQuantityStore, error) {
	db := client.Database(database)
	coll := db.Collection(collection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "quantity", Value: 1}},
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Info().Str("component", "MongoDBQuantityStore").Msgf("connected to %s/%s", database, collection)
	return &MongoDBQuantityStore{
		client:     client,
		db:         db,
		collection: coll,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get returns the record for productID.
func (r *MongoDBQuantityStore) Get(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	var rec model.QuantityRecord
	err := r.collection.FindOne(ctx, bson.M{"product_id": productID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quantity record %d: %w", productID, err)
	}
	return &rec, nil
}

// CreateIfAbsent upserts with $setOnInsert so an existing document is left untouched.
func (r *MongoDBQuantityStore) CreateIfAbsent(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	now := r.now()
	update := bson.M{
		"$setOnInsert": bson.M{
			"product_id": productID,
			"quantity":   int64(0),
			"version":    int64(0),
			"created_at": now,
			"updated_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec model.QuantityRecord
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"product_id": productID}, update, opts).Decode(&rec)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race against another creator.
		return r.Get(ctx, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create quantity record %d: %w", productID, err)
	}
	return &rec, nil
}

// CompareAndSwap updates the document only when its version still matches.
func (r *MongoDBQuantityStore) CompareAndSwap(ctx context.Context, productID, expectedVersion, newQuantity int64) (*model.QuantityRecord, error) {
	if newQuantity < 0 {
		return nil, ErrNegativeQuantity
	}

	filter := bson.M{"product_id": productID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{"quantity": newQuantity, "updated_at": r.now()},
		"$inc": bson.M{"version": int64(1)},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec model.QuantityRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := r.Get(ctx, productID); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update quantity record %d: %w", productID, err)
	}
	return &rec, nil
}

// Stats aggregates totals across the collection.
func (r *MongoDBQuantityStore) Stats(ctx context.Context, lowStockThreshold int64) (*model.InventoryStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":            nil,
			"total_records":  bson.M{"$sum": 1},
			"total_quantity": bson.M{"$sum": "$quantity"},
			"out_of_stock": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$quantity", 0}}, 1, 0},
			}},
			"low_stock": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$lt": bson.A{"$quantity", lowStockThreshold}}, 1, 0},
			}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate inventory stats: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &model.InventoryStats{LowStockThreshold: lowStockThreshold}
	if cursor.Next(ctx) {
		var doc struct {
			TotalRecords  int64 `bson:"total_records"`
			TotalQuantity int64 `bson:"total_quantity"`
			OutOfStock    int64 `bson:"out_of_stock"`
			LowStock      int64 `bson:"low_stock"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode inventory stats: %w", err)
		}
		stats.TotalRecords = doc.TotalRecords
		stats.TotalQuantity = doc.TotalQuantity
		stats.OutOfStock = doc.OutOfStock
		stats.LowStock = doc.LowStock
	}
	return stats, cursor.Err()
}

// ListBelow returns records whose quantity is strictly below threshold.
func (r *MongoDBQuantityStore) ListBelow(ctx context.Context, threshold int64) ([]model.QuantityRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "quantity", Value: 1}, {Key: "product_id", Value: 1}})
	return r.find(ctx, bson.M{"quantity": bson.M{"$lt": threshold}}, opts)
}

// ListOutOfStock returns records whose quantity is zero.
func (r *MongoDBQuantityStore) ListOutOfStock(ctx context.Context) ([]model.QuantityRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "product_id", Value: 1}})
	return r.find(ctx, bson.M{"quantity": int64(0)}, opts)
}

func (r *MongoDBQuantityStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.QuantityRecord, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list quantity records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []model.QuantityRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode quantity records: %w", err)
	}
	return records, nil
}

// Ping checks the deployment is reachable.
func (r *MongoDBQuantityStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (r *MongoDBQuantityStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ QuantityStore = (*MongoDBQuantityStore)(nil)

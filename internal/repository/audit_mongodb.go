package repository

import (
	"context"
	"fmt"
	"time"

	"stockledger-api/internal/model"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBAuditRepository implements AuditRepository for MongoDB.
type MongoDBAuditRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	// counters holds one {_id: product_id, seq} document per product.
	counters   *mongo.Collection
	ownsClient bool
}

// auditDocument is the stored form of an audit entry. Prices are kept as
// strings so no precision is lost in BSON doubles.
type auditDocument struct {
	ID                string    `bson:"_id"`
	ProductID         int64     `bson:"product_id"`
	Kind              string    `bson:"kind"`
	Quantity          int64     `bson:"quantity"`
	PreviousQuantity  int64     `bson:"previous_quantity"`
	ResultingQuantity int64     `bson:"resulting_quantity"`
	UnitPrice         string    `bson:"unit_price,omitempty"`
	TotalPrice        string    `bson:"total_price,omitempty"`
	Note              string    `bson:"note,omitempty"`
	RequestID         string    `bson:"request_id,omitempty"`
	OccurredAt        time.Time `bson:"occurred_at"`
	Seq               int64     `bson:"seq"`
}

// NewMongoDBAuditRepository creates an audit repository on client.
// When ownsClient is set, Close disconnects the client.
func NewMongoDBAuditRepository(ctx context.Context, client *mongo.Client, dbName, collectionName string, ownsClient bool) (*MongoDBAuditRepository, error) {
	collection := client.Database(dbName).Collection(collectionName)

	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "seq", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit index: %w", err)
	}

	return &MongoDBAuditRepository{
		client:     client,
		collection: collection,
		counters:   client.Database(dbName).Collection(collectionName + "_seq"),
		ownsClient: ownsClient,
	}, nil
}

// Append inserts a new audit entry.
func (r *MongoDBAuditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	seq, err := r.nextSeq(ctx, entry.ProductID)
	if err != nil {
		return err
	}

	doc := auditDocument{
		ID:                entry.ID,
		ProductID:         entry.ProductID,
		Kind:              string(entry.Kind),
		Quantity:          entry.Quantity,
		PreviousQuantity:  entry.PreviousQuantity,
		ResultingQuantity: entry.ResultingQuantity,
		Note:              entry.Note,
		RequestID:         entry.RequestID,
		OccurredAt:        entry.OccurredAt,
		Seq:               seq,
	}
	if entry.UnitPrice != nil {
		doc.UnitPrice = entry.UnitPrice.String()
	}
	if entry.TotalPrice != nil {
		doc.TotalPrice = entry.TotalPrice.String()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// nextSeq allocates the next per-product sequence number.
func (r *MongoDBAuditRepository) nextSeq(ctx context.Context, productID int64) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": productID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate audit sequence: %w", err)
	}
	return counter.Seq, nil
}

// List retrieves entries for a product with pagination, newest first.
func (r *MongoDBAuditRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, int64, error) {
	query := bson.M{"product_id": filter.ProductID}
	if filter.Kind != "" {
		query["kind"] = string(filter.Kind)
	}

	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "seq", Value: -1}})
	findOptions.SetLimit(int64(filter.Limit))
	findOptions.SetSkip(int64(filter.Offset))

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}

	// Ensure not nil slice for JSON
	entries := make([]model.AuditEntry, 0, len(docs))
	for _, d := range docs {
		e := model.AuditEntry{
			ID:                d.ID,
			ProductID:         d.ProductID,
			Kind:              model.AuditKind(d.Kind),
			Quantity:          d.Quantity,
			PreviousQuantity:  d.PreviousQuantity,
			ResultingQuantity: d.ResultingQuantity,
			Note:              d.Note,
			RequestID:         d.RequestID,
			OccurredAt:        d.OccurredAt,
		}
		e.UnitPrice = parseDecimal(d.UnitPrice)
		e.TotalPrice = parseDecimal(d.TotalPrice)
		entries = append(entries, e)
	}

	count, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	return entries, count, nil
}

// Close closes the MongoDB connection if this repository owns it.
func (r *MongoDBAuditRepository) Close() error {
	if !r.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func parseDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

var _ AuditRepository = (*MongoDBAuditRepository)(nil)

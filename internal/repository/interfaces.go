package repository

import (
	"context"
	"errors"

	"stockledger-api/internal/model"
)

var (
	// ErrNotFound is returned when no quantity record exists for a product.
	ErrNotFound = errors.New("quantity record not found")

	// ErrConflict is returned by CompareAndSwap when the stored version
	// no longer matches the expected one. Nothing is written.
	ErrConflict = errors.New("quantity record version conflict")

	// ErrNegativeQuantity is returned when a write would store a quantity below zero.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
)

// QuantityStore defines quantity record data access methods.
// All writes go through CompareAndSwap.
type QuantityStore interface {
	// Get returns the record for productID or ErrNotFound.
	Get(ctx context.Context, productID int64) (*model.QuantityRecord, error)

	// CreateIfAbsent returns the existing record unchanged, or creates one
	// with quantity 0 and version 0.
	CreateIfAbsent(ctx context.Context, productID int64) (*model.QuantityRecord, error)

	// CompareAndSwap stores newQuantity only if the stored version equals
	// expectedVersion, advancing the version by one. Returns ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, productID, expectedVersion, newQuantity int64) (*model.QuantityRecord, error)

	// Stats returns totals across all records.
	Stats(ctx context.Context, lowStockThreshold int64) (*model.InventoryStats, error)

	// ListBelow returns records whose quantity is strictly below threshold, lowest first.
	ListBelow(ctx context.Context, threshold int64) ([]model.QuantityRecord, error)

	// ListOutOfStock returns records whose quantity is zero.
	ListOutOfStock(ctx context.Context) ([]model.QuantityRecord, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// AuditFilter narrows an audit history query.
type AuditFilter struct {
	ProductID int64
	Kind      model.AuditKind // empty matches every kind
	Limit     int
	Offset    int
}

// AuditRepository defines audit trail storage.
type AuditRepository interface {
	// Append stores a single entry.
	Append(ctx context.Context, entry *model.AuditEntry) error

	// List returns entries for a product, newest first, with the total match count.
	List(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, int64, error)

	Close() error
}

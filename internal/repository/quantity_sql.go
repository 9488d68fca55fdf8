package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stockledger-api/internal/model"
)

const recordColumns = `product_id, quantity, version, created_at, updated_at`

// SQLQuantityStore implements QuantityStore on database/sql.
// The version predicate in the UPDATE is the only concurrency control,
// so it holds across any number of service instances.
type SQLQuantityStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLQuantityStore(db *sql.DB, d dialect) (*SQLQuantityStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return &SQLQuantityStore{
		db:      db,
		dialect: d,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// DB exposes the underlying pool so the audit repository can share it.
func (r *SQLQuantityStore) DB() *sql.DB {
	return r.db
}

// Dialect returns the backend name (sqlite, postgres, mysql).
func (r *SQLQuantityStore) Dialect() string {
	return r.dialect.name
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.QuantityRecord, error) {
	var rec model.QuantityRecord
	if err := row.Scan(&rec.ProductID, &rec.Quantity, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLQuantityStore) get(ctx context.Context, q queryRower, productID int64) (*model.QuantityRecord, error) {
	query := r.dialect.rebind(`SELECT ` + recordColumns + ` FROM inventory WHERE product_id = ?`)
	rec, err := scanRecord(q.QueryRowContext(ctx, query, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quantity record %d: %w", productID, err)
	}
	return rec, nil
}

// Get returns the record for productID.
func (r *SQLQuantityStore) Get(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	return r.get(ctx, r.db, productID)
}

// CreateIfAbsent inserts a zero record unless one exists, then returns the stored row.
func (r *SQLQuantityStore) CreateIfAbsent(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	now := r.now()
	query := r.dialect.rebind(r.dialect.insertStub)
	if _, err := r.db.ExecContext(ctx, query, productID, now, now); err != nil {
		return nil, fmt.Errorf("failed to create quantity record %d: %w", productID, err)
	}
	return r.get(ctx, r.db, productID)
}

// CompareAndSwap updates the quantity when the stored version equals expectedVersion.
func (r *SQLQuantityStore) CompareAndSwap(ctx context.Context, productID, expectedVersion, newQuantity int64) (*model.QuantityRecord, error) {
	if newQuantity < 0 {
		return nil, ErrNegativeQuantity
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := r.dialect.rebind(`
		UPDATE inventory
		SET quantity = ?, version = version + 1, updated_at = ?
		WHERE product_id = ? AND version = ?`)

	result, err := tx.ExecContext(ctx, query, newQuantity, r.now(), productID, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update quantity record %d: %w", productID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := r.get(ctx, tx, productID); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}

	rec, err := r.get(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// Stats returns totals across all records.
func (r *SQLQuantityStore) Stats(ctx context.Context, lowStockThreshold int64) (*model.InventoryStats, error) {
	query := r.dialect.rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(quantity), 0),
			COALESCE(SUM(CASE WHEN quantity = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN quantity < ? THEN 1 ELSE 0 END), 0)
		FROM inventory`)

	stats := model.InventoryStats{LowStockThreshold: lowStockThreshold}
	err := r.db.QueryRowContext(ctx, query, lowStockThreshold).
		Scan(&stats.TotalRecords, &stats.TotalQuantity, &stats.OutOfStock, &stats.LowStock)
	if err != nil {
		return nil, fmt.Errorf("failed to compute inventory stats: %w", err)
	}
	return &stats, nil
}

// ListBelow returns records whose quantity is strictly below threshold.
func (r *SQLQuantityStore) ListBelow(ctx context.Context, threshold int64) ([]model.QuantityRecord, error) {
	query := r.dialect.rebind(`SELECT ` + recordColumns + ` FROM inventory WHERE quantity < ? ORDER BY quantity ASC, product_id ASC`)
	return r.list(ctx, query, threshold)
}

// ListOutOfStock returns records whose quantity is zero.
func (r *SQLQuantityStore) ListOutOfStock(ctx context.Context) ([]model.QuantityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory WHERE quantity = 0 ORDER BY product_id ASC`
	return r.list(ctx, query)
}

func (r *SQLQuantityStore) list(ctx context.Context, query string, args ...any) ([]model.QuantityRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quantity records: %w", err)
	}
	defer rows.Close()

	records := []model.QuantityRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quantity record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Ping checks the database is reachable.
func (r *SQLQuantityStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (r *SQLQuantityStore) Close() error {
	return r.db.Close()
}

// Ensure SQLQuantityStore implements QuantityStore
var _ QuantityStore = (*SQLQuantityStore)(nil)

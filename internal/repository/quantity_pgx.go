package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger-api/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PgxQuantityStore implements QuantityStore on a pgx connection pool.
// CompareAndSwap is a single UPDATE ... RETURNING, no explicit transaction.
type PgxQuantityStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPgxQuantityStore connects a pgx pool and ensures the schema exists.
func NewPgxQuantityStore(ctx context.Context, dsn string) (*PgxQuantityStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx dsn: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 5 * time.Minute
	poolCfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	for _, stmt := range postgresDialect.schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Info().Str("component", "PgxQuantityStore").Int32("max_conns", poolCfg.MaxConns).Msg("initialized")
	return &PgxQuantityStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func scanPgxRecord(row pgx.Row) (*model.QuantityRecord, error) {
	var rec model.QuantityRecord
	err := row.Scan(&rec.ProductID, &rec.Quantity, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get returns the record for productID.
func (r *PgxQuantityStore) Get(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	rec, err := scanPgxRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM inventory WHERE product_id = $1`, productID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get quantity record %d: %w", productID, err)
	}
	return rec, err
}

// CreateIfAbsent inserts a zero record unless one exists.
func (r *PgxQuantityStore) CreateIfAbsent(ctx context.Context, productID int64) (*model.QuantityRecord, error) {
	now := r.now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inventory (product_id, quantity, version, created_at, updated_at)
		VALUES ($1, 0, 0, $2, $2)
		ON CONFLICT (product_id) DO NOTHING`, productID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create quantity record %d: %w", productID, err)
	}
	return r.Get(ctx, productID)
}

// CompareAndSwap updates the row when the version matches and returns the new row.
func (r *PgxQuantityStore) CompareAndSwap(ctx context.Context, productID, expectedVersion, newQuantity int64) (*model.QuantityRecord, error) {
	if newQuantity < 0 {
		return nil, ErrNegativeQuantity
	}

	rec, err := scanPgxRecord(r.pool.QueryRow(ctx, `
		UPDATE inventory
		SET quantity = $1, version = version + 1, updated_at = $2
		WHERE product_id = $3 AND version = $4
		RETURNING `+recordColumns, newQuantity, r.now(), productID, expectedVersion))
	if errors.Is(err, ErrNotFound) {
		if _, err := r.Get(ctx, productID); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update quantity record %d: %w", productID, err)
	}
	return rec, nil
}

// Stats returns totals across all records.
func (r *PgxQuantityStore) Stats(ctx context.Context, lowStockThreshold int64) (*model.InventoryStats, error) {
	stats := model.InventoryStats{LowStockThreshold: lowStockThreshold}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(quantity), 0)::BIGINT,
			COUNT(*) FILTER (WHERE quantity = 0),
			COUNT(*) FILTER (WHERE quantity < $1)
		FROM inventory`, lowStockThreshold).
		Scan(&stats.TotalRecords, &stats.TotalQuantity, &stats.OutOfStock, &stats.LowStock)
	if err != nil {
		return nil, fmt.Errorf("failed to compute inventory stats: %w", err)
	}
	return &stats, nil
}

// ListBelow returns records whose quantity is strictly below threshold.
func (r *PgxQuantityStore) ListBelow(ctx context.Context, threshold int64) ([]model.QuantityRecord, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM inventory WHERE quantity < $1 ORDER BY quantity ASC, product_id ASC`, threshold)
}

// ListOutOfStock returns records whose quantity is zero.
func (r *PgxQuantityStore) ListOutOfStock(ctx context.Context) ([]model.QuantityRecord, error) {
	return r.list(ctx, `SELECT `+recordColumns+` FROM inventory WHERE quantity = 0 ORDER BY product_id ASC`)
}

func (r *PgxQuantityStore) list(ctx context.Context, query string, args ...any) ([]model.QuantityRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quantity records: %w", err)
	}
	defer rows.Close()

	records := []model.QuantityRecord{}
	for rows.Next() {
		rec, err := scanPgxRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quantity record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Ping checks the pool can reach PostgreSQL.
func (r *PgxQuantityStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *PgxQuantityStore) Close() error {
	r.pool.Close()
	return nil
}

var _ QuantityStore = (*PgxQuantityStore)(nil)

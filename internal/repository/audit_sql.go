package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"stockledger-api/internal/model"

	"github.com/shopspring/decimal"
)

// SQLAuditRepository stores audit entries in the inventory_audit table
// created alongside the quantity store.
type SQLAuditRepository struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLAuditRepository shares the quantity store's connection pool.
func NewSQLAuditRepository(store *SQLQuantityStore) *SQLAuditRepository {
	return &SQLAuditRepository{db: store.db, dialect: store.dialect}
}

// Append inserts a single audit entry.
func (r *SQLAuditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	query := r.dialect.rebind(`
		INSERT INTO inventory_audit
			(id, product_id, kind, quantity, previous_quantity, resulting_quantity,
			 unit_price, total_price, note, request_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ProductID,
		string(entry.Kind),
		entry.Quantity,
		entry.PreviousQuantity,
		entry.ResultingQuantity,
		nullDecimal(entry.UnitPrice),
		nullDecimal(entry.TotalPrice),
		nullString(entry.Note),
		nullString(entry.RequestID),
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// List returns entries for a product, most recently appended first.
func (r *SQLAuditRepository) List(ctx context.Context, filter AuditFilter) ([]model.AuditEntry, int64, error) {
	where := []string{"product_id = ?"}
	args := []any{filter.ProductID}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	countQuery := r.dialect.rebind(`SELECT COUNT(*) FROM inventory_audit WHERE ` + cond)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := r.dialect.rebind(`
		SELECT id, product_id, kind, quantity, previous_quantity, resulting_quantity,
			unit_price, total_price, note, request_id, occurred_at
		FROM inventory_audit
		WHERE ` + cond + `
		ORDER BY seq DESC
		LIMIT ? OFFSET ?`)

	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var (
			e                     model.AuditEntry
			kind                  string
			unitPrice, totalPrice decimal.NullDecimal
			note, requestID       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ProductID, &kind, &e.Quantity, &e.PreviousQuantity, &e.ResultingQuantity,
			&unitPrice, &totalPrice, &note, &requestID, &e.OccurredAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Kind = model.AuditKind(kind)
		if unitPrice.Valid {
			e.UnitPrice = &unitPrice.Decimal
		}
		if totalPrice.Valid {
			e.TotalPrice = &totalPrice.Decimal
		}
		e.Note = note.String
		e.RequestID = requestID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// Close is a no-op; the pool is owned by the quantity store.
func (r *SQLAuditRepository) Close() error {
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ AuditRepository = (*SQLAuditRepository)(nil)

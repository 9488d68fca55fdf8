package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	insertStub: `INSERT OR IGNORE INTO inventory (product_id, quantity, version, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)`,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			product_id INTEGER PRIMARY KEY,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_quantity ON inventory(quantity)`,
		`CREATE TABLE IF NOT EXISTS inventory_audit (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			product_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			previous_quantity INTEGER NOT NULL,
			resulting_quantity INTEGER NOT NULL,
			unit_price TEXT,
			total_price TEXT,
			note TEXT,
			request_id TEXT,
			occurred_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_product ON inventory_audit(product_id, seq)`,
	},
}

// NewSQLiteQuantityStore opens (or creates) a SQLite database at dbPath.
// dbPath is the path to the SQLite database file (e.g., "./data/inventory.db")
func NewSQLiteQuantityStore(dbPath string) (*SQLQuantityStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_time_format=sqlite", dbPath)

	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	store, err := newSQLQuantityStore(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("component", "SQLiteQuantityStore").Str("path", dbPath).Msg("initialized")
	return store, nil
}

package repository

import (
	"fmt"

	"github.com/rs/zerolog/log"

	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	insertStub: `INSERT IGNORE INTO inventory (product_id, quantity, version, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)`,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS inventory (
			product_id BIGINT PRIMARY KEY,
			quantity BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX idx_inventory_quantity (quantity),
			CONSTRAINT chk_inventory_quantity CHECK (quantity >= 0)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS inventory_audit (
			seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(36) NOT NULL UNIQUE,
			product_id BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			quantity BIGINT NOT NULL,
			previous_quantity BIGINT NOT NULL,
			resulting_quantity BIGINT NOT NULL,
			unit_price DECIMAL(19, 4) NULL,
			total_price DECIMAL(19, 4) NULL,
			note VARCHAR(255) NULL,
			request_id VARCHAR(64) NULL,
			occurred_at DATETIME(6) NOT NULL,
			INDEX idx_audit_product (product_id, seq)
		) ENGINE=InnoDB`,
	},
}

// NewMySQLQuantityStore creates a MySQL-backed quantity store.
// dsn must carry parseTime=true so DATETIME columns scan into time.Time.
func NewMySQLQuantityStore(dsn string) (*SQLQuantityStore, error) {
	db, err := openPooled(mysqlDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	store, err := newSQLQuantityStore(db, mysqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("component", "MySQLQuantityStore").Msg("initialized")
	return store, nil
}

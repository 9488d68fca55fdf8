package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.InventoryDB.Type)
	assert.Equal(t, 10, cfg.Guard.WindowSize)
	assert.Equal(t, 50.0, cfg.Guard.FailureRateThreshold)
	assert.Equal(t, 5, cfg.Guard.MinimumCalls)
	assert.Equal(t, 5*time.Second, cfg.Guard.OpenTimeout)
	assert.Equal(t, 3, cfg.Guard.HalfOpenCalls)
	assert.Equal(t, 3, cfg.Guard.MaxAttempts)
	assert.Equal(t, 5, cfg.Ledger.MaxCASAttempts)
	assert.Equal(t, "unavailable", cfg.Ledger.FallbackPolicy)
	assert.Equal(t, int64(10), cfg.Ledger.LowStockThreshold)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_APIKeysAreTrimmed(t *testing.T) {
	t.Setenv("API_KEYS", "alpha, beta ,gamma")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Auth.APIKeys)
}

func TestLoad_RejectsUnknownStore(t *testing.T) {
	t.Setenv("INVENTORY_DB_TYPE", "cassandra")

	_, err := Load()
	assert.ErrorContains(t, err, "INVENTORY_DB_TYPE")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			InventoryDB:    InventoryDBConfig{Type: "sqlite"},
			Audit:          AuditConfig{Store: "sql"},
			Ledger:         LedgerConfig{MaxCASAttempts: 5, FallbackPolicy: "unavailable"},
			ProductService: ProductServiceConfig{Timeout: time.Second},
			Guard: GuardConfig{
				WindowSize: 10, FailureRateThreshold: 50, MinimumCalls: 5,
				HalfOpenCalls: 3, MaxAttempts: 3,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "sql audit needs sql store", mutate: func(c *Config) { c.InventoryDB.Type = "redis" }, wantErr: "AUDIT_STORE"},
		{name: "mongo audit with redis store", mutate: func(c *Config) { c.InventoryDB.Type = "redis"; c.Audit.Store = "mongodb" }},
		{name: "bad policy", mutate: func(c *Config) { c.Ledger.FallbackPolicy = "ignore" }, wantErr: "LEDGER_FALLBACK_POLICY"},
		{name: "zero cas attempts", mutate: func(c *Config) { c.Ledger.MaxCASAttempts = 0 }, wantErr: "LEDGER_MAX_CAS_ATTEMPTS"},
		{name: "threshold above 100", mutate: func(c *Config) { c.Guard.FailureRateThreshold = 120 }, wantErr: "GUARD_FAILURE_RATE_THRESHOLD"},
		{name: "zero window", mutate: func(c *Config) { c.Guard.WindowSize = 0 }, wantErr: "guard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestInventoryDBConfig_DSNs(t *testing.T) {
	c := InventoryDBConfig{User: "u", Password: "p", Host: "db", Port: 5432, Name: "stock", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/stock?sslmode=disable", c.PostgresDSN())

	c.Port = 3306
	assert.Equal(t, "u:p@tcp(db:3306)/stock?parseTime=true", c.MySQLDSN())
}

func TestInventoryDBConfig_DefaultPortPerEngine(t *testing.T) {
	c := InventoryDBConfig{User: "u", Password: "p", Host: "db", Name: "stock", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/stock?sslmode=disable", c.PostgresDSN())
	assert.Equal(t, "u:p@tcp(db:3306)/stock?parseTime=true", c.MySQLDSN())
}

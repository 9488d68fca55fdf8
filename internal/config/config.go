package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server         ServerConfig
	App            AppConfig
	Auth           AuthConfig
	Log            LogConfig
	Cache          CacheConfig
	InventoryDB    InventoryDBConfig
	ProductService ProductServiceConfig
	Guard          GuardConfig
	Ledger         LedgerConfig
	Audit          AuditConfig
	Kafka          KafkaConfig
	Tracing        TracingConfig
	Reporting      ReportingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"stockledger-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// AuthConfig holds API key settings. An empty key list disables auth in development.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"` // json or console
}

// CacheConfig holds product metadata cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// InventoryDBConfig holds quantity store settings.
type InventoryDBConfig struct {
	Type string `envconfig:"INVENTORY_DB_TYPE" default:"sqlite"` // sqlite, postgres, pgx, mysql, mongodb, redis
	Path string `envconfig:"INVENTORY_DB_PATH" default:"./data/inventory.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"INVENTORY_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"INVENTORY_DB_PORT"` // 0 means the engine default
	Name     string `envconfig:"INVENTORY_DB_NAME" default:"stockledger"`
	User     string `envconfig:"INVENTORY_DB_USER" default:"postgres"`
	Password string `envconfig:"INVENTORY_DB_PASS" default:""`
	SSLMode  string `envconfig:"INVENTORY_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"stockledger"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"inventory"`
	// Redis settings (store mode)
	RedisKeyPrefix string `envconfig:"INVENTORY_REDIS_PREFIX" default:"stockledger:inventory"`
}

// ProductServiceConfig holds settings for the product catalogue service.
type ProductServiceConfig struct {
	BaseURL string        `envconfig:"PRODUCT_SERVICE_URL" default:"http://localhost:8081"`
	APIKey  string        `envconfig:"PRODUCT_SERVICE_API_KEY" default:""`
	Timeout time.Duration `envconfig:"PRODUCT_SERVICE_TIMEOUT" default:"5s"`
}

// GuardConfig holds circuit breaker and retry settings for the product service.
type GuardConfig struct {
	WindowSize           int           `envconfig:"GUARD_WINDOW_SIZE" default:"10"`
	FailureRateThreshold float64       `envconfig:"GUARD_FAILURE_RATE_THRESHOLD" default:"50"`
	MinimumCalls         int           `envconfig:"GUARD_MINIMUM_CALLS" default:"5"`
	OpenTimeout          time.Duration `envconfig:"GUARD_OPEN_TIMEOUT" default:"5s"`
	HalfOpenCalls        int           `envconfig:"GUARD_HALF_OPEN_CALLS" default:"3"`
	MaxAttempts          int           `envconfig:"GUARD_MAX_ATTEMPTS" default:"3"`
	InitialInterval      time.Duration `envconfig:"GUARD_INITIAL_INTERVAL" default:"1s"`
	Multiplier           float64       `envconfig:"GUARD_MULTIPLIER" default:"2"`
	MaxInterval          time.Duration `envconfig:"GUARD_MAX_INTERVAL" default:"10s"`
}

// LedgerConfig holds quantity ledger settings.
type LedgerConfig struct {
	MaxCASAttempts    int    `envconfig:"LEDGER_MAX_CAS_ATTEMPTS" default:"5"`
	FallbackPolicy    string `envconfig:"LEDGER_FALLBACK_POLICY" default:"unavailable"` // unavailable or not_found
	LowStockThreshold int64  `envconfig:"LEDGER_LOW_STOCK_THRESHOLD" default:"10"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Store           string        `envconfig:"AUDIT_STORE" default:"sql"` // sql, mongodb, none
	MongoCollection string        `envconfig:"AUDIT_MONGODB_COLLECTION" default:"inventory_audit"`
	WriteTimeout    time.Duration `envconfig:"AUDIT_WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig holds audit event publishing settings.
type KafkaConfig struct {
	Brokers    []string `envconfig:"KAFKA_BROKERS"`
	AuditTopic string   `envconfig:"KAFKA_AUDIT_TOPIC" default:"inventory.audit"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Endpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"stockledger-api"`
}

// ReportingConfig holds settings for the periodic inventory report.
type ReportingConfig struct {
	Interval time.Duration `envconfig:"REPORTING_INTERVAL" default:"1m"`
}

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
)

// PostgresDSN returns the PostgreSQL connection string.
func (i *InventoryDBConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		i.User, i.Password, i.Host, i.portOr(defaultPostgresPort), i.Name, i.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (i *InventoryDBConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		i.User, i.Password, i.Host, i.portOr(defaultMySQLPort), i.Name)
}

func (i *InventoryDBConfig) portOr(def int) int {
	if i.Port > 0 {
		return i.Port
	}
	return def
}

// IsSQL reports whether the store is backed by database/sql.
func (i *InventoryDBConfig) IsSQL() bool {
	switch i.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
		return true
	}
	return false
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Enabled reports whether audit publishing to Kafka is configured.
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	switch c.InventoryDB.Type {
	case "sqlite", "postgres", "postgresql", "pgx", "mysql", "mongodb", "mongo", "redis":
	default:
		return fmt.Errorf("unknown INVENTORY_DB_TYPE %q", c.InventoryDB.Type)
	}
	switch c.Audit.Store {
	case "sql", "mongodb", "none":
	default:
		return fmt.Errorf("unknown AUDIT_STORE %q", c.Audit.Store)
	}
	if c.Audit.Store == "sql" && !c.InventoryDB.IsSQL() {
		return fmt.Errorf("AUDIT_STORE=sql requires a SQL inventory store, got %q", c.InventoryDB.Type)
	}
	switch c.Ledger.FallbackPolicy {
	case "unavailable", "not_found":
	default:
		return fmt.Errorf("unknown LEDGER_FALLBACK_POLICY %q", c.Ledger.FallbackPolicy)
	}
	if c.Ledger.MaxCASAttempts < 1 {
		return fmt.Errorf("LEDGER_MAX_CAS_ATTEMPTS must be at least 1")
	}
	g := c.Guard
	if g.WindowSize < 1 || g.MinimumCalls < 1 || g.HalfOpenCalls < 1 || g.MaxAttempts < 1 {
		return fmt.Errorf("guard window, minimum calls, half-open calls and attempts must be positive")
	}
	if g.FailureRateThreshold <= 0 || g.FailureRateThreshold > 100 {
		return fmt.Errorf("GUARD_FAILURE_RATE_THRESHOLD must be in (0, 100]")
	}
	if c.ProductService.Timeout <= 0 {
		return fmt.Errorf("PRODUCT_SERVICE_TIMEOUT must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for i := range cfg.Auth.APIKeys {
		cfg.Auth.APIKeys[i] = strings.TrimSpace(cfg.Auth.APIKeys[i])
	}
	cfg.InventoryDB.Type = strings.ToLower(cfg.InventoryDB.Type)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/config"
	"stockledger-api/internal/events"
	"stockledger-api/internal/guard"
	"stockledger-api/internal/handler"
	"stockledger-api/internal/logger"
	"stockledger-api/internal/metrics"
	"stockledger-api/internal/middleware"
	"stockledger-api/internal/product"
	"stockledger-api/internal/repository"
	"stockledger-api/internal/router"
	"stockledger-api/internal/service"
	"stockledger-api/internal/tracing"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg)
	log.Info().Str("env", cfg.App.Environment).Str("store", cfg.InventoryDB.Type).Msg("starting stockledger-api")

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	m := metrics.New()

	// Initialize quantity store based on config
	store, mongoClient, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("type", cfg.InventoryDB.Type).Msg("failed to initialize quantity store")
	}
	log.Info().Str("type", cfg.InventoryDB.Type).Msg("quantity store initialized")

	auditRepo, err := openAuditRepository(ctx, cfg, store, mongoClient)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Audit.Store).Msg("failed to initialize audit repository")
	}

	var publishers []service.AuditPublisher
	if cfg.Kafka.Enabled() {
		publishers = append(publishers, events.NewKafkaAuditPublisher(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.AuditTopic).Msg("kafka audit publisher enabled")
	}
	audit := service.NewAuditLog(auditRepo, cfg.Audit.WriteTimeout, m, publishers...)

	// Product metadata cache
	var productCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis cache unavailable, falling back to memory")
			productCache = cache.NewMemoryCache(10000)
		} else {
			productCache = rc
		}
	default:
		productCache = cache.NewMemoryCache(10000)
	}

	client := product.NewClient(product.ClientConfig{
		BaseURL: cfg.ProductService.BaseURL,
		APIKey:  cfg.ProductService.APIKey,
		Timeout: cfg.ProductService.Timeout,
	})
	authority := product.NewCachedAuthority(client, productCache, cfg.Cache.TTL)

	g := guard.New(authority, guard.Settings{
		Name:            "product-service",
		AttemptTimeout:  cfg.ProductService.Timeout,
		MaxAttempts:     cfg.Guard.MaxAttempts,
		InitialInterval: cfg.Guard.InitialInterval,
		Multiplier:      cfg.Guard.Multiplier,
		MaxInterval:     cfg.Guard.MaxInterval,
		Breaker: guard.BreakerSettings{
			Name:                 "product-service",
			WindowSize:           cfg.Guard.WindowSize,
			FailureRateThreshold: cfg.Guard.FailureRateThreshold,
			MinimumCalls:         cfg.Guard.MinimumCalls,
			OpenTimeout:          cfg.Guard.OpenTimeout,
			HalfOpenCalls:        cfg.Guard.HalfOpenCalls,
		},
	}, m)

	// Initialize services
	ledger := service.NewLedgerService(store, g, audit, service.LedgerConfig{
		MaxCASAttempts:    cfg.Ledger.MaxCASAttempts,
		FallbackPolicy:    service.FallbackPolicy(cfg.Ledger.FallbackPolicy),
		LowStockThreshold: cfg.Ledger.LowStockThreshold,
	}, m)

	reporting := service.NewReportingScheduler(ledger, m, service.ReportingConfig{
		Interval: cfg.Reporting.Interval,
	})
	reporting.Start()

	// Initialize handlers
	r := router.New(router.Config{
		Handler:          handler.New(cfg.App.Name, cfg.App.Version, store),
		InventoryHandler: handler.NewInventoryHandler(ledger),
		LogHandler:       handler.NewLogHandler(ledger),
		AdminHandler:     handler.NewAdminHandler(ledger, g, reporting, cfg.InventoryDB.Type),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			APIKeys:        cfg.Auth.APIKeys,
			AllowAnonymous: cfg.App.IsDevelopment(),
		}),
		MetricsHandler: m.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// Stop the report before the store goes away
	reporting.Stop()

	if err := audit.Close(); err != nil {
		log.Error().Err(err).Msg("audit close error")
	}
	if err := productCache.Close(); err != nil {
		log.Error().Err(err).Msg("cache close error")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("store close error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown error")
	}

	log.Info().Msg("server stopped")
}

// openStore opens the configured quantity store. The Mongo client is
// returned so the audit repository can share it.
func openStore(ctx context.Context, cfg *config.Config) (repository.QuantityStore, *mongo.Client, error) {
	db := cfg.InventoryDB
	switch db.Type {
	case "mongodb", "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := repository.ConnectMongo(connectCtx, db.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewMongoDBQuantityStore(connectCtx, client, db.MongoDatabase, db.MongoCollection)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, client, nil
	case "postgres", "postgresql":
		store, err := repository.NewPostgresQuantityStore(db.PostgresDSN())
		return store, nil, err
	case "pgx":
		store, err := repository.NewPgxQuantityStore(ctx, db.PostgresDSN())
		return store, nil, err
	case "mysql":
		store, err := repository.NewMySQLQuantityStore(db.MySQLDSN())
		return store, nil, err
	case "redis":
		store, err := repository.NewRedisQuantityStore(repository.RedisStoreConfig{
			Addr:      cfg.Cache.RedisAddress(),
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: db.RedisKeyPrefix,
		})
		return store, nil, err
	default: // sqlite
		store, err := repository.NewSQLiteQuantityStore(db.Path)
		return store, nil, err
	}
}

// openAuditRepository returns nil when the audit store is disabled.
func openAuditRepository(ctx context.Context, cfg *config.Config, store repository.QuantityStore, client *mongo.Client) (repository.AuditRepository, error) {
	switch cfg.Audit.Store {
	case "sql":
		sqlStore, ok := store.(*repository.SQLQuantityStore)
		if !ok {
			return nil, fmt.Errorf("audit store sql needs a SQL quantity store, got %s", cfg.InventoryDB.Type)
		}
		return repository.NewSQLAuditRepository(sqlStore), nil
	case "mongodb":
		owns := client == nil
		if owns {
			c, err := repository.ConnectMongo(ctx, cfg.InventoryDB.MongoURI)
			if err != nil {
				return nil, err
			}
			client = c
		}
		return repository.NewMongoDBAuditRepository(ctx, client, cfg.InventoryDB.MongoDatabase, cfg.Audit.MongoCollection, owns)
	default:
		log.Warn().Msg("audit store disabled, history will be empty")
		return nil, nil
	}
}

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/tracker/pkg/auth"
	"github.com/platinummonkey/tracker/pkg/config"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/service"
	"github.com/platinummonkey/tracker/pkg/storage"
	"github.com/platinummonkey/tracker/pkg/storage/postgres"
)

// database holds the application pool and the pool the membership
// resolver reads through. For SQLite both are the same handle.
type database struct {
	driver   storage.Driver
	primary  *sql.DB
	resolver *sql.DB
	health   observability.Pinger
	close    func() error
}

func openDatabase(ctx context.Context, cfg config.StorageConfig) (*database, error) {
	if cfg.Driver == storage.DriverPostgres {
		cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
			PrimaryURL:  cfg.PostgresURL,
			ResolverURL: cfg.ResolverURL,
			MaxConns:    cfg.MaxConns,
			MinConns:    cfg.MinConns,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return &database{
			driver:   storage.DriverPostgres,
			primary:  cm.Primary(),
			resolver: cm.Resolver(),
			health:   observability.PingFunc(cm.HealthCheck),
			close:    cm.Close,
		}, nil
	}

	db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	return &database{
		driver:   storage.DriverSQLite,
		primary:  db,
		resolver: db,
		health:   db,
		close:    db.Close,
	}, nil
}

// app is the fully wired tracker core shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	db       *database
	registry *prometheus.Registry
	metrics  *observability.Metrics

	resolver  rbac.Resolver
	evaluator *rbac.Evaluator
	service   *service.Service
	tokens    *auth.TokenManager
}

func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*app, error) {
	db, err := openDatabase(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var storeOpts []service.StoreOption
	if cfg.Storage.RowSecurity {
		storeOpts = append(storeOpts, service.WithRowSecurity())
	}
	store := service.NewStore(db.primary, metrics, storeOpts...)

	resolver := rbac.NewSQLResolver(db.resolver, cfg.Storage.ResolveMode(), metrics)
	evaluator := rbac.NewEvaluator(resolver, metrics)

	logger.WithFields(map[string]interface{}{
		"driver":       db.driver,
		"row_security": cfg.Storage.RowSecurity,
	}).Debug("storage ready")

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		registry:  registry,
		metrics:   metrics,
		resolver:  resolver,
		evaluator: evaluator,
		service:   service.New(store, evaluator, resolver, metrics, service.WithInvitationTTL(cfg.Invitations.TTL)),
		tokens:    auth.NewTokenManager(db.primary, cfg.Auth.TokenCacheSize, cfg.Auth.TokenCacheTTL, metrics),
	}, nil
}

func (a *app) migrate(ctx context.Context) error {
	return storage.RunMigrations(ctx, a.db.primary, a.db.driver, a.logger)
}

func (a *app) Close() error {
	return a.db.close()
}

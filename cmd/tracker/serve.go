package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/tracker/pkg/api"
	"github.com/platinummonkey/tracker/pkg/config"
	"github.com/platinummonkey/tracker/pkg/jobs"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/storage/postgres"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: `  # Development server on SQLite
  tracker serve --migrate

  # Production on Postgres with row-level security
  TRACKER_STORAGE_DRIVER=postgres \
  TRACKER_POSTGRES_URL=postgres://tracker_app@db/tracker \
  TRACKER_ROW_SECURITY=true \
  tracker serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, migrate bool) error {
	cfg, logger := opts.cfg, opts.logger

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		observability.ShutdownOTel(context.Background(), providers, logger)
		return err
	}
	if migrate {
		if err := a.migrate(ctx); err != nil {
			a.Close()
			return err
		}
	}

	health := observability.NewHealthChecker(version).AddRequired("database", a.db.health)
	var closeRedis func(context.Context) error

	var rateLimit func(http.Handler) http.Handler
	if cfg.Auth.RateLimitEnabled {
		if cfg.Redis.URL != "" {
			client, err := postgres.NewRedisClient(ctx, postgres.RedisConfig{
				URL:        cfg.Redis.URL,
				Password:   cfg.Redis.Password,
				DB:         cfg.Redis.DB,
				MaxRetries: cfg.Redis.MaxRetries,
				PoolSize:   cfg.Redis.PoolSize,
			})
			if err != nil {
				a.Close()
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			limiter := middleware.NewDistributedRateLimitMiddleware(client, a.metrics)
			limiter.SetFallbackEnabled(cfg.Redis.FailOpen)
			rateLimit = limiter.Handler
			health.AddOptional("redis", observability.PingFunc(limiter.HealthCheck))
			closeRedis = func(context.Context) error { return client.Close() }
		} else {
			limiter := middleware.NewRateLimitMiddleware(a.metrics)
			limiter.StartCleanup(ctx)
			rateLimit = limiter.Handler
		}
	}

	routerCfg := api.ServerConfig{
		Service:        a.service,
		Checker:        a.evaluator,
		Resolver:       a.resolver,
		Tokens:         a.tokens,
		RateLimit:      rateLimit,
		Health:         health,
		Metrics:        a.metrics,
		Logger:         logger,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}
	if cfg.Observability.MetricsEnabled {
		routerCfg.Registry = a.registry
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     log.New(logger.Writer(), "", 0),
	}

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(logger, a.metrics)
		err := jobs.RegisterMaintenance(scheduler, jobs.Schedules{
			InvitationPurge: cfg.Jobs.InvitationPurgeSchedule,
			TokenCleanup:    cfg.Jobs.TokenCleanupSchedule,
		}, a.service, a.tokens)
		if err != nil {
			a.Close()
			return err
		}
		scheduler.Start(ctx)
	}

	if opts.configFile != "" {
		if err := config.Watch(ctx, opts.configFile, logger); err != nil {
			logger.WithError(err).Warn("config reload disabled")
		}
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error { return a.Close() })
	shutdown.RegisterShutdownFunc("redis", closeRedis)
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("tracker listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		logger.WithError(err).Error("server failed")
		shutdown.Shutdown()
		return err
	case <-ctx.Done():
	}

	// Jobs hold database connections; let them finish before pools close
	if scheduler != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := scheduler.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("jobs did not stop in time")
		}
		cancel()
	}
	return shutdown.WaitForShutdown(ctx)
}

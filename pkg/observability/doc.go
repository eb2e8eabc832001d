// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Logger wraps a logrus entry that writes JSON:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("project_id", id).Info("project created")
//
// Handlers pick up the request-scoped logger, which carries request_id and
// user_id:
//
//	observability.FromContext(ctx).WithError(err).Error("request failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Every Record* method is safe on a nil *Metrics, so packages can take an
// optional metrics argument.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version).
//		AddRequired("database", db).
//		AddOptional("redis", observability.PingFunc(func(ctx context.Context) error {
//			return redisClient.Ping(ctx).Err()
//		}))
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "tracker",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability

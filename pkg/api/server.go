package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/tracker/pkg/auth"
	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/rbac"
	"github.com/platinummonkey/tracker/pkg/service"
)

// ServerConfig wires the HTTP surface
type ServerConfig struct {
	Service  *service.Service
	Checker  rbac.Checker
	Resolver rbac.Resolver
	Tokens   *auth.TokenManager

	// RateLimit guards every authenticated route. Nil disables it.
	RateLimit func(http.Handler) http.Handler

	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *observability.Logger

	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter builds the full handler tree: health and metrics unauthenticated,
// everything else behind bearer auth, scope checks, rate limiting and a
// request-scoped resolver memo.
func NewRouter(cfg ServerConfig) http.Handler {
	root := mux.NewRouter()
	root.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))

	if cfg.Health != nil {
		observability.RegisterHealthRoutes(root, cfg.Health)
	}
	if cfg.Registry != nil {
		root.Handle("/metrics", observability.MetricsHandler(cfg.Registry)).Methods(http.MethodGet)
	}

	protected := root.NewRoute().Subrouter()
	protected.Use(middleware.NewAuthMiddleware(cfg.Tokens, false).Handler)
	protected.Use(middleware.RequireMethodScope)
	if cfg.RateLimit != nil {
		protected.Use(cfg.RateLimit)
	}
	protected.Use(rbac.RequestScope)

	NewHandlers(cfg.Service).RegisterRoutes(protected)
	NewMeHandlers(cfg.Tokens).RegisterRoutes(protected)
	rbac.NewHandlers(cfg.Checker, cfg.Resolver, cfg.Service.Store()).RegisterRoutes(protected)

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware,
	}
	if len(cfg.CORSOrigins) > 0 {
		chain = append(chain, httputil.CORSMiddleware(cfg.CORSOrigins))
	}
	if cfg.RequestTimeout > 0 {
		chain = append(chain, httputil.TimeoutMiddleware(cfg.RequestTimeout))
	}
	if cfg.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(cfg.MaxBodyBytes))
	}
	chain = append(chain, httputil.ContentTypeMiddleware)

	return observability.InstrumentHandler(httputil.Chain(chain...)(root), "tracker")
}

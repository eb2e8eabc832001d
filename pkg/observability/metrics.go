package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	ResolverDuration    *prometheus.HistogramVec
	ResolverProjects    prometheus.Histogram

	// Storage metrics
	StorageOperationsTotal *prometheus.CounterVec

	// Rate limiting
	RateLimitedTotal *prometheus.CounterVec

	// Token cache
	TokenCacheHitsTotal   prometheus.Counter
	TokenCacheMissesTotal prometheus.Counter

	// Background jobs
	InvitationsPurgedTotal prometheus.Counter
	JobRunsTotal           *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_authz_decisions_total",
				Help: "Total number of policy decisions",
			},
			[]string{"entity", "operation", "result"},
		),
		ResolverDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_resolver_duration_seconds",
				Help:    "Accessible-project resolution duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"status"},
		),
		ResolverProjects: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_resolver_projects",
				Help:    "Number of projects returned per resolution",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),

		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),

		TokenCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_token_cache_hits_total",
				Help: "Total number of API token cache hits",
			},
		),
		TokenCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_token_cache_misses_total",
				Help: "Total number of API token cache misses",
			},
		),

		InvitationsPurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_invitations_purged_total",
				Help: "Total number of expired invitations removed",
			},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.ResolverDuration,
		m.ResolverProjects,
		m.StorageOperationsTotal,
		m.RateLimitedTotal,
		m.TokenCacheHitsTotal,
		m.TokenCacheMissesTotal,
		m.InvitationsPurgedTotal,
		m.JobRunsTotal,
	)

	return m
}

// RecordAuthzDecision counts one policy decision. Safe on a nil receiver.
func (m *Metrics) RecordAuthzDecision(entity, operation string, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(entity, operation, result).Inc()
}

// ObserveResolver records one accessible-project resolution. Safe on a nil receiver.
func (m *Metrics) ObserveResolver(duration time.Duration, projects int, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ResolverDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		m.ResolverProjects.Observe(float64(projects))
	}
}

// RecordStorageOperation counts one store call. Safe on a nil receiver.
func (m *Metrics) RecordStorageOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordRateLimited counts a rejected request. Safe on a nil receiver.
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// RecordTokenCache counts a token cache lookup. Safe on a nil receiver.
func (m *Metrics) RecordTokenCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.TokenCacheHitsTotal.Inc()
	} else {
		m.TokenCacheMissesTotal.Inc()
	}
}

// RecordInvitationsPurged adds n purged invitations. Safe on a nil receiver.
func (m *Metrics) RecordInvitationsPurged(n int64) {
	if m == nil {
		return
	}
	m.InvitationsPurgedTotal.Add(float64(n))
}

// RecordJobRun counts one scheduled job run. Safe on a nil receiver.
func (m *Metrics) RecordJobRun(job string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched mux route template so ids do not explode
// label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// A nil metrics passes requests through untouched.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

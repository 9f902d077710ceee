package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	LoginsTotal          *prometheus.CounterVec
	TokenOperationsTotal *prometheus.CounterVec
	ExtractionsTotal     *prometheus.CounterVec

	// Authorization metrics
	AccessDeniedTotal *prometheus.CounterVec

	// Session metrics
	SessionsCreatedTotal   prometheus.Counter
	SessionsDestroyedTotal prometheus.Counter

	// Ghost-mode metrics
	GhostSessionsTotal  *prometheus.CounterVec
	GhostSessionsActive prometheus.Gauge

	// Store metrics
	RevocationSetSize   prometheus.Gauge
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexvault_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexvault_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexvault_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"method", "status"},
		),
		TokenOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexvault_token_operations_total",
				Help: "Total number of token issue, rotate, and revoke operations",
			},
			[]string{"operation", "status"},
		),
		ExtractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexvault_identity_extractions_total",
				Help: "Total number of identity extractions",
			},
			[]string{"strategy", "status"},
		),

		AccessDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexvault_access_denied_total",
				Help: "Total number of authorization denials",
			},
			[]string{"check", "reason"},
		),

		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexvault_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsDestroyedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lexvault_sessions_destroyed_total",
				Help: "Total number of sessions destroyed",
			},
		),

		GhostSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexvault_ghost_sessions_total",
				Help: "Total number of ghost session lifecycle events",
			},
			[]string{"event"},
		),
		GhostSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexvault_ghost_sessions_active",
				Help: "Number of currently active ghost sessions",
			},
		),

		RevocationSetSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexvault_revocation_set_size",
				Help: "Number of token hashes in the revocation set",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexvault_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexvault_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.TokenOperationsTotal,
		m.ExtractionsTotal,
		m.AccessDeniedTotal,
		m.SessionsCreatedTotal,
		m.SessionsDestroyedTotal,
		m.GhostSessionsTotal,
		m.GhostSessionsActive,
		m.RevocationSetSize,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
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

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

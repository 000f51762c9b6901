package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mirror outcomes recorded on MirrorTotal
const (
	MirrorOutcomeSuccess  = "success"
	MirrorOutcomeSkipped  = "skipped"
	MirrorOutcomeDropped  = "dropped"
	MirrorOutcomeSignErr  = "sign_error"
	MirrorOutcomeTokenErr = "token_error"
	MirrorOutcomeSinkErr  = "sink_error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Audit pipeline metrics
	AuditEventsTotal   *prometheus.CounterVec
	AuditWriteDuration prometheus.Histogram
	AuditQueriesTotal  *prometheus.CounterVec

	// Spreadsheet mirror metrics
	MirrorTotal    *prometheus.CounterVec
	MirrorDuration prometheus.Histogram

	// Profile cache metrics
	ProfileCacheHitsTotal   *prometheus.CounterVec
	ProfileCacheMissesTotal *prometheus.CounterVec

	// Archive metrics
	ArchiveRecordsTotal prometheus.Counter
	ArchiveRunsTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studiodesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuditEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_audit_events_total",
				Help: "Audit events submitted to the pipeline, by outcome",
			},
			[]string{"action", "entity_type", "outcome"},
		),
		AuditWriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studiodesk_audit_write_duration_seconds",
				Help:    "Duration of audit record inserts",
				Buckets: prometheus.DefBuckets,
			},
		),
		AuditQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_audit_queries_total",
				Help: "Audit log reads, by outcome",
			},
			[]string{"outcome"},
		),

		MirrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_audit_mirror_total",
				Help: "Spreadsheet mirror attempts, by outcome",
			},
			[]string{"outcome"},
		),
		MirrorDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studiodesk_audit_mirror_duration_seconds",
				Help:    "End-to-end duration of a spreadsheet mirror attempt",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		ProfileCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_profile_cache_hits_total",
				Help: "Profile cache hits",
			},
			[]string{"layer"},
		),
		ProfileCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_profile_cache_misses_total",
				Help: "Profile cache misses",
			},
			[]string{"layer"},
		),

		ArchiveRecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "studiodesk_archive_records_total",
				Help: "Audit records exported to the archive bucket",
			},
		),
		ArchiveRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studiodesk_archive_runs_total",
				Help: "Archive runs, by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuditEventsTotal,
		m.AuditWriteDuration,
		m.AuditQueriesTotal,
		m.MirrorTotal,
		m.MirrorDuration,
		m.ProfileCacheHitsTotal,
		m.ProfileCacheMissesTotal,
		m.ArchiveRecordsTotal,
		m.ArchiveRunsTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. The path label is the
// matched mux route template so that ids do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

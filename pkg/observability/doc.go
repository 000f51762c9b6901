// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and shutdown coordination.
//
// Logging:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("record_id", id).Info("audit record written")
//
// Request-scoped logging picks up request_id and user_id from the context:
//
//	observability.FromContext(ctx).WithError(err).Warn("mirror failed")
//
// Metrics are registered on a caller-owned registry so tests can use a fresh
// one per case:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
package observability

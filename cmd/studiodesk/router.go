package main

import (
	"context"
	"database/sql"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/config"
	"github.com/platinummonkey/studiodesk/pkg/httputil"
	"github.com/platinummonkey/studiodesk/pkg/middleware"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *observability.Logger
	metrics  *observability.Metrics
	verifier auth.SessionVerifier
	redis    *redis.Client
	proxies  audit.TrustedProxies
	handlers *audit.Handlers
}

// newRouter builds the public API. Everything under /api/v1 requires a
// verified session.
func newRouter(ctx context.Context, deps routerDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware,
		observability.LoggingMiddleware(deps.logger),
		observability.RecoveryMiddleware(deps.logger),
		observability.HTTPMetricsMiddleware(deps.metrics),
		httputil.MaxBytesMiddleware(deps.cfg.Server.MaxBodyBytes),
		audit.NewMetadataMiddleware(deps.proxies),
	)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.NewAuthMiddleware(deps.verifier, false, deps.logger).Handler)
	if limiter := newLimiter(ctx, deps); limiter != nil {
		api.Use(middleware.NewRateLimitMiddleware(limiter, deps.logger).Handler)
	}
	deps.handlers.RegisterRoutes(api)

	return router
}

func newLimiter(ctx context.Context, deps routerDeps) middleware.Limiter {
	rl := deps.cfg.RateLimit
	if !rl.Enabled {
		return nil
	}
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: rl.RequestsPerWindow,
		WindowDuration:    rl.Window,
		BurstSize:         rl.Burst,
	}
	if deps.redis != nil {
		return middleware.NewDistributedRateLimiter(deps.redis, limits, "")
	}
	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return limiter
}

// newOpsRouter serves health probes and, when enabled, Prometheus metrics
func newOpsRouter(cfg *config.Config, db *sql.DB, redisClient *redis.Client, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	observability.NewHealthChecker(db, redisClient, version).RegisterRoutes(router)
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods("GET")
	}
	return router
}

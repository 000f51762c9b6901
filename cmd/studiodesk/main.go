package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/auth"
	"github.com/platinummonkey/studiodesk/pkg/config"
	"github.com/platinummonkey/studiodesk/pkg/database"
	"github.com/platinummonkey/studiodesk/pkg/httputil"
	"github.com/platinummonkey/studiodesk/pkg/mirror"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).
		WithField("service", "studiodesk").
		WithField("version", version)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("studiodesk stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdown.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Shutdown completed with errors")
		}
	}()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", otelProviders.Shutdown)

	db, dialect, err := database.Open(ctx, cfg.Database.Connection())
	if err != nil {
		return err
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	logger.WithField("driver", string(dialect)).Info("Connected to database")

	store, err := audit.NewSQLStore(db, dialect)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	sqlProfiles, err := auth.NewSQLProfileStore(db, dialect)
	if err != nil {
		return err
	}
	if err := sqlProfiles.EnsureSchema(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var redisClient *redis.Client
	var profiles auth.ProfileStore = sqlProfiles
	if cfg.Redis.Enabled() {
		redisClient, err = database.OpenRedis(ctx, cfg.Redis.Connection())
		if err != nil {
			return err
		}
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
		profiles = auth.NewRedisProfileStore(profiles, redisClient, cfg.Redis.ProfileTTL, logger, metrics)
		logger.Info("Redis profile cache and distributed rate limiting enabled")
	}
	profiles = auth.NewCachedProfileStore(profiles, cfg.Auth.ProfileCacheMax, cfg.Auth.ProfileCacheTTL, metrics)

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	var sink mirror.Sink
	if cfg.Sheet.Enabled() {
		sink = mirror.NewSheetMirror(cfg.Sheet, nil)
		logger.WithField("sheet_id", cfg.Sheet.SheetID).Info("Spreadsheet mirror enabled")
	} else {
		logger.Info("Spreadsheet mirror disabled, records are persisted only")
	}
	// mirror work outlives the signal context so queued rows drain on Close
	dispatcher := mirror.NewDispatcher(context.Background(), sink, mirror.DispatcherConfig{
		Workers:   cfg.Mirror.Workers,
		QueueSize: cfg.Mirror.QueueSize,
		Timeout:   cfg.Mirror.Timeout,
		Logger:    logger,
		Metrics:   metrics,
	})
	shutdown.Register("mirror", dispatcher.Close)

	pipeline, err := audit.NewPipeline(store, profiles,
		audit.WithSyncer(dispatcher),
		audit.WithLogger(logger),
		audit.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	reader, err := audit.NewReader(store, profiles, metrics)
	if err != nil {
		return err
	}

	proxies, err := cfg.Server.Proxies()
	if err != nil {
		return err
	}

	router := newRouter(ctx, routerDeps{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		verifier: verifier,
		redis:    redisClient,
		proxies:  proxies,
		handlers: audit.NewHandlers(pipeline, reader, logger),
	})

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      observability.InstrumentHandler(router, "studiodesk-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           httputil.Chain(httputil.RequestIDMiddleware, observability.RecoveryMiddleware(logger))(newOpsRouter(cfg, db, redisClient, registry)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, logger.WithField("server", "api")) })
	g.Go(func() error { return serve(opsServer, logger.WithField("server", "ops")) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Stopping HTTP servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), opsServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func serve(server *http.Server, logger *observability.Logger) error {
	logger.WithField("addr", server.Addr).Info("Listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", server.Addr, err)
	}
	return nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.SessionVerifier, error) {
	if cfg.UseOIDC() {
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	}
	return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
}

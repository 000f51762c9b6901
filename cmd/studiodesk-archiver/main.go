package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/studiodesk/pkg/archive"
	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/config"
	"github.com/platinummonkey/studiodesk/pkg/database"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

var (
	envFile     = flag.String("env-file", ".env", "Optional dotenv file loaded before configuration")
	runOnce     = flag.Bool("run-once", false, "Archive one day and exit (for backfilling)")
	archiveDate = flag.String("date", "", "Day to archive (YYYY-MM-DD). If empty, archives yesterday. Only used with --run-once")
	schedule    = flag.String("schedule", "", "Cron schedule overriding the configured archive schedule")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Fatalf("Failed to load %s", *envFile)
	}

	cfg, err := config.LoadArchiveConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if *schedule != "" {
		cfg.Archive.Schedule = *schedule
	}

	ctx := context.Background()

	db, dialect, err := database.Open(ctx, cfg.Database.Connection())
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	store, err := audit.NewSQLStore(db, dialect)
	if err != nil {
		log.WithError(err).Fatal("Failed to create audit store")
	}

	uploader, err := archive.NewS3Uploader(ctx, archive.S3Config{
		Bucket:          cfg.Archive.Bucket,
		Region:          cfg.Archive.Region,
		Endpoint:        cfg.Archive.Endpoint,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		UsePathStyle:    cfg.Archive.UsePathStyle,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to create S3 uploader")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	archiver := archive.NewArchiver(store, uploader, cfg.Archive.Prefix, log, metrics)

	// Run once mode (for backfilling)
	if *runOnce {
		day := time.Now().UTC().AddDate(0, 0, -1)
		if *archiveDate != "" {
			day, err = time.Parse("2006-01-02", *archiveDate)
			if err != nil {
				log.WithError(err).Fatal("Invalid date format")
			}
		}

		if _, err := archiver.Run(ctx, day); err != nil {
			log.WithError(err).Fatal("Archive failed")
		}
		return
	}

	// Scheduled mode
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err = c.AddFunc(cfg.Archive.Schedule, func() {
		if _, err := archiver.RunPreviousDay(ctx, time.Now()); err != nil {
			log.WithError(err).Error("Daily archive failed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to schedule daily archive")
	}

	c.Start()

	// scheduled runs expose their counters for scraping
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Server.HealthPort,
		Handler:           observability.MetricsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	log.WithFields(logrus.Fields{
		"schedule": cfg.Archive.Schedule,
		"bucket":   cfg.Archive.Bucket,
		"prefix":   cfg.Archive.Prefix,
	}).Info("Audit archiver started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down gracefully...")

	stopCtx := c.Stop()
	<-stopCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(shutdownCtx)

	log.Info("Archiver stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dunamismax/pixelprep/internal/config"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/dunamismax/pixelprep/internal/storage"
	"github.com/dunamismax/pixelprep/internal/store"
	"github.com/dunamismax/pixelprep/internal/telemetry"
	"github.com/dunamismax/pixelprep/internal/webhook"
	"github.com/dunamismax/pixelprep/internal/worker"
)

func main() {
	cfg := config.Load()
	base, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("configure logger")
	}
	logger := base.WithField("service", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.WithError(err).Fatal("configure tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	if err := pipeline.Startup(); err != nil {
		logger.WithError(err).Fatal("start image runtime")
	}
	defer pipeline.Shutdown()

	jobStore, closeStore, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("open job store")
	}
	defer closeStore()

	deps := worker.Dependencies{
		Logger: logger,
		Jobs:   jobStore,
		Usage:  jobStore,
		Webhook: webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		}),
	}

	objectStore, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err == nil {
		err = objectStore.EnsureBucket(ctx)
	}
	if err != nil {
		logger.WithError(err).Warn("object storage unavailable, only local_file jobs will run")
	} else {
		deps.Storage = objectStore
	}

	srv, err := worker.NewServer(cfg, deps)
	if err != nil {
		logger.WithError(err).Fatal("initialize worker")
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"concurrency":     cfg.Worker.Concurrency,
		"max_active_jobs": cfg.Worker.MaxActiveJobs,
		"queue":           cfg.Queue.Name,
		"redis":           cfg.Queue.RedisAddr,
		"resampler":       cfg.Transform.Resampler,
	}).Info("starting worker")

	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(); err != nil {
		logger.WithError(err).Error("worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

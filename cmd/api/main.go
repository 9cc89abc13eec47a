package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/dunamismax/pixelprep/internal/api"
	"github.com/dunamismax/pixelprep/internal/config"
	"github.com/dunamismax/pixelprep/internal/queue"
	"github.com/dunamismax/pixelprep/internal/ratelimit"
	"github.com/dunamismax/pixelprep/internal/storage"
	"github.com/dunamismax/pixelprep/internal/store"
	"github.com/dunamismax/pixelprep/internal/telemetry"
)

func main() {
	cfg := config.Load()
	base, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("configure logger")
	}
	logger := base.WithField("service", "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.WithError(err).Fatal("configure tracing")
	}
	defer shutdownWithTimeout(logger, "tracing", shutdownTracing)

	jobStore, closeStore, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("open job store")
	}
	defer closeStore()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), queue.Options{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Queue.TaskTimeout,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.WithError(err).Warn("queue client close failed")
		}
	}()

	opts := []api.Option{
		api.WithPresignTTL(cfg.API.PresignTTL),
		api.WithOutputPrefix(cfg.Storage.OutputPrefix),
		api.WithTracer(otel.Tracer("pixelprep/api")),
	}

	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, ratelimit.Config{
			Capacity:  cfg.RateLimit.Capacity,
			Window:    cfg.RateLimit.Window,
			KeyPrefix: cfg.RateLimit.KeyPrefix,
		})
		if err != nil {
			logger.WithError(err).Fatal("configure rate limiter")
		}
		opts = append(opts, api.WithRateLimiter(limiter, cfg.RateLimit.UserIDHeader))
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

	var app *api.Server
	if err != nil {
		logger.WithError(err).Warn("object storage unavailable, s3_presigned jobs are disabled")
		app = api.NewServer(logger, queueClient, jobStore, nil, opts...)
	} else {
		app = api.NewServer(logger, queueClient, jobStore, objectStore, opts...)
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.API.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownWithTimeout(logger, "http server", httpServer.Shutdown)
}

func shutdownWithTimeout(logger logrus.FieldLogger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.WithError(err).WithField("target", name).Warn("graceful shutdown failed")
	}
}

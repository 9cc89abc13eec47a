package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelprep/internal/config"
	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/dunamismax/pixelprep/internal/queue"
	"github.com/dunamismax/pixelprep/internal/store"
	"github.com/dunamismax/pixelprep/internal/webhook"
)

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// Dependencies are the collaborators a worker Server is built from. Storage
// and Webhook may be nil, which disables object-store jobs and webhooks.
type Dependencies struct {
	Logger  logrus.FieldLogger
	Storage pipeline.ObjectStore
	Webhook *webhook.Client
	Jobs    store.JobStore
	Usage   store.UsageStore
}

type Server struct {
	logger          logrus.FieldLogger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  processor
	objectProcessor processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
	now             func() time.Time
}

func NewServer(cfg config.Config, deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "worker")

	transformOpts := pipeline.TransformerOptions{
		Resampler:    cfg.Transform.Resampler,
		DefaultDType: cfg.Transform.DefaultDType,
		MaxSamples:   cfg.Transform.MaxSamples,
		Logger:       logger,
	}

	localProcessor, err := pipeline.NewLocalProcessor(cfg.Worker.LocalOutputDir, transformOpts)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	s := &Server{
		logger:         logger,
		sem:            make(chan struct{}, max(1, cfg.Worker.MaxActiveJobs)),
		localProcessor: localProcessor,
		jobStore:       deps.Jobs,
		usageStore:     deps.Usage,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("pixelprep/worker"),
		now:            time.Now,
	}

	if deps.Storage != nil {
		s.objectProcessor, err = pipeline.NewObjectStoreProcessor(deps.Storage, cfg.Storage.OutputPrefix, transformOpts)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
	}
	if deps.Webhook != nil {
		s.webhookClient = deps.Webhook.WithLogger(logger)
	}
	if s.usageStore == nil {
		if jobAndUsageStore, ok := deps.Jobs.(store.UsageStore); ok {
			s.usageStore = jobAndUsageStore
		}
	}

	s.server = asynq.NewServer(
		cfg.Queue.RedisClientOpt(),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Queue.Name: 1,
			},
			Logger:   logger,
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retry":     retried,
					"max_retry": maxRetry,
				}).WithError(err).Error("task failed")
			}),
		},
	)
	return s, nil
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypePreprocessTensor, s.handlePreprocess)
	return mux
}

func (s *Server) handlePreprocess(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParsePreprocessPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.preprocess", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.pipeline_steps", len(payload.Pipeline)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger := s.logger.WithFields(logrus.Fields{
		"job_id":      payload.JobID,
		"source_type": payload.SourceType,
	})
	logger.WithFields(logrus.Fields{
		"steps":      len(payload.Pipeline),
		"object_key": payload.ObjectKey,
	}).Info("processing job")

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.process(ctx, payload)
	if err != nil {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		logger.WithError(err).Error("job failed")
		_ = s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusFailed,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    s.now().UTC(),
			"error":        err.Error(),
		})
		if errors.Is(err, pipeline.ErrUnsupportedSourceType) {
			return fmt.Errorf("run pipeline: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.WithField("outputs", len(result.Outputs)).Info("job processed")
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	for _, out := range result.Outputs {
		s.metrics.tensorsTotal.WithLabelValues(string(out.DType)).Inc()
		s.metrics.samplesTotal.Add(float64(out.Samples))
	}
	s.recordUsage(ctx, payload, result, time.Since(startedAt))
	outcome = domain.JobStatusSucceeded

	// The job and its usage are already recorded, so a retry would run the
	// pipeline again and bill it twice.
	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"object_key":   payload.ObjectKey,
		"requested_at": payload.RequestedAt,
		"completed_at": s.now().UTC(),
		"outputs":      result.Outputs,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) process(ctx context.Context, payload queue.PreprocessPayload) (pipeline.Result, error) {
	request := pipeline.Request{
		JobID:      payload.JobID,
		UserID:     payload.UserID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Pipeline:   payload.Pipeline,
	}

	switch strings.ToLower(payload.SourceType) {
	case domain.SourceTypeLocalFile:
		return s.localProcessor.Process(ctx, request)
	case domain.SourceTypeS3Presigned:
		if s.objectProcessor == nil {
			return pipeline.Result{}, fmt.Errorf("%w: object storage is not configured", pipeline.ErrUnsupportedSourceType)
		}
		return s.objectProcessor.Process(ctx, request)
	default:
		return pipeline.Result{}, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedSourceType, payload.SourceType)
	}
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.WithFields(logrus.Fields{"job_id": jobID, "status": status}).WithError(err).Warn("job status update failed")
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.PreprocessPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.WithFields(logrus.Fields{"job_id": payload.JobID, "event": event}).WithError(err).Error("webhook delivery failed")
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.PreprocessPayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	usage := domain.UsageLog{
		UserID:          s.resolveUserID(ctx, payload),
		JobID:           payload.JobID,
		PixelsProcessed: result.SourcePixels(),
		TensorBytes:     result.TensorBytes(),
		ComputeTimeMS:   max(computeDuration.Milliseconds(), 1),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.WithField("job_id", payload.JobID).WithError(err).Warn("usage log write failed")
		return
	}

	s.metrics.pixelsProcessed.Add(float64(usage.PixelsProcessed))
	s.metrics.tensorBytesTotal.Add(float64(usage.TensorBytes))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}

func (s *Server) resolveUserID(ctx context.Context, payload queue.PreprocessPayload) string {
	if id := strings.TrimSpace(payload.UserID); id != "" {
		return id
	}
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.WithField("job_id", payload.JobID).WithError(err).Warn("usage lookup failed")
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			return job.UserID
		}
	}
	return "anonymous"
}

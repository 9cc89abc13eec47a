package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/id"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/dunamismax/pixelprep/internal/queue"
	"github.com/dunamismax/pixelprep/internal/store"
)

type Server struct {
	logger                logrus.FieldLogger
	queueClient           queueEnqueuer
	jobStore              store.JobStore
	storage               objectStorage
	presignTTL            time.Duration
	outputPrefix          string
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	now                   func() time.Time
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueuePreprocess(ctx context.Context, payload queue.PreprocessPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Option func(*Server)

// WithRateLimiter limits mutating requests per value of userIDHeader.
func WithRateLimiter(limiter RateLimiter, userIDHeader string) Option {
	return func(s *Server) {
		s.rateLimiter = limiter
		if strings.TrimSpace(userIDHeader) != "" {
			s.rateLimitUserIDHeader = userIDHeader
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

func WithPresignTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.presignTTL = ttl
		}
	}
}

// WithOutputPrefix sets the object prefix workers write tensors under.
func WithOutputPrefix(prefix string) Option {
	return func(s *Server) { s.outputPrefix = prefix }
}

func NewServer(logger logrus.FieldLogger, queueClient queueEnqueuer, jobStore store.JobStore, storage objectStorage, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:                logger.WithField("component", "api"),
		queueClient:           queueClient,
		jobStore:              jobStore,
		storage:               storage,
		presignTTL:            15 * time.Minute,
		rateLimitUserIDHeader: "X-User-ID",
		metrics:               newMetrics(),
		now:                   time.Now,
		mux:                   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

var errStorageUnavailable = errors.New("object storage is unavailable")

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errStorageUnavailable
}

func (unavailableObjectStorage) PresignedGetURL(context.Context, string, time.Duration) (string, error) {
	return "", errStorageUnavailable
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errStorageUnavailable
}

// Handler returns the mux wrapped in tracing, metrics and rate limiting.
func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
	s.mux.HandleFunc("POST /v1/pipelines/describe", s.handleDescribe)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Training steps with many samples cost more of the caller's budget.
	cost := 0
	for _, step := range req.Pipeline {
		cost += step.SampleCount()
	}
	if !s.allow(w, r, cost) {
		return
	}

	now := s.now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.WithField("job_id", jobID).WithError(err).Error("generate presigned url failed")
			writeError(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     s.userID(r, req.UserID),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		Pipeline:   req.Pipeline,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.WithField("job_id", job.ID).WithError(err).Error("create job failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	s.metrics.jobSamples.Observe(float64(cost))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	outputs := make([]map[string]string, 0, len(job.Pipeline))
	if job.Status == domain.JobStatusSucceeded {
		for _, step := range job.Pipeline {
			outputs = append(outputs, s.describeOutput(r.Context(), job, step))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job":     job,
		"outputs": outputs,
	})
}

func (s *Server) describeOutput(ctx context.Context, job domain.Job, step domain.TransformStep) map[string]string {
	out := map[string]string{"step_id": step.ID}
	if job.SourceType != domain.SourceTypeS3Presigned {
		return out
	}

	key := pipeline.OutputObjectKey(s.outputPrefix, job.ID, step)
	out["object_key"] = key
	url, err := s.storage.PresignedGetURL(ctx, key, s.presignTTL)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"job_id": job.ID, "step_id": step.ID}).WithError(err).Warn("presign output failed")
		return out
	}
	out["download_url"] = url
	return out
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	payload := queue.PreprocessPayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Pipeline:    job.Pipeline,
		RequestedAt: s.now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueuePreprocess(r.Context(), payload)
	if err != nil {
		s.logger.WithField("job_id", job.ID).WithError(err).Error("enqueue failed")
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.WithField("job_id", job.ID).WithError(err).Warn("update status failed")
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID, err := jobIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.WithField("job_id", jobID).WithError(err).Error("fetch job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return domain.Job{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return domain.Job{}, false
	}
	return job, true
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", job.ObjectKey)
		}
		return nil
	}
}

// userID prefers the authenticated header over the request body.
func (s *Server) userID(r *http.Request, fallback string) string {
	if v := strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func jobIDFromRequest(r *http.Request) (string, error) {
	jobID := r.PathValue("id")
	if err := domain.ValidateID(jobID); err != nil {
		return "", err
	}
	return jobID, nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

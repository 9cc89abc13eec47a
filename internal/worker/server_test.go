package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/npy"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/dunamismax/pixelprep/internal/queue"
	"github.com/dunamismax/pixelprep/internal/store"
	"github.com/dunamismax/pixelprep/internal/webhook"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := seededStore(t, "job-1", "user-1")
	usageStore := &captureUsageStore{}
	s := newTestServer(t, jobStore, nil, nil)
	s.usageStore = usageStore

	s.recordUsage(context.Background(), queue.PreprocessPayload{JobID: "job-1"}, pipeline.Result{
		SourceWidth:  10,
		SourceHeight: 20,
		Outputs: []pipeline.Output{
			{Samples: 1, Bytes: 300},
			{Samples: 4, Bytes: 400},
		},
	}, 250*time.Millisecond)

	require.True(t, usageStore.called)
	assert.Equal(t, "user-1", usageStore.log.UserID)
	assert.Equal(t, int64(10*20*5), usageStore.log.PixelsProcessed)
	assert.Equal(t, int64(700), usageStore.log.TensorBytes)
	assert.Equal(t, int64(250), usageStore.log.ComputeTimeMS)
	assert.Equal(t, testNow, usageStore.log.CreatedAt)
}

func TestRecordUsageDefaults(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := newTestServer(t, nil, nil, nil)
	s.usageStore = usageStore

	s.recordUsage(context.Background(), queue.PreprocessPayload{JobID: "job-2"}, pipeline.Result{}, 0)
	assert.Equal(t, "anonymous", usageStore.log.UserID)
	assert.Equal(t, int64(1), usageStore.log.ComputeTimeMS)

	s.recordUsage(context.Background(), queue.PreprocessPayload{JobID: "job-2", UserID: "payload-user"}, pipeline.Result{}, time.Second)
	assert.Equal(t, "payload-user", usageStore.log.UserID)
}

func TestHandlePreprocessSucceeds(t *testing.T) {
	jobStore := seededStore(t, "job-ok", "user-9")
	hooks := &captureWebhook{}
	proc := &fakeProcessor{result: pipeline.Result{
		SourceWidth:  4,
		SourceHeight: 4,
		Outputs:      []pipeline.Output{{StepID: "eval", DType: npy.Float32, Samples: 1, Bytes: 128, Success: true}},
	}}
	s := newTestServer(t, jobStore, proc, hooks)

	task := mustTask(t, queue.PreprocessPayload{
		JobID:      "job-ok",
		SourceType: domain.SourceTypeLocalFile,
		WebhookURL: "https://example.test/hook",
		ObjectKey:  "in.png",
		Pipeline:   []domain.TransformStep{{ID: "eval", ImageSize: []int{4}}},
	})
	require.NoError(t, s.handlePreprocess(context.Background(), task))

	job, ok, err := jobStore.Get(context.Background(), "job-ok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)

	require.Len(t, jobStore.UsageLogs(), 1)
	assert.Equal(t, "user-9", jobStore.UsageLogs()[0].UserID)
	assert.Equal(t, int64(128), jobStore.UsageLogs()[0].TensorBytes)

	assert.Equal(t, []string{webhook.EventJobCompleted}, hooks.events)
	assert.Equal(t, "job-ok", proc.req.JobID)
}

func TestHandlePreprocessWebhookFailureDoesNotRetry(t *testing.T) {
	jobStore := seededStore(t, "job-hook", "user-3")
	hooks := &captureWebhook{err: errors.New("receiver down")}
	proc := &fakeProcessor{result: pipeline.Result{
		SourceWidth:  2,
		SourceHeight: 2,
		Outputs:      []pipeline.Output{{StepID: "eval", DType: npy.Float32, Samples: 1, Bytes: 64, Success: true}},
	}}
	s := newTestServer(t, jobStore, proc, hooks)

	err := s.handlePreprocess(context.Background(), mustTask(t, queue.PreprocessPayload{
		JobID:      "job-hook",
		SourceType: domain.SourceTypeLocalFile,
		WebhookURL: "https://example.test/hook",
	}))
	require.ErrorIs(t, err, asynq.SkipRetry)

	job, _, _ := jobStore.Get(context.Background(), "job-hook")
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Len(t, jobStore.UsageLogs(), 1)
}

func TestHandlePreprocessFailure(t *testing.T) {
	jobStore := seededStore(t, "job-bad", "")
	hooks := &captureWebhook{}
	s := newTestServer(t, jobStore, &fakeProcessor{err: errors.New("decode source image: boom")}, hooks)

	err := s.handlePreprocess(context.Background(), mustTask(t, queue.PreprocessPayload{
		JobID:      "job-bad",
		SourceType: domain.SourceTypeLocalFile,
		WebhookURL: "https://example.test/hook",
	}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	job, _, _ := jobStore.Get(context.Background(), "job-bad")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, []string{webhook.EventJobFailed}, hooks.events)
	assert.Empty(t, jobStore.UsageLogs())
}

func TestHandlePreprocessSkipsRetry(t *testing.T) {
	s := newTestServer(t, nil, &fakeProcessor{}, nil)

	err := s.handlePreprocess(context.Background(), asynq.NewTask(queue.TypePreprocessTensor, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = s.handlePreprocess(context.Background(), mustTask(t, queue.PreprocessPayload{
		JobID:      "job-s3",
		SourceType: domain.SourceTypeS3Presigned,
	}))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, pipeline.ErrUnsupportedSourceType)
}

func seededStore(t *testing.T, jobID, userID string) *store.MemoryJobStore {
	t.Helper()
	jobStore := store.NewMemoryJobStore()
	require.NoError(t, jobStore.Create(context.Background(), domain.Job{
		ID:         jobID,
		UserID:     userID,
		Status:     domain.JobStatusQueued,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		Pipeline:   []domain.TransformStep{{ID: "eval", ImageSize: []int{224}}},
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}))
	return jobStore
}

func newTestServer(t *testing.T, jobStore *store.MemoryJobStore, proc processor, hooks webhookSender) *Server {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	s := &Server{
		logger:         logger,
		sem:            make(chan struct{}, 1),
		localProcessor: proc,
		webhookClient:  hooks,
		metrics:        newMetrics(),
		tracer:         noop.NewTracerProvider().Tracer("test"),
		now:            func() time.Time { return testNow },
	}
	if jobStore != nil {
		s.jobStore = jobStore
		s.usageStore = jobStore
	}
	return s
}

func mustTask(t *testing.T, payload queue.PreprocessPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewPreprocessTask(payload)
	require.NoError(t, err)
	return task
}

type fakeProcessor struct {
	req    pipeline.Request
	result pipeline.Result
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	f.req = req
	return f.result, f.err
}

type captureWebhook struct {
	events []string
	err    error
}

func (c *captureWebhook) Send(_ context.Context, _, event string, _ any) error {
	c.events = append(c.events, event)
	return c.err
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}

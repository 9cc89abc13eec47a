package queue

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/pixelprep/internal/domain"
)

func TestPreprocessTaskRoundTrip(t *testing.T) {
	seed := uint64(42)
	payload := PreprocessPayload{
		JobID:      "job-123",
		UserID:     "user-9",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-123/source",
		Pipeline: []domain.TransformStep{
			{
				ID:        "clip_train",
				ImageSize: []int{224},
				Train:     true,
				Samples:   4,
				Seed:      &seed,
				Aug:       map[string]any{"scale": []any{0.5, 1.0}},
			},
		},
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewPreprocessTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypePreprocessTensor, task.Type())

	parsed, err := ParsePreprocessPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload.JobID, parsed.JobID)
	assert.Equal(t, payload.UserID, parsed.UserID)
	require.Len(t, parsed.Pipeline, 1)
	step := parsed.Pipeline[0]
	assert.Equal(t, 4, step.Samples)
	require.NotNil(t, step.Seed)
	assert.Equal(t, seed, *step.Seed)

	params, err := step.Params()
	require.NoError(t, err)
	assert.Equal(t, 0.5, params.Aug.Scale[0])
}

func TestParsePreprocessPayloadRejectsGarbage(t *testing.T) {
	_, err := ParsePreprocessPayload(asynq.NewTask(TypePreprocessTensor, []byte("{")))
	require.Error(t, err)

	_, err = ParsePreprocessPayload(asynq.NewTask(TypePreprocessTensor, []byte(`{"source_type":"local_file"}`)))
	require.Error(t, err)
}

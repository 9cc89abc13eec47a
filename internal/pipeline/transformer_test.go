package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/transform"
)

func TestStepSeed(t *testing.T) {
	seed := uint64(7)
	assert.Equal(t, uint64(7), StepSeed("job", domain.TransformStep{ID: "a", Seed: &seed}))

	a := StepSeed("job", domain.TransformStep{ID: "a"})
	assert.Equal(t, a, StepSeed("job", domain.TransformStep{ID: "a"}))
	assert.NotEqual(t, a, StepSeed("job", domain.TransformStep{ID: "b"}))
	assert.NotEqual(t, a, StepSeed("job2", domain.TransformStep{ID: "a"}))
}

func TestTransformerLimitsSamples(t *testing.T) {
	tr, err := NewTransformer(TransformerOptions{MaxSamples: 2})
	require.NoError(t, err)

	_, err = tr.Transform(context.Background(), buildTestPNG(t, 16, 16), Request{JobID: "job"},
		domain.TransformStep{ID: "a", ImageSize: []int{8}, Train: true, Samples: 3})
	require.ErrorIs(t, err, ErrTooManySamples)
}

func TestTransformerRejectsBadStep(t *testing.T) {
	tr := mustTransformer(t)
	_, err := tr.Transform(context.Background(), buildTestPNG(t, 16, 16), Request{JobID: "job"},
		domain.TransformStep{ID: "a", ImageSize: []int{8}, Aug: map[string]any{"bogus": 1}})
	require.ErrorIs(t, err, transform.ErrConfig)
}

func TestTransformerOptions(t *testing.T) {
	_, err := NewTransformer(TransformerOptions{Resampler: "bogus"})
	require.ErrorIs(t, err, ErrUnknownResampler)

	_, err = NewTransformer(TransformerOptions{DefaultDType: "int8"})
	require.Error(t, err)

	r, err := newResampler("draw")
	require.NoError(t, err)
	assert.Equal(t, "draw", r.Name())

	r, err = newResampler("")
	require.NoError(t, err)
	assert.Equal(t, "imaging", r.Name())
}

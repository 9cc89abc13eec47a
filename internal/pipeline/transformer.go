package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"slices"

	"github.com/dunamismax/pixelprep/internal/augment"
	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/npy"
	"github.com/dunamismax/pixelprep/internal/transform"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

var ErrTooManySamples = errors.New("too many samples")

// Encoded is one step's NPY tensor ready to emit.
type Encoded struct {
	Data         []byte
	Shape        []int
	DType        npy.DType
	Samples      int
	SourceWidth  int
	SourceHeight int
}

func (e Encoded) output(step domain.TransformStep, path string) Output {
	return Output{
		StepID:  step.ID,
		Path:    path,
		Shape:   slices.Clone(e.Shape),
		DType:   e.DType,
		Samples: e.Samples,
		Bytes:   len(e.Data),
		Success: true,
	}
}

type Transformer interface {
	Transform(ctx context.Context, input []byte, req Request, step domain.TransformStep) (Encoded, error)
}

type TransformerOptions struct {
	// Resampler is one of imaging (default), draw or govips.
	Resampler string
	// DefaultDType applies to steps that leave dtype empty.
	DefaultDType string
	// MaxSamples caps TransformStep.Samples. Zero means domain.MaxSamples.
	MaxSamples int
	Logger     logrus.FieldLogger
	// Delegate defaults to augment.Factory.
	Delegate transform.DelegateFactory
}

type tensorTransformer struct {
	resampler    transform.Resampler
	defaultDType npy.DType
	maxSamples   int
	logger       logrus.FieldLogger
	delegate     transform.DelegateFactory
}

func NewTransformer(opts TransformerOptions) (Transformer, error) {
	resampler, err := newResampler(opts.Resampler)
	if err != nil {
		return nil, err
	}
	dtype, err := npy.ParseDType(opts.DefaultDType)
	if err != nil {
		return nil, fmt.Errorf("default dtype: %w", err)
	}

	t := &tensorTransformer{
		resampler:    resampler,
		defaultDType: dtype,
		maxSamples:   opts.MaxSamples,
		logger:       opts.Logger,
		delegate:     opts.Delegate,
	}
	if t.maxSamples <= 0 {
		t.maxSamples = domain.MaxSamples
	}
	if t.logger == nil {
		t.logger = logrus.StandardLogger()
	}
	if t.delegate == nil {
		t.delegate = augment.Factory{}
	}
	return t, nil
}

func (t *tensorTransformer) Transform(ctx context.Context, input []byte, req Request, step domain.TransformStep) (Encoded, error) {
	if err := ctx.Err(); err != nil {
		return Encoded{}, err
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return Encoded{}, fmt.Errorf("decode source image: %w", err)
	}

	params, err := step.Params()
	if err != nil {
		return Encoded{}, err
	}
	samples := step.SampleCount()
	if samples > t.maxSamples {
		return Encoded{}, fmt.Errorf("%w: %d > %d", ErrTooManySamples, samples, t.maxSamples)
	}

	logger := t.logger.WithFields(logrus.Fields{
		"component": "transformer",
		"job_id":    req.JobID,
		"step_id":   step.ID,
	})
	p, err := transform.Build(params,
		transform.WithRand(transform.NewRand(StepSeed(req.JobID, step))),
		transform.WithLogger(logger),
		transform.WithDelegate(t.delegate),
		transform.WithResampler(t.resampler),
	)
	if err != nil {
		return Encoded{}, fmt.Errorf("build pipeline: %w", err)
	}

	var (
		chw  []int
		data []float32
	)
	for i := range samples {
		if err := ctx.Err(); err != nil {
			return Encoded{}, err
		}
		tensor, err := p.Run(src)
		if err != nil {
			return Encoded{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if chw == nil {
			chw = tensor.Shape()
			data = make([]float32, 0, samples*len(tensor.Data))
		} else if !slices.Equal(chw, tensor.Shape()) {
			return Encoded{}, fmt.Errorf("sample %d: shape %v differs from %v", i, tensor.Shape(), chw)
		}
		data = append(data, tensor.Data...)
	}

	shape := chw
	if samples > 1 {
		shape = append([]int{samples}, chw...)
	}

	dtype := t.defaultDType
	if step.DType != "" {
		dtype = step.TensorDType()
	}

	var buf bytes.Buffer
	buf.Grow(npy.EncodedSize(shape, dtype))
	if err := npy.Encode(&buf, shape, data, dtype); err != nil {
		return Encoded{}, fmt.Errorf("encode npy: %w", err)
	}

	bounds := src.Bounds()
	logger.WithFields(logrus.Fields{
		"shape":   shape,
		"dtype":   dtype,
		"samples": samples,
	}).Debug("step transformed")

	return Encoded{
		Data:         buf.Bytes(),
		Shape:        shape,
		DType:        dtype,
		Samples:      samples,
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
	}, nil
}

// StepSeed is the step's explicit seed, or else the FNV-1a hash of
// "<jobID>/<stepID>" so reruns of a job reproduce its tensors.
func StepSeed(jobID string, step domain.TransformStep) uint64 {
	if step.Seed != nil {
		return *step.Seed
	}
	h := fnv.New64a()
	h.Write([]byte(jobID))
	h.Write([]byte("/"))
	h.Write([]byte(step.ID))
	return h.Sum64()
}

package domain

import (
	"errors"
	"fmt"

	"github.com/dunamismax/pixelprep/internal/id"
	"github.com/dunamismax/pixelprep/internal/npy"
	"github.com/dunamismax/pixelprep/internal/transform"
)

// MaxSamples caps the augmented samples a single train step may produce.
const MaxSamples = 64

// TransformStep is one preprocessing recipe applied to the job source. Each
// step produces one tensor file named after its ID.
type TransformStep struct {
	ID               string         `json:"id"`
	ImageSize        []int          `json:"image_size"`
	Train            bool           `json:"train,omitempty"`
	Mean             []float64      `json:"mean,omitempty"`
	Std              []float64      `json:"std,omitempty"`
	ResizeLongestMax bool           `json:"resize_longest_max,omitempty"`
	ResizeFn         string         `json:"resize_fn,omitempty"`
	FillColor        int            `json:"fill_color,omitempty"`
	Aug              map[string]any `json:"aug,omitempty"`
	Samples          int            `json:"samples,omitempty"`
	DType            string         `json:"dtype,omitempty"`
	Seed             *uint64        `json:"seed,omitempty"`
}

func (s TransformStep) Validate() error {
	if !id.Valid(s.ID) {
		return fmt.Errorf("id %q must be 1-128 characters of [A-Za-z0-9_-]", s.ID)
	}
	if _, err := s.Params(); err != nil {
		return err
	}
	for name, values := range map[string][]float64{"mean": s.Mean, "std": s.Std} {
		if n := len(values); n != 0 && n != 1 && n != 3 {
			return fmt.Errorf("%s needs 1 or 3 values, got %d", name, n)
		}
	}
	for _, v := range s.Std {
		if v == 0 {
			return errors.New("std values must be non zero")
		}
	}
	if s.Samples < 0 || s.Samples > MaxSamples {
		return fmt.Errorf("samples must be in [0, %d], got %d", MaxSamples, s.Samples)
	}
	if s.Samples > 1 && !s.Train {
		return errors.New("samples > 1 requires train=true")
	}
	if _, err := npy.ParseDType(s.DType); err != nil {
		return err
	}
	return nil
}

// Params converts the step into builder parameters.
func (s TransformStep) Params() (transform.Params, error) {
	size, err := transform.SizeFromDims(s.ImageSize)
	if err != nil {
		return transform.Params{}, fmt.Errorf("image_size: %w", err)
	}
	if s.FillColor < 0 || s.FillColor > 255 {
		return transform.Params{}, fmt.Errorf("%w: fill_color must be in [0, 255], got %d", transform.ErrConfig, s.FillColor)
	}
	switch s.ResizeFn {
	case "", transform.FitMax, transform.FitMin:
	default:
		return transform.Params{}, fmt.Errorf("%w: resize_fn must be %q or %q, got %q", transform.ErrConfig, transform.FitMax, transform.FitMin, s.ResizeFn)
	}
	aug, err := transform.ParseAugmentationConfig(s.Aug)
	if err != nil {
		return transform.Params{}, fmt.Errorf("aug: %w", err)
	}
	return transform.Params{
		ImageSize:        size,
		IsTrain:          s.Train,
		Mean:             s.Mean,
		Std:              s.Std,
		ResizeLongestMax: s.ResizeLongestMax,
		ResizeFn:         s.ResizeFn,
		FillColor:        s.FillColor,
		Aug:              &aug,
	}, nil
}

// SampleCount treats 0 as a single sample.
func (s TransformStep) SampleCount() int {
	if s.Samples < 1 {
		return 1
	}
	return s.Samples
}

// TensorDType returns the output dtype, float32 unless float16 was requested.
func (s TransformStep) TensorDType() npy.DType {
	dtype, err := npy.ParseDType(s.DType)
	if err != nil {
		return npy.Float32
	}
	return dtype
}

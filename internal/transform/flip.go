package transform

import (
	"fmt"

	"github.com/disintegration/imaging"
)

type RandomHorizontalFlip struct {
	P float64

	rng Rand
}

func NewRandomHorizontalFlip(p float64, rng Rand) (*RandomHorizontalFlip, error) {
	if err := validateProbability("horizontal flip", p); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: horizontal flip requires a random source", ErrConfig)
	}
	return &RandomHorizontalFlip{P: p, rng: rng}, nil
}

func (f *RandomHorizontalFlip) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return Sample{}, fmt.Errorf("horizontal flip: %w", ErrUnexpectedTensor)
	}
	if f.rng.Float64() < f.P {
		return ImageSample(imaging.FlipH(s.Image)), nil
	}
	return s, nil
}

func (f *RandomHorizontalFlip) String() string {
	return fmt.Sprintf("RandomHorizontalFlip(p=%g)", f.P)
}

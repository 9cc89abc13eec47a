package transform

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// Grayscale converts to luma replicated over three channels so downstream
// steps still see an RGB image.
func Grayscale() Step {
	return grayscale{}
}

type grayscale struct{}

func (grayscale) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return Sample{}, fmt.Errorf("grayscale: %w", ErrUnexpectedTensor)
	}
	return ImageSample(imaging.Grayscale(s.Image)), nil
}

func (grayscale) String() string {
	return "Grayscale(num_output_channels=3)"
}

// RandomGrayscale applies Grayscale with probability P, consuming one draw
// per call.
type RandomGrayscale struct {
	P float64

	rng Rand
}

func NewRandomGrayscale(p float64, rng Rand) (*RandomGrayscale, error) {
	if err := validateProbability("grayscale", p); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: grayscale requires a random source", ErrConfig)
	}
	return &RandomGrayscale{P: p, rng: rng}, nil
}

func (g *RandomGrayscale) Apply(s Sample) (Sample, error) {
	if g.rng.Float64() < g.P {
		return grayscale{}.Apply(s)
	}
	return s, nil
}

func (g *RandomGrayscale) String() string {
	return fmt.Sprintf("RandomGrayscale(p=%g)", g.P)
}

package transform

import (
	"fmt"
	"math"
)

const (
	EraseModePixel = "pixel"
	EraseModeRand  = "rand"
	EraseModeConst = "const"
)

// RandomErasing masks random rectangles of a normalized tensor. With Mode
// "pixel" every erased value is drawn from a standard normal, with "rand" one
// value is drawn per channel and with "const" the patch is zeroed.
type RandomErasing struct {
	P        float64
	Mode     string
	MinCount int
	MaxCount int
	MinArea  float64
	MaxArea  float64
	LogRatio [2]float64

	rng Rand
}

func NewRandomErasing(p float64, mode string, maxCount int, rng Rand) (*RandomErasing, error) {
	if err := validateProbability("random erasing", p); err != nil {
		return nil, err
	}
	switch mode {
	case EraseModePixel, EraseModeRand, EraseModeConst:
	case "":
		mode = EraseModeConst
	default:
		return nil, fmt.Errorf("%w: unknown erase mode %q", ErrConfig, mode)
	}
	if maxCount < 1 {
		maxCount = 1
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random erasing requires a random source", ErrConfig)
	}
	return &RandomErasing{
		P:        p,
		Mode:     mode,
		MinCount: 1,
		MaxCount: maxCount,
		MinArea:  0.02,
		MaxArea:  1.0 / 3.0,
		LogRatio: [2]float64{math.Log(0.3), math.Log(1 / 0.3)},
		rng:      rng,
	}, nil
}

func (e *RandomErasing) Apply(s Sample) (Sample, error) {
	if !s.IsTensor() {
		return Sample{}, fmt.Errorf("random erasing: %w", ErrExpectedTensor)
	}
	if e.rng.Float64() > e.P {
		return s, nil
	}

	out := s.Tensor.Clone()
	area := float64(out.Height * out.Width)
	count := e.MinCount
	if e.MaxCount > e.MinCount {
		count = e.MinCount + e.rng.IntN(e.MaxCount-e.MinCount+1)
	}

	for n := 0; n < count; n++ {
		for attempt := 0; attempt < 10; attempt++ {
			target := uniform(e.rng, e.MinArea, e.MaxArea) * area / float64(count)
			aspect := math.Exp(uniform(e.rng, e.LogRatio[0], e.LogRatio[1]))
			h := roundHalfEven(math.Sqrt(target * aspect))
			w := roundHalfEven(math.Sqrt(target / aspect))
			if w < out.Width && h < out.Height {
				top := e.rng.IntN(out.Height - h + 1)
				left := e.rng.IntN(out.Width - w + 1)
				e.erase(out, top, left, h, w)
				break
			}
		}
	}
	return TensorSample(out), nil
}

func (e *RandomErasing) erase(t *Tensor, top, left, h, w int) {
	for c := 0; c < t.Channels; c++ {
		var channelValue float32
		if e.Mode == EraseModeRand {
			channelValue = float32(e.rng.NormFloat64())
		}
		for y := top; y < top+h; y++ {
			for x := left; x < left+w; x++ {
				switch e.Mode {
				case EraseModePixel:
					t.Set(c, y, x, float32(e.rng.NormFloat64()))
				default:
					t.Set(c, y, x, channelValue)
				}
			}
		}
	}
}

func (e *RandomErasing) String() string {
	return fmt.Sprintf("RandomErasing(p=%g, mode=%s, count=(%d, %d))", e.P, e.Mode, e.MinCount, e.MaxCount)
}

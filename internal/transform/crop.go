package transform

import (
	"fmt"
	"image"
	"math"
)

var DefaultCropRatio = [2]float64{3.0 / 4.0, 4.0 / 3.0}

// RandomResizedCrop crops a random region covering a Scale fraction of the
// area with an aspect ratio drawn log-uniformly from Ratio, then resizes it to
// Size.
type RandomResizedCrop struct {
	Size          Size
	Scale         [2]float64
	Ratio         [2]float64
	Interpolation Interpolation
	Resampler     Resampler

	rng Rand
}

func NewRandomResizedCrop(size Size, scale, ratio [2]float64, interp Interpolation, rng Rand) (*RandomResizedCrop, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	if err := validateRange("scale", scale); err != nil {
		return nil, err
	}
	if err := validateRange("ratio", ratio); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random resized crop requires a random source", ErrConfig)
	}
	return &RandomResizedCrop{
		Size:          size,
		Scale:         scale,
		Ratio:         ratio,
		Interpolation: interp,
		rng:           rng,
	}, nil
}

func (c *RandomResizedCrop) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return Sample{}, fmt.Errorf("random resized crop: %w", ErrUnexpectedTensor)
	}
	b := s.Image.Bounds()
	rect := CropParams(c.rng, b.Dx(), b.Dy(), c.Scale, c.Ratio)
	region := crop(s.Image, rect)
	return ImageSample(resamplerOrDefault(c.Resampler).Resize(region, c.Size.Width, c.Size.Height, c.Interpolation)), nil
}

func (c *RandomResizedCrop) String() string {
	return fmt.Sprintf("RandomResizedCrop(size=%s, scale=(%g, %g), ratio=(%.4g, %.4g), interpolation=%s)",
		c.Size, c.Scale[0], c.Scale[1], c.Ratio[0], c.Ratio[1], c.Interpolation)
}

// CropParams picks the crop rectangle for a width x height image. It makes
// ten attempts at a random region and falls back to the largest central crop
// whose aspect ratio is within ratio.
func CropParams(rng Rand, width, height int, scale, ratio [2]float64) image.Rectangle {
	area := float64(width * height)
	logRatio := [2]float64{math.Log(ratio[0]), math.Log(ratio[1])}

	for attempt := 0; attempt < 10; attempt++ {
		targetArea := area * uniform(rng, scale[0], scale[1])
		aspect := math.Exp(uniform(rng, logRatio[0], logRatio[1]))

		w := roundHalfEven(math.Sqrt(targetArea * aspect))
		h := roundHalfEven(math.Sqrt(targetArea / aspect))
		if w > 0 && w <= width && h > 0 && h <= height {
			top := rng.IntN(height - h + 1)
			left := rng.IntN(width - w + 1)
			return image.Rect(left, top, left+w, top+h)
		}
	}

	inRatio := float64(width) / float64(height)
	w, h := width, height
	switch {
	case inRatio < math.Min(ratio[0], ratio[1]):
		h = roundHalfEven(float64(w) / math.Min(ratio[0], ratio[1]))
	case inRatio > math.Max(ratio[0], ratio[1]):
		w = roundHalfEven(float64(h) * math.Max(ratio[0], ratio[1]))
	}
	top := (height - h) / 2
	left := (width - w) / 2
	return image.Rect(left, top, left+w, top+h)
}

func validateRange(name string, r [2]float64) error {
	if r[0] <= 0 || r[1] <= 0 {
		return fmt.Errorf("%w: %s must be positive, got (%g, %g)", ErrConfig, name, r[0], r[1])
	}
	if r[0] > r[1] {
		return fmt.Errorf("%w: %s should be of kind (min, max), got (%g, %g)", ErrConfig, name, r[0], r[1])
	}
	return nil
}

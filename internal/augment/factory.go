// Package augment builds timm-style training pipelines for configurations
// that ask for the extended augmentation set (use_timm).
package augment

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/dunamismax/pixelprep/internal/transform"
)

var (
	DefaultScale = transform.Range{0.08, 1.0}
	DefaultRatio = transform.Range{3.0 / 4.0, 4.0 / 3.0}
)

// InterpolationRandom picks bilinear or bicubic on every call.
const InterpolationRandom = "random"

// Factory implements transform.DelegateFactory.
type Factory struct{}

var _ transform.DelegateFactory = Factory{}

func (Factory) CreateTransform(opts transform.DelegateOptions, rng transform.Rand) (transform.Pipeline, error) {
	if !opts.IsTraining {
		return nil, fmt.Errorf("%w: augment factory only builds training pipelines", transform.ErrConfig)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: augment factory requires a random source", transform.ErrConfig)
	}
	if opts.InputSize[0] != 3 {
		return nil, fmt.Errorf("%w: expected 3 input channels, got %d", transform.ErrConfig, opts.InputSize[0])
	}
	size, err := transform.SizeFromDims([]int{opts.InputSize[1], opts.InputSize[2]})
	if err != nil {
		return nil, err
	}

	scale := opts.Scale
	if scale == (transform.Range{}) {
		scale = DefaultScale
	}
	ratio := DefaultRatio
	if opts.Ratio != nil {
		ratio = *opts.Ratio
	}
	interps, err := parseInterpolations(opts.Interpolation)
	if err != nil {
		return nil, err
	}

	crop, err := newRandomResizedCrop(size, scale, ratio, interps, opts.Resampler, rng)
	if err != nil {
		return nil, err
	}
	steps := []transform.Step{crop}

	if opts.HFlip > 0 {
		flip, err := transform.NewRandomHorizontalFlip(opts.HFlip, rng)
		if err != nil {
			return nil, err
		}
		steps = append(steps, flip)
	}

	if len(opts.ColorJitter) > 0 {
		b, c, s, h, err := jitterValues(opts.ColorJitter)
		if err != nil {
			return nil, err
		}
		jitter, err := transform.NewColorJitter(b, c, s, h, rng)
		if err != nil {
			return nil, err
		}
		steps = append(steps, jitter)
	}

	normalize, err := transform.NewNormalize(opts.Mean, opts.Std)
	if err != nil {
		return nil, err
	}
	steps = append(steps, transform.ToTensor(), normalize)

	if opts.ReProb != nil && *opts.ReProb > 0 {
		count := 1
		if opts.ReCount != nil {
			count = *opts.ReCount
		}
		erase, err := transform.NewRandomErasing(*opts.ReProb, opts.ReMode, count, rng)
		if err != nil {
			return nil, err
		}
		steps = append(steps, erase)
	}

	return transform.NewCompose(steps...), nil
}

func parseInterpolations(name string) ([]transform.Interpolation, error) {
	if name == "" || strings.EqualFold(name, InterpolationRandom) {
		return []transform.Interpolation{transform.Bilinear, transform.Bicubic}, nil
	}
	interp, err := transform.ParseInterpolation(name)
	if err != nil {
		return nil, err
	}
	return []transform.Interpolation{interp}, nil
}

func jitterValues(j transform.Jitter) (brightness, contrast, saturation, hue float64, err error) {
	switch len(j) {
	case 1:
		return j[0], j[0], j[0], 0, nil
	case 3:
		return j[0], j[1], j[2], 0, nil
	case 4:
		return j[0], j[1], j[2], j[3], nil
	default:
		return 0, 0, 0, 0, fmt.Errorf("%w: color_jitter needs 1, 3 or 4 values, got %d", transform.ErrConfig, len(j))
	}
}

// randomResizedCrop is transform.RandomResizedCrop with the interpolation
// drawn per call from a set.
type randomResizedCrop struct {
	size      transform.Size
	scale     transform.Range
	ratio     transform.Range
	interps   []transform.Interpolation
	resampler transform.Resampler
	rng       transform.Rand
}

func newRandomResizedCrop(size transform.Size, scale, ratio transform.Range, interps []transform.Interpolation, resampler transform.Resampler, rng transform.Rand) (*randomResizedCrop, error) {
	if scale[0] <= 0 || scale[0] > scale[1] {
		return nil, fmt.Errorf("%w: scale should be of kind (min, max), got (%g, %g)", transform.ErrConfig, scale[0], scale[1])
	}
	if ratio[0] <= 0 || ratio[0] > ratio[1] {
		return nil, fmt.Errorf("%w: ratio should be of kind (min, max), got (%g, %g)", transform.ErrConfig, ratio[0], ratio[1])
	}
	if resampler == nil {
		resampler = transform.ImagingResampler{}
	}
	return &randomResizedCrop{
		size:      size,
		scale:     scale,
		ratio:     ratio,
		interps:   interps,
		resampler: resampler,
		rng:       rng,
	}, nil
}

func (c *randomResizedCrop) Apply(s transform.Sample) (transform.Sample, error) {
	if s.IsTensor() {
		return transform.Sample{}, fmt.Errorf("random resized crop: %w", transform.ErrUnexpectedTensor)
	}
	b := s.Image.Bounds()
	rect := transform.CropParams(c.rng, b.Dx(), b.Dy(), c.scale, c.ratio)
	interp := c.interps[0]
	if len(c.interps) > 1 {
		interp = c.interps[c.rng.IntN(len(c.interps))]
	}
	var region image.Image = imaging.Crop(s.Image, rect.Add(b.Min))
	return transform.ImageSample(c.resampler.Resize(region, c.size.Width, c.size.Height, interp)), nil
}

func (c *randomResizedCrop) String() string {
	names := make([]string, 0, len(c.interps))
	for _, interp := range c.interps {
		names = append(names, interp.String())
	}
	return fmt.Sprintf("RandomResizedCropAndInterpolation(size=%s, scale=(%g, %g), ratio=(%.4g, %.4g), interpolation=%s)",
		c.size, c.scale[0], c.scale[1], c.ratio[0], c.ratio[1], strings.Join(names, " "))
}

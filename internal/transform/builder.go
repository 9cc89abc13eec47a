package transform

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/sirupsen/logrus"
)

// OpenAI CLIP dataset statistics, used when Params leaves Mean or Std empty.
var (
	OpenAIDatasetMean = [3]float64{0.48145466, 0.4578275, 0.40821073}
	OpenAIDatasetStd  = [3]float64{0.26862954, 0.26130258, 0.27577711}
)

// Params selects the pipeline Build assembles.
type Params struct {
	ImageSize Size
	IsTrain   bool
	// Mean and Std take zero values (defaults), one value (broadcast) or one
	// value per channel.
	Mean             []float64
	Std              []float64
	ResizeLongestMax bool
	// ResizeFn selects FitMax (default) or FitMin for ResizeLongestMax.
	ResizeFn  string
	FillColor int
	Aug       *AugmentationConfig
}

type buildOptions struct {
	rng       Rand
	logger    logrus.FieldLogger
	delegate  DelegateFactory
	resampler Resampler
}

type BuildOption func(*buildOptions)

// WithRand sets the random source shared by every randomized step.
func WithRand(rng Rand) BuildOption {
	return func(o *buildOptions) {
		o.rng = rng
	}
}

func WithLogger(logger logrus.FieldLogger) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithDelegate injects the factory used when the augmentation config sets
// use_timm.
func WithDelegate(factory DelegateFactory) BuildOption {
	return func(o *buildOptions) {
		o.delegate = factory
	}
}

func WithResampler(resampler Resampler) BuildOption {
	return func(o *buildOptions) {
		o.resampler = resampler
	}
}

// Build assembles the train or eval preprocessing pipeline for p.
func Build(p Params, opts ...BuildOption) (Pipeline, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = NewRand(rand.Uint64())
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	o.resampler = resamplerOrDefault(o.resampler)

	if err := p.ImageSize.validate(); err != nil {
		return nil, err
	}
	mean, err := channelStats("mean", p.Mean, OpenAIDatasetMean)
	if err != nil {
		return nil, err
	}
	std, err := channelStats("std", p.Std, OpenAIDatasetStd)
	if err != nil {
		return nil, err
	}
	normalize, err := NewNormalize(mean, std)
	if err != nil {
		return nil, err
	}

	aug := NewAugmentationConfig()
	if p.Aug != nil {
		aug = *p.Aug
	}

	if p.IsTrain {
		if aug.UseTimm {
			return buildDelegate(p, aug, mean, std, o)
		}
		return buildTrain(p, aug, normalize, o)
	}
	return buildEval(p, normalize, o)
}

func buildDelegate(p Params, aug AugmentationConfig, mean, std [3]float64, o buildOptions) (Pipeline, error) {
	if o.delegate == nil {
		return nil, fmt.Errorf("%w: use_timm is set but no augmentation factory was provided", ErrDelegateUnavailable)
	}

	interpolation := aug.Interpolation
	if interpolation == "" {
		interpolation = "random"
	}
	if aug.ColorJitterProb != nil || aug.GrayScaleProb != nil {
		o.logger.WithField("component", "transform").Debug("dropping color_jitter_prob and gray_scale_prob for the delegate pipeline")
	}

	pipeline, err := o.delegate.CreateTransform(DelegateOptions{
		InputSize:     [3]int{3, p.ImageSize.Height, p.ImageSize.Width},
		IsTraining:    true,
		HFlip:         0,
		Mean:          mean,
		Std:           std,
		ReMode:        EraseModePixel,
		Scale:         aug.Scale,
		Ratio:         aug.Ratio,
		ColorJitter:   aug.ColorJitter,
		Interpolation: interpolation,
		ReProb:        aug.ReProb,
		ReCount:       aug.ReCount,
		Resampler:     o.resampler,
	}, o.rng)
	if err != nil {
		return nil, fmt.Errorf("create delegate transform: %w", err)
	}
	return pipeline, nil
}

func buildTrain(p Params, aug AugmentationConfig, normalize *Normalize, o buildOptions) (Pipeline, error) {
	unused := aug.Options()
	delete(unused, OptUseTimm)

	rrc, err := NewRandomResizedCrop(p.ImageSize, aug.Scale, DefaultCropRatio, Bicubic, o.rng)
	if err != nil {
		return nil, err
	}
	rrc.Resampler = o.resampler
	delete(unused, OptScale)

	steps := []Step{rrc, ConvertRGB()}

	if cjProb := valueOrZero(aug.ColorJitterProb); cjProb != 0 {
		if len(aug.ColorJitter) != 4 {
			return nil, fmt.Errorf("%w: color_jitter_prob requires color_jitter with 4 values (brightness, contrast, saturation, hue), got %d",
				ErrPrecondition, len(aug.ColorJitter))
		}
		cj := aug.ColorJitter
		jitter, err := NewRandomColorJitter(cj[0], cj[1], cj[2], cj[3], cjProb, o.rng)
		if err != nil {
			return nil, err
		}
		steps = append(steps, jitter)
		delete(unused, OptColorJitter)
		delete(unused, OptColorJitterProb)
	}

	if grayProb := valueOrZero(aug.GrayScaleProb); grayProb != 0 {
		gray, err := NewRandomGrayscale(grayProb, o.rng)
		if err != nil {
			return nil, err
		}
		steps = append(steps, gray)
		delete(unused, OptGrayScaleProb)
	}

	steps = append(steps, ToTensor(), normalize)

	if len(unused) > 0 {
		keys := make([]string, 0, len(unused))
		for key := range unused {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		o.logger.WithFields(logrus.Fields{
			"component": "transform",
			"unused":    keys,
		}).Warn("unused augmentation options, set use_timm to apply them")
	}

	return NewCompose(steps...), nil
}

func buildEval(p Params, normalize *Normalize, o buildOptions) (Pipeline, error) {
	var steps []Step
	if p.ResizeLongestMax {
		if !p.ImageSize.IsSquare() {
			return nil, fmt.Errorf("%w: resize_longest_max requires a single size, got %s", ErrInvalidSize, p.ImageSize)
		}
		rmsOpts := []ResizeMaxSizeOption{WithFill(p.FillColor), WithStepResampler(o.resampler)}
		if p.ResizeFn != "" {
			rmsOpts = append(rmsOpts, WithFn(p.ResizeFn))
		}
		rms, err := NewResizeMaxSize(p.ImageSize.Height, rmsOpts...)
		if err != nil {
			return nil, err
		}
		steps = append(steps, rms)
	} else {
		resize, err := NewResize(p.ImageSize, Bicubic)
		if err != nil {
			return nil, err
		}
		resize.Resampler = o.resampler
		centerCrop, err := NewCenterCrop(p.ImageSize)
		if err != nil {
			return nil, err
		}
		steps = append(steps, resize, centerCrop)
	}
	steps = append(steps, ConvertRGB(), ToTensor(), normalize)
	return NewCompose(steps...), nil
}

func channelStats(name string, values []float64, fallback [3]float64) ([3]float64, error) {
	switch len(values) {
	case 0:
		return fallback, nil
	case 1:
		return [3]float64{values[0], values[0], values[0]}, nil
	case 3:
		return [3]float64{values[0], values[1], values[2]}, nil
	default:
		return [3]float64{}, fmt.Errorf("%w: %s needs 1 or 3 values, got %d", ErrConfig, name, len(values))
	}
}

package transform

// DelegateOptions carries everything an external augmentation factory needs
// to build a training pipeline. Optional fields follow AugmentationConfig.
type DelegateOptions struct {
	InputSize  [3]int
	IsTraining bool
	HFlip      float64
	Mean       [3]float64
	Std        [3]float64
	ReMode     string

	Scale         Range
	Ratio         *Range
	ColorJitter   Jitter
	Interpolation string
	ReProb        *float64
	ReCount       *int

	Resampler Resampler
}

// DelegateFactory builds a pipeline for configurations with use_timm set.
type DelegateFactory interface {
	CreateTransform(opts DelegateOptions, rng Rand) (Pipeline, error)
}

type DelegateFactoryFunc func(opts DelegateOptions, rng Rand) (Pipeline, error)

func (f DelegateFactoryFunc) CreateTransform(opts DelegateOptions, rng Rand) (Pipeline, error) {
	return f(opts, rng)
}

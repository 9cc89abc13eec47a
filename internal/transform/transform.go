// Package transform builds the image preprocessing pipelines used to feed the
// vision tower: resize, crop, color augmentation, tensor conversion and
// normalization, composed into an ordered chain of steps.
package transform

import (
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"
)

var (
	ErrConfig              = errors.New("invalid transform config")
	ErrInvalidSize         = errors.New("invalid image size")
	ErrPrecondition        = errors.New("transform precondition failed")
	ErrDelegateUnavailable = errors.New("augmentation factory unavailable")
	ErrExpectedTensor      = errors.New("step requires a tensor sample")
	ErrUnexpectedTensor    = errors.New("step requires an image sample")
)

// Sample is the value flowing between steps. Exactly one of Image or Tensor is
// set: image steps run before ToTensor, tensor steps after it.
type Sample struct {
	Image  image.Image
	Tensor *Tensor
}

func ImageSample(img image.Image) Sample {
	return Sample{Image: img}
}

func TensorSample(t *Tensor) Sample {
	return Sample{Tensor: t}
}

func (s Sample) IsTensor() bool {
	return s.Tensor != nil
}

// Step is a single transform. Implementations must not mutate their input.
type Step interface {
	Apply(s Sample) (Sample, error)
	String() string
}

type funcStep struct {
	name string
	fn   func(Sample) (Sample, error)
}

// StepFunc adapts a plain function into a Step.
func StepFunc(name string, fn func(Sample) (Sample, error)) Step {
	return funcStep{name: name, fn: fn}
}

// ImageFunc adapts an image-to-image function into a Step that rejects
// tensor samples.
func ImageFunc(name string, fn func(image.Image) image.Image) Step {
	return funcStep{name: name, fn: func(s Sample) (Sample, error) {
		if s.IsTensor() {
			return Sample{}, fmt.Errorf("%s: %w", name, ErrUnexpectedTensor)
		}
		return ImageSample(fn(s.Image)), nil
	}}
}

func (f funcStep) Apply(s Sample) (Sample, error) {
	return f.fn(s)
}

func (f funcStep) String() string {
	return f.name + "()"
}

// Pipeline turns one decoded image into one model-ready tensor.
type Pipeline interface {
	Run(img image.Image) (*Tensor, error)
	Steps() []Step
}

// Compose runs its steps in order. It is both a Step and a Pipeline.
type Compose struct {
	steps []Step
}

func NewCompose(steps ...Step) *Compose {
	return &Compose{steps: slices.Clone(steps)}
}

func (c *Compose) Apply(s Sample) (Sample, error) {
	var err error
	for i, step := range c.steps {
		s, err = step.Apply(s)
		if err != nil {
			return Sample{}, fmt.Errorf("step %d %s: %w", i, step, err)
		}
	}
	return s, nil
}

func (c *Compose) Run(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, errors.New("pipeline input image is nil")
	}
	out, err := c.Apply(ImageSample(img))
	if err != nil {
		return nil, err
	}
	if !out.IsTensor() {
		return nil, fmt.Errorf("%w: pipeline ended with an image", ErrExpectedTensor)
	}
	return out.Tensor, nil
}

func (c *Compose) Steps() []Step {
	return slices.Clone(c.steps)
}

func (c *Compose) String() string {
	var b strings.Builder
	b.WriteString("Compose(\n")
	for _, step := range c.steps {
		b.WriteString("    ")
		b.WriteString(step.String())
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// Describe lists the string form of every step of p in order.
func Describe(p Pipeline) []string {
	steps := p.Steps()
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, step.String())
	}
	return out
}

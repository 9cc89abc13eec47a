package transform

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Tensor is a channel-major (CHW) float32 image.
type Tensor struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

func NewTensor(channels, height, width int) *Tensor {
	return &Tensor{
		Channels: channels,
		Height:   height,
		Width:    width,
		Data:     make([]float32, channels*height*width),
	}
}

func (t *Tensor) Shape() []int {
	return []int{t.Channels, t.Height, t.Width}
}

func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.Height+y)*t.Width+x]
}

func (t *Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.Height+y)*t.Width+x] = v
}

// Plane returns the backing slice of channel c.
func (t *Tensor) Plane(c int) []float32 {
	size := t.Height * t.Width
	return t.Data[c*size : (c+1)*size]
}

func (t *Tensor) Clone() *Tensor {
	out := &Tensor{Channels: t.Channels, Height: t.Height, Width: t.Width}
	out.Data = append([]float32(nil), t.Data...)
	return out
}

type toTensor struct{}

// ToTensor converts an RGB image into a [3, H, W] tensor scaled to [0, 1].
// Tensor samples pass through unchanged.
func ToTensor() Step {
	return toTensor{}
}

func (toTensor) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return s, nil
	}
	return TensorSample(imageToTensor(s.Image)), nil
}

func (toTensor) String() string {
	return "ToTensor()"
}

func imageToTensor(img image.Image) *Tensor {
	src := asNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	t := NewTensor(3, h, w)
	r, g, b := t.Plane(0), t.Plane(1), t.Plane(2)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			idx := y*w + x
			r[idx] = float32(row[x*4]) / 255
			g[idx] = float32(row[x*4+1]) / 255
			b[idx] = float32(row[x*4+2]) / 255
		}
	}
	return t
}

// Normalize applies (x - mean[c]) / std[c] per channel.
type Normalize struct {
	Mean [3]float64
	Std  [3]float64
}

func NewNormalize(mean, std [3]float64) (*Normalize, error) {
	for c, s := range std {
		if s == 0 {
			return nil, fmt.Errorf("%w: std[%d] is zero", ErrConfig, c)
		}
	}
	return &Normalize{Mean: mean, Std: std}, nil
}

func (n *Normalize) Apply(s Sample) (Sample, error) {
	if !s.IsTensor() {
		return Sample{}, fmt.Errorf("normalize: %w", ErrExpectedTensor)
	}
	if s.Tensor.Channels != 3 {
		return Sample{}, fmt.Errorf("normalize: expected 3 channels, got %d", s.Tensor.Channels)
	}
	out := s.Tensor.Clone()
	for c := 0; c < 3; c++ {
		mean := float32(n.Mean[c])
		std := float32(n.Std[c])
		plane := out.Plane(c)
		for i, v := range plane {
			plane[i] = (v - mean) / std
		}
	}
	return TensorSample(out), nil
}

func (n *Normalize) String() string {
	return fmt.Sprintf("Normalize(mean=%v, std=%v)", n.Mean, n.Std)
}

// asNRGBA returns img as an *image.NRGBA anchored at the origin, converting
// only when needed.
func asNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	return imaging.Clone(img)
}

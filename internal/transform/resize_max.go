package transform

import (
	"fmt"
	"image"
	"math"
)

const (
	FitMax = "max"
	FitMin = "min"
)

// ResizeMaxSize produces a MaxSize x MaxSize square. With Fn "max" the
// longest side is scaled to MaxSize and the short side is padded
// symmetrically with Fill; with Fn "min" the shortest side is scaled to
// MaxSize and the overflow is center cropped.
type ResizeMaxSize struct {
	MaxSize       int
	Interpolation Interpolation
	Fill          int
	Fn            string
	Resampler     Resampler
}

type ResizeMaxSizeOption func(*ResizeMaxSize)

func WithInterpolation(interp Interpolation) ResizeMaxSizeOption {
	return func(r *ResizeMaxSize) {
		r.Interpolation = interp
	}
}

func WithFill(fill int) ResizeMaxSizeOption {
	return func(r *ResizeMaxSize) {
		r.Fill = fill
	}
}

func WithFn(fn string) ResizeMaxSizeOption {
	return func(r *ResizeMaxSize) {
		r.Fn = fn
	}
}

func WithStepResampler(resampler Resampler) ResizeMaxSizeOption {
	return func(r *ResizeMaxSize) {
		r.Resampler = resampler
	}
}

func NewResizeMaxSize(maxSize int, opts ...ResizeMaxSizeOption) (*ResizeMaxSize, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrConfig, maxSize)
	}
	r := &ResizeMaxSize{
		MaxSize:       maxSize,
		Interpolation: Bicubic,
		Fn:            FitMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Fn != FitMax && r.Fn != FitMin {
		return nil, fmt.Errorf("%w: fn must be %q or %q, got %q", ErrConfig, FitMax, FitMin, r.Fn)
	}
	if r.Fill < 0 || r.Fill > 255 {
		return nil, fmt.Errorf("%w: fill must be in [0, 255], got %d", ErrConfig, r.Fill)
	}
	return r, nil
}

// targetSize returns the resized (height, width) and the scale for an input
// of height x width.
func (r *ResizeMaxSize) targetSize(height, width int) (int, int, float64) {
	ref := max(height, width)
	if r.Fn == FitMin {
		ref = min(height, width)
	}
	scale := float64(r.MaxSize) / float64(ref)
	newH := max(roundHalfEven(float64(height)*scale), 1)
	newW := max(roundHalfEven(float64(width)*scale), 1)
	return newH, newW, scale
}

func (r *ResizeMaxSize) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return TensorSample(r.applyTensor(s.Tensor)), nil
	}

	b := s.Image.Bounds()
	width, height := b.Dx(), b.Dy()
	newH, newW, scale := r.targetSize(height, width)

	img := s.Image
	if scale != 1.0 {
		img = resamplerOrDefault(r.Resampler).Resize(img, newW, newH, r.Interpolation)
	}
	if width != height {
		if r.Fn == FitMin {
			img = centerCrop(img, r.MaxSize, r.MaxSize)
		} else {
			padH := r.MaxSize - newH
			padW := r.MaxSize - newW
			img = pad(img, padW/2, padH/2, padW-padW/2, padH-padH/2, r.Fill)
		}
	}
	return ImageSample(img), nil
}

func (r *ResizeMaxSize) applyTensor(t *Tensor) *Tensor {
	newH, newW, scale := r.targetSize(t.Height, t.Width)
	out := t
	if scale != 1.0 {
		out = resizeTensor(t, newH, newW, r.Interpolation)
	}
	if t.Width != t.Height {
		if r.Fn == FitMin {
			top := roundHalfEven(float64(out.Height-r.MaxSize) / 2)
			left := roundHalfEven(float64(out.Width-r.MaxSize) / 2)
			out = cropTensor(out, image.Rect(left, top, left+r.MaxSize, top+r.MaxSize))
		} else {
			padH := r.MaxSize - newH
			padW := r.MaxSize - newW
			out = padTensor(out, padW/2, padH/2, padW-padW/2, padH-padH/2, float32(r.Fill))
		}
	}
	return out
}

func (r *ResizeMaxSize) String() string {
	return fmt.Sprintf("ResizeMaxSize(max_size=%d, interpolation=%s, fn=%s, fill=%d)", r.MaxSize, r.Interpolation, r.Fn, r.Fill)
}

// resizeTensor samples each plane with nearest or bilinear interpolation
// using half-pixel centers. Other interpolations resolve to bilinear.
func resizeTensor(t *Tensor, height, width int, interp Interpolation) *Tensor {
	out := NewTensor(t.Channels, height, width)
	sy := float64(t.Height) / float64(height)
	sx := float64(t.Width) / float64(width)
	for c := 0; c < t.Channels; c++ {
		src := t.Plane(c)
		dst := out.Plane(c)
		for y := 0; y < height; y++ {
			fy := math.Max((float64(y)+0.5)*sy-0.5, 0)
			for x := 0; x < width; x++ {
				fx := math.Max((float64(x)+0.5)*sx-0.5, 0)
				if interp == Nearest {
					ny := min(int(float64(y)*sy), t.Height-1)
					nx := min(int(float64(x)*sx), t.Width-1)
					dst[y*width+x] = src[ny*t.Width+nx]
					continue
				}
				y0 := min(int(fy), t.Height-1)
				x0 := min(int(fx), t.Width-1)
				y1 := min(y0+1, t.Height-1)
				x1 := min(x0+1, t.Width-1)
				ly := float32(fy - float64(y0))
				lx := float32(fx - float64(x0))
				top := src[y0*t.Width+x0]*(1-lx) + src[y0*t.Width+x1]*lx
				bottom := src[y1*t.Width+x0]*(1-lx) + src[y1*t.Width+x1]*lx
				dst[y*width+x] = top*(1-ly) + bottom*ly
			}
		}
	}
	return out
}

func padTensor(t *Tensor, left, top, right, bottom int, fill float32) *Tensor {
	out := NewTensor(t.Channels, t.Height+top+bottom, t.Width+left+right)
	for i := range out.Data {
		out.Data[i] = fill
	}
	for c := 0; c < t.Channels; c++ {
		for y := 0; y < t.Height; y++ {
			copy(out.Plane(c)[(y+top)*out.Width+left:], t.Plane(c)[y*t.Width:(y+1)*t.Width])
		}
	}
	return out
}

func cropTensor(t *Tensor, rect image.Rectangle) *Tensor {
	out := NewTensor(t.Channels, rect.Dy(), rect.Dx())
	for c := 0; c < t.Channels; c++ {
		for y := 0; y < rect.Dy(); y++ {
			row := (rect.Min.Y+y)*t.Width + rect.Min.X
			copy(out.Plane(c)[y*out.Width:(y+1)*out.Width], t.Plane(c)[row:row+rect.Dx()])
		}
	}
	return out
}

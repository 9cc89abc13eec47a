package transform

import (
	"fmt"
	"image"
)

// Resize scales an image. For a square Size the shorter edge becomes
// Size.Height and the longer edge keeps the aspect ratio; otherwise the image
// is scaled to exactly Size.
type Resize struct {
	Size          Size
	Interpolation Interpolation
	Resampler     Resampler
}

func NewResize(size Size, interp Interpolation) (*Resize, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	return &Resize{Size: size, Interpolation: interp}, nil
}

func (r *Resize) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return Sample{}, fmt.Errorf("resize: %w", ErrUnexpectedTensor)
	}
	b := s.Image.Bounds()
	w, h := r.outputSize(b.Dx(), b.Dy())
	if w == b.Dx() && h == b.Dy() {
		return s, nil
	}
	return ImageSample(resamplerOrDefault(r.Resampler).Resize(s.Image, w, h, r.Interpolation)), nil
}

func (r *Resize) outputSize(w, h int) (int, int) {
	if !r.Size.IsSquare() {
		return r.Size.Width, r.Size.Height
	}
	short := r.Size.Height
	if w <= h {
		return short, int(float64(short) * float64(h) / float64(w))
	}
	return int(float64(short) * float64(w) / float64(h)), short
}

func (r *Resize) String() string {
	return fmt.Sprintf("Resize(size=%s, interpolation=%s)", r.Size, r.Interpolation)
}

// CenterCrop extracts a Size region from the center of an image, padding
// with black first when the image is smaller than the crop.
type CenterCrop struct {
	Size Size
}

func NewCenterCrop(size Size) (*CenterCrop, error) {
	if err := size.validate(); err != nil {
		return nil, err
	}
	return &CenterCrop{Size: size}, nil
}

func (c *CenterCrop) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return Sample{}, fmt.Errorf("center crop: %w", ErrUnexpectedTensor)
	}
	return ImageSample(centerCrop(s.Image, c.Size.Width, c.Size.Height)), nil
}

func (c *CenterCrop) String() string {
	return fmt.Sprintf("CenterCrop(size=%s)", c.Size)
}

func centerCrop(img image.Image, cw, ch int) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if cw > w || ch > h {
		var left, top, right, bottom int
		if cw > w {
			left, right = (cw-w)/2, (cw-w+1)/2
		}
		if ch > h {
			top, bottom = (ch-h)/2, (ch-h+1)/2
		}
		img = pad(img, left, top, right, bottom, 0)
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	if cw == w && ch == h {
		return img
	}
	top := roundHalfEven(float64(h-ch) / 2)
	left := roundHalfEven(float64(w-cw) / 2)
	return crop(img, image.Rect(left, top, left+cw, top+ch))
}

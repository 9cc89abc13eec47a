package transform

import (
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Resampler scales an image to exactly width x height.
type Resampler interface {
	Resize(img image.Image, width, height int, interp Interpolation) image.Image
	Name() string
}

// ImagingResampler resizes with the disintegration/imaging filters. It is the
// default resampler.
type ImagingResampler struct{}

func (ImagingResampler) Resize(img image.Image, width, height int, interp Interpolation) image.Image {
	return imaging.Resize(img, width, height, interp.filter())
}

func (ImagingResampler) Name() string {
	return "imaging"
}

// DrawResampler resizes with the golang.org/x/image/draw kernels. Lanczos and
// box have no x/image equivalent and fall back to Catmull-Rom.
type DrawResampler struct{}

func (DrawResampler) Resize(img image.Image, width, height int, interp Interpolation) image.Image {
	var scaler draw.Scaler
	switch interp {
	case Nearest:
		scaler = draw.NearestNeighbor
	case Bilinear:
		scaler = draw.BiLinear
	default:
		scaler = draw.CatmullRom
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func (DrawResampler) Name() string {
	return "draw"
}

func resamplerOrDefault(r Resampler) Resampler {
	if r == nil {
		return ImagingResampler{}
	}
	return r
}

//go:build govips && cgo

package pipeline

import (
	"bytes"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"github.com/dunamismax/pixelprep/internal/transform"
)

// govipsResampler scales through libvips. Any vips failure, or a result off
// by a rounding pixel, is finished by the imaging resampler so callers
// always get exactly width x height.
type govipsResampler struct{}

func (govipsResampler) Name() string {
	return "govips"
}

func (r govipsResampler) Resize(img image.Image, width, height int, interp transform.Interpolation) image.Image {
	out, err := r.resize(img, width, height, interp)
	if err != nil {
		return transform.ImagingResampler{}.Resize(img, width, height, interp)
	}
	if b := out.Bounds(); b.Dx() != width || b.Dy() != height {
		return transform.ImagingResampler{}.Resize(out, width, height, interp)
	}
	return out
}

func (govipsResampler) resize(img image.Image, width, height int, interp transform.Interpolation) (image.Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.Clone(img)); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	hScale := float64(width) / float64(ref.Width())
	vScale := float64(height) / float64(ref.Height())
	if err := ref.ResizeWithVScale(hScale, vScale, kernelFor(interp)); err != nil {
		return nil, err
	}

	encoded, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(encoded))
}

func kernelFor(interp transform.Interpolation) vips.Kernel {
	switch interp {
	case transform.Nearest:
		return vips.KernelNearest
	case transform.Bilinear:
		return vips.KernelLinear
	case transform.Bicubic:
		return vips.KernelCubic
	default:
		return vips.KernelLanczos3
	}
}

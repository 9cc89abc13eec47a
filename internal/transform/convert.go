package transform

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ConvertRGB drops the alpha channel, keeping the straight (non
// premultiplied) color values and forcing full opacity.
func ConvertRGB() Step {
	return ImageFunc("ConvertRGB", convertRGB)
}

func convertRGB(img image.Image) image.Image {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func fillColor(v int) color.NRGBA {
	c := uint8(clampInt(v, 0, 255))
	return color.NRGBA{R: c, G: c, B: c, A: 0xff}
}

// pad surrounds img with a constant border and returns an image anchored at
// the origin.
func pad(img image.Image, left, top, right, bottom, fill int) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx()+left+right, b.Dy()+top+bottom, fillColor(fill))
	return imaging.Paste(bg, img, image.Pt(left, top))
}

// crop cuts rect, given relative to the image origin.
func crop(img image.Image, rect image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, rect.Add(img.Bounds().Min))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

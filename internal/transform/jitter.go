package transform

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// ColorJitter randomly changes brightness, contrast, saturation and hue. Each
// enabled adjustment draws its factor uniformly from its range, and the four
// adjustments run in a random order.
type ColorJitter struct {
	Brightness *[2]float64
	Contrast   *[2]float64
	Saturation *[2]float64
	Hue        *[2]float64

	rng Rand
}

func NewColorJitter(brightness, contrast, saturation, hue float64, rng Rand) (*ColorJitter, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: color jitter requires a random source", ErrConfig)
	}
	cj := &ColorJitter{rng: rng}
	var err error
	if cj.Brightness, err = factorRange("brightness", brightness); err != nil {
		return nil, err
	}
	if cj.Contrast, err = factorRange("contrast", contrast); err != nil {
		return nil, err
	}
	if cj.Saturation, err = factorRange("saturation", saturation); err != nil {
		return nil, err
	}
	if hue < 0 || hue > 0.5 {
		return nil, fmt.Errorf("%w: hue must be in [0, 0.5], got %g", ErrConfig, hue)
	}
	if hue > 0 {
		cj.Hue = &[2]float64{-hue, hue}
	}
	return cj, nil
}

func factorRange(name string, v float64) (*[2]float64, error) {
	if v < 0 {
		return nil, fmt.Errorf("%w: %s must be non negative, got %g", ErrConfig, name, v)
	}
	if v == 0 {
		return nil, nil
	}
	return &[2]float64{math.Max(0, 1-v), 1 + v}, nil
}

func (cj *ColorJitter) Apply(s Sample) (Sample, error) {
	if s.IsTensor() {
		return Sample{}, fmt.Errorf("color jitter: %w", ErrUnexpectedTensor)
	}

	order := cj.rng.Perm(4)
	var factors [4]float64
	for i, r := range []*[2]float64{cj.Brightness, cj.Contrast, cj.Saturation, cj.Hue} {
		if r != nil {
			factors[i] = uniform(cj.rng, r[0], r[1])
		}
	}

	img := asNRGBA(s.Image)
	for _, idx := range order {
		switch {
		case idx == 0 && cj.Brightness != nil:
			img = adjustBrightness(img, factors[0])
		case idx == 1 && cj.Contrast != nil:
			img = adjustContrast(img, factors[1])
		case idx == 2 && cj.Saturation != nil:
			img = adjustSaturation(img, factors[2])
		case idx == 3 && cj.Hue != nil:
			img = adjustHue(img, factors[3])
		}
	}
	return ImageSample(img), nil
}

func (cj *ColorJitter) String() string {
	return fmt.Sprintf("ColorJitter(brightness=%s, contrast=%s, saturation=%s, hue=%s)",
		formatRange(cj.Brightness), formatRange(cj.Contrast), formatRange(cj.Saturation), formatRange(cj.Hue))
}

func formatRange(r *[2]float64) string {
	if r == nil {
		return "none"
	}
	return fmt.Sprintf("(%g, %g)", r[0], r[1])
}

// RandomColorJitter applies a ColorJitter with probability P. Every call
// consumes exactly one draw for the gate.
type RandomColorJitter struct {
	P      float64
	Jitter *ColorJitter

	rng Rand
}

func NewRandomColorJitter(brightness, contrast, saturation, hue, p float64, rng Rand) (*RandomColorJitter, error) {
	if err := validateProbability("color jitter", p); err != nil {
		return nil, err
	}
	jitter, err := NewColorJitter(brightness, contrast, saturation, hue, rng)
	if err != nil {
		return nil, err
	}
	return &RandomColorJitter{P: p, Jitter: jitter, rng: rng}, nil
}

func (r *RandomColorJitter) Apply(s Sample) (Sample, error) {
	if r.rng.Float64() < r.P {
		return r.Jitter.Apply(s)
	}
	return s, nil
}

func (r *RandomColorJitter) String() string {
	return fmt.Sprintf("RandomColorJitter(p=%g, %s)", r.P, r.Jitter)
}

func validateProbability(name string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: %s probability must be in [0, 1], got %g", ErrConfig, name, p)
	}
	return nil
}

// luma is the ITU-R 601-2 transform in 16-bit fixed point.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

// blend returns degenerate + f*(img - degenerate) on the color channels,
// keeping the alpha of img.
func blend(img, degenerate *image.NRGBA, f float64) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := float64(degenerate.Pix[i+c])
			out.Pix[i+c] = clamp8(d + f*(float64(img.Pix[i+c])-d))
		}
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

func adjustBrightness(img *image.NRGBA, f float64) *image.NRGBA {
	black := imaging.New(img.Rect.Dx(), img.Rect.Dy(), color.NRGBA{A: 0xff})
	return blend(img, black, f)
}

func adjustContrast(img *image.NRGBA, f float64) *image.NRGBA {
	var sum float64
	for i := 0; i < len(img.Pix); i += 4 {
		sum += float64(luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
	}
	n := len(img.Pix) / 4
	mean := 0
	if n > 0 {
		mean = int(sum/float64(n) + 0.5)
	}
	degenerate := imaging.New(img.Rect.Dx(), img.Rect.Dy(), fillColor(mean))
	return blend(img, degenerate, f)
}

func adjustSaturation(img *image.NRGBA, f float64) *image.NRGBA {
	gray := image.NewNRGBA(img.Rect)
	for i := 0; i < len(img.Pix); i += 4 {
		l := luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		gray.Pix[i], gray.Pix[i+1], gray.Pix[i+2], gray.Pix[i+3] = l, l, l, img.Pix[i+3]
	}
	return blend(img, gray, f)
}

// adjustHue rotates the hue by f turns, f in [-0.5, 0.5].
func adjustHue(img *image.NRGBA, f float64) *image.NRGBA {
	shift := f * 360
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		col := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
		h, s, v := col.Hsv()
		h = math.Mod(h+shift, 360)
		if h < 0 {
			h += 360
		}
		r, g, b := colorful.Hsv(h, s, v).Clamped().RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: c.A}
	})
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

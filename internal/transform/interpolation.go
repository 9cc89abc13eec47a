package transform

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

type Interpolation int

const (
	Nearest Interpolation = iota
	Bilinear
	Bicubic
	Lanczos
	Box
)

func ParseInterpolation(name string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return Nearest, nil
	case "bilinear", "linear":
		return Bilinear, nil
	case "bicubic", "cubic":
		return Bicubic, nil
	case "lanczos":
		return Lanczos, nil
	case "box":
		return Box, nil
	default:
		return Bicubic, fmt.Errorf("%w: unknown interpolation %q", ErrConfig, name)
	}
}

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Bicubic:
		return "bicubic"
	case Lanczos:
		return "lanczos"
	case Box:
		return "box"
	default:
		return fmt.Sprintf("interpolation(%d)", int(i))
	}
}

func (i Interpolation) filter() imaging.ResampleFilter {
	switch i {
	case Nearest:
		return imaging.NearestNeighbor
	case Bilinear:
		return imaging.Linear
	case Lanczos:
		return imaging.Lanczos
	case Box:
		return imaging.Box
	default:
		return imaging.CatmullRom
	}
}

package transform

import (
	"fmt"
	"math"
)

// Size is an output size in pixels. A square size requests the
// aspect-preserving shortest-edge behavior of Resize.
type Size struct {
	Height int
	Width  int
}

func Square(n int) Size {
	return Size{Height: n, Width: n}
}

// SizeFromDims accepts [n] or [height, width].
func SizeFromDims(dims []int) (Size, error) {
	var s Size
	switch len(dims) {
	case 1:
		s = Square(dims[0])
	case 2:
		s = Size{Height: dims[0], Width: dims[1]}
	default:
		return Size{}, fmt.Errorf("%w: expected 1 or 2 dimensions, got %d", ErrInvalidSize, len(dims))
	}
	if err := s.validate(); err != nil {
		return Size{}, err
	}
	return s, nil
}

func (s Size) IsSquare() bool {
	return s.Height == s.Width
}

func (s Size) String() string {
	if s.IsSquare() {
		return fmt.Sprintf("%d", s.Height)
	}
	return fmt.Sprintf("%dx%d", s.Height, s.Width)
}

func (s Size) validate() error {
	if s.Height <= 0 || s.Width <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, s.Height, s.Width)
	}
	return nil
}

// roundHalfEven matches Python's round(), which the reference dimensions
// were computed with.
func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

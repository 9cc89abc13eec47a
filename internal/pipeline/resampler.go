package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelprep/internal/transform"
)

var (
	ErrUnknownResampler     = errors.New("unknown resampler")
	ErrResamplerNotCompiled = errors.New("resampler not compiled in")
)

func newResampler(name string) (transform.Resampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "imaging":
		return transform.ImagingResampler{}, nil
	case "draw":
		return transform.DrawResampler{}, nil
	case "govips":
		return newGovipsResampler()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResampler, name)
	}
}

//go:build !govips || !cgo

package pipeline

import (
	"fmt"

	"github.com/dunamismax/pixelprep/internal/transform"
)

func Startup() error {
	return nil
}

func Shutdown() {}

func newGovipsResampler() (transform.Resampler, error) {
	return nil, fmt.Errorf("%w: govips requires building with -tags govips and cgo", ErrResamplerNotCompiled)
}

package api

import (
	"errors"
	"net/http"

	"github.com/dunamismax/pixelprep/internal/augment"
	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/npy"
	"github.com/dunamismax/pixelprep/internal/transform"
)

type describeResponse struct {
	Steps       []string  `json:"steps"`
	OutputShape []int     `json:"output_shape"`
	DType       npy.DType `json:"dtype"`
	Bytes       int       `json:"bytes"`
}

// handleDescribe builds the pipeline a step would run and reports its steps
// and the tensor it would emit, without touching an image.
func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	var step domain.TransformStep
	if err := decodeJSON(r, &step); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if step.ID == "" {
		step.ID = "preview"
	}
	if err := step.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.allow(w, r, 1) {
		return
	}

	params, err := step.Params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := transform.Build(params,
		transform.WithRand(transform.NewRand(0)),
		transform.WithLogger(s.logger.WithField("step_id", step.ID)),
		transform.WithDelegate(augment.Factory{}),
	)
	if err != nil {
		status := http.StatusBadRequest
		if !isConfigError(err) {
			status = http.StatusInternalServerError
			s.logger.WithError(err).Error("describe pipeline failed")
		}
		writeError(w, status, err.Error())
		return
	}

	shape := []int{3, params.ImageSize.Height, params.ImageSize.Width}
	if n := step.SampleCount(); n > 1 {
		shape = append([]int{n}, shape...)
	}
	dtype := step.TensorDType()
	s.metrics.described.WithLabelValues(modeLabel(step.Train)).Inc()

	writeJSON(w, http.StatusOK, describeResponse{
		Steps:       transform.Describe(p),
		OutputShape: shape,
		DType:       dtype,
		Bytes:       npy.EncodedSize(shape, dtype),
	})
}

func isConfigError(err error) bool {
	for _, target := range []error{
		transform.ErrConfig,
		transform.ErrInvalidSize,
		transform.ErrPrecondition,
		transform.ErrDelegateUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

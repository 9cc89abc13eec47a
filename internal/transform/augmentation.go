package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Option names accepted by ParseAugmentationConfig.
const (
	OptScale           = "scale"
	OptRatio           = "ratio"
	OptColorJitter     = "color_jitter"
	OptInterpolation   = "interpolation"
	OptReProb          = "re_prob"
	OptReCount         = "re_count"
	OptUseTimm         = "use_timm"
	OptColorJitterProb = "color_jitter_prob"
	OptGrayScaleProb   = "gray_scale_prob"
)

var augmentationOptions = []string{
	OptScale,
	OptRatio,
	OptColorJitter,
	OptInterpolation,
	OptReProb,
	OptReCount,
	OptUseTimm,
	OptColorJitterProb,
	OptGrayScaleProb,
}

var DefaultCropScale = Range{0.9, 1.0}

// Range is a (min, max) pair. In JSON it must be an array of exactly two
// numbers.
type Range [2]float64

func (r *Range) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("range must be an array of two numbers: %w", err)
	}
	if len(values) != 2 {
		return fmt.Errorf("range must have 2 values, got %d", len(values))
	}
	r[0], r[1] = values[0], values[1]
	return nil
}

// Jitter holds color jitter magnitudes: one value applied to brightness,
// contrast and saturation, three values for those, or four values adding hue.
// In JSON it is a number or an array.
type Jitter []float64

func (j *Jitter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*j = nil
		return nil
	}
	var single float64
	if err := json.Unmarshal(data, &single); err == nil {
		*j = Jitter{single}
		return nil
	}
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("color_jitter must be a number or an array of numbers: %w", err)
	}
	if len(values) != 1 && len(values) != 3 && len(values) != 4 {
		return fmt.Errorf("color_jitter must have 1, 3 or 4 values, got %d", len(values))
	}
	*j = Jitter(values)
	return nil
}

// AugmentationConfig holds the optional training augmentation knobs. Unset
// optional fields are nil (or empty for Interpolation).
type AugmentationConfig struct {
	Scale           Range    `json:"scale"`
	Ratio           *Range   `json:"ratio,omitempty"`
	ColorJitter     Jitter   `json:"color_jitter,omitempty"`
	Interpolation   string   `json:"interpolation,omitempty"`
	ReProb          *float64 `json:"re_prob,omitempty"`
	ReCount         *int     `json:"re_count,omitempty"`
	UseTimm         bool     `json:"use_timm,omitempty"`
	ColorJitterProb *float64 `json:"color_jitter_prob,omitempty"`
	GrayScaleProb   *float64 `json:"gray_scale_prob,omitempty"`
}

func NewAugmentationConfig() AugmentationConfig {
	return AugmentationConfig{Scale: DefaultCropScale}
}

// ParseAugmentationConfig builds an AugmentationConfig from an option map,
// rejecting unknown keys and values of the wrong type. A nil map yields the
// defaults.
func ParseAugmentationConfig(options map[string]any) (AugmentationConfig, error) {
	cfg := NewAugmentationConfig()
	if len(options) == 0 {
		return cfg, nil
	}

	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !slices.Contains(augmentationOptions, key) {
			return AugmentationConfig{}, fmt.Errorf("%w: unknown augmentation option %q", ErrConfig, key)
		}
	}

	raw, err := json.Marshal(options)
	if err != nil {
		return AugmentationConfig{}, fmt.Errorf("%w: encode augmentation options: %v", ErrConfig, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return AugmentationConfig{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return cfg, nil
}

// Options returns the set fields keyed by option name. use_timm is always
// present since it is never unset.
func (c AugmentationConfig) Options() map[string]any {
	out := map[string]any{
		OptScale:   c.Scale,
		OptUseTimm: c.UseTimm,
	}
	if c.Ratio != nil {
		out[OptRatio] = *c.Ratio
	}
	if c.ColorJitter != nil {
		out[OptColorJitter] = c.ColorJitter
	}
	if c.Interpolation != "" {
		out[OptInterpolation] = c.Interpolation
	}
	if c.ReProb != nil {
		out[OptReProb] = *c.ReProb
	}
	if c.ReCount != nil {
		out[OptReCount] = *c.ReCount
	}
	if c.ColorJitterProb != nil {
		out[OptColorJitterProb] = *c.ColorJitterProb
	}
	if c.GrayScaleProb != nil {
		out[OptGrayScaleProb] = *c.GrayScaleProb
	}
	return out
}

func valueOrZero[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

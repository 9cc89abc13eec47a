package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAugmentationConfigDefaults(t *testing.T) {
	cfg, err := ParseAugmentationConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, NewAugmentationConfig(), cfg)
	assert.Equal(t, map[string]any{OptScale: DefaultCropScale, OptUseTimm: false}, cfg.Options())
}

func TestParseAugmentationConfigFromJSON(t *testing.T) {
	var options map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"scale": [0.5, 1.0],
		"ratio": [0.8, 1.25],
		"color_jitter": 0.4,
		"interpolation": "bilinear",
		"re_prob": 0.25,
		"re_count": 2,
		"use_timm": true,
		"color_jitter_prob": 0.8,
		"gray_scale_prob": 0.2
	}`), &options))

	cfg, err := ParseAugmentationConfig(options)
	require.NoError(t, err)

	assert.Equal(t, Range{0.5, 1.0}, cfg.Scale)
	require.NotNil(t, cfg.Ratio)
	assert.Equal(t, Range{0.8, 1.25}, *cfg.Ratio)
	assert.Equal(t, Jitter{0.4}, cfg.ColorJitter)
	assert.Equal(t, "bilinear", cfg.Interpolation)
	assert.Equal(t, 0.25, *cfg.ReProb)
	assert.Equal(t, 2, *cfg.ReCount)
	assert.True(t, cfg.UseTimm)
	assert.Equal(t, 0.8, *cfg.ColorJitterProb)
	assert.Equal(t, 0.2, *cfg.GrayScaleProb)
	assert.Len(t, cfg.Options(), 9)
}

func TestParseAugmentationConfigRejects(t *testing.T) {
	cases := map[string]map[string]any{
		"unknown key":        {"mixup": 0.2},
		"scale arity":        {"scale": []any{0.5}},
		"scale type":         {"scale": "wide"},
		"jitter arity":       {"color_jitter": []any{0.1, 0.2}},
		"re_count fraction":  {"re_count": 1.5},
		"probability string": {"re_prob": "high"},
	}
	for name, options := range cases {
		_, err := ParseAugmentationConfig(options)
		assert.ErrorIs(t, err, ErrConfig, name)
	}
}

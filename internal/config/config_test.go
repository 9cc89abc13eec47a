package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PIXELPREP_API_ADDR", "")
	cfg := Load()

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, 15*time.Minute, cfg.API.PresignTTL)
	assert.Equal(t, "default", cfg.Queue.Name)
	assert.Equal(t, "pixelprep-jobs", cfg.Storage.Bucket)
	assert.Equal(t, "imaging", cfg.Transform.Resampler)
	assert.Equal(t, 64, cfg.Transform.MaxSamples)
	assert.GreaterOrEqual(t, cfg.Worker.MaxActiveJobs, 1)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIXELPREP_API_ADDR", ":9999")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("WEBHOOK_TIMEOUT", "2s")
	t.Setenv("RATE_LIMIT_ENABLED", "1")
	t.Setenv("TRANSFORM_RESAMPLER", "Draw")
	t.Setenv("LOG_FORMAT", "json")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, 3, cfg.Queue.RedisDB)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, 2*time.Second, cfg.Webhook.Timeout)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "draw", cfg.Transform.Resampler)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("REDIS_DB", "three")
	t.Setenv("MINIO_USE_SSL", "maybe")
	t.Setenv("WEBHOOK_TIMEOUT", "-5s")

	assert.Equal(t, 7, envInt("REDIS_DB", 7))
	assert.False(t, envBool("MINIO_USE_SSL", false))
	assert.Equal(t, time.Second, envDuration("WEBHOOK_TIMEOUT", time.Second))
	assert.Equal(t, "fallback", env("PIXELPREP_UNSET_FOR_TEST", "fallback"))
}

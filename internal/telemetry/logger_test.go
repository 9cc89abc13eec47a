package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("job_id", "job-1").Info("processed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, "processed", entry["msg"])
}

func TestNewLoggerRejectsBadConfig(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"})
	require.Error(t, err)

	_, err = NewLogger(LogConfig{Format: "xml"})
	require.Error(t, err)
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: "none"}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil)
	require.ErrorIs(t, err, ErrTraceExporter)

	_, err = SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil)
	require.ErrorIs(t, err, ErrTraceExporter)
}

func TestSampleRatio(t *testing.T) {
	assert.Equal(t, 1.0, sampleRatio(0))
	assert.Equal(t, 1.0, sampleRatio(-0.5))
	assert.Equal(t, 1.0, sampleRatio(3))
	assert.Equal(t, 0.25, sampleRatio(0.25))
}

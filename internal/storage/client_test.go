package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	_, err = NewClient(Config{Bucket: "pixelprep-jobs"})
	require.Error(t, err)

	client, err := NewClient(Config{Endpoint: "localhost:9000", Bucket: "pixelprep-jobs", Access: "a", Secret: "b"})
	require.NoError(t, err)
	assert.Equal(t, "pixelprep-jobs", client.Bucket())
	assert.Equal(t, int64(DefaultMaxObjectBytes), client.maxBytes)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: connection refused")))
}

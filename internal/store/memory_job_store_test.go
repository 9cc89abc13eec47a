package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ JobStore   = (*MemoryJobStore)(nil)
	_ UsageStore = (*MemoryJobStore)(nil)
	_ JobStore   = (*PostgresJobStore)(nil)
	_ UsageStore = (*PostgresJobStore)(nil)
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	job := domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "cat.png",
		Pipeline:   []domain.TransformStep{{ID: "eval", ImageSize: []int{224}}},
	}
	require.NoError(t, s.Create(ctx, job))
	require.ErrorIs(t, s.Create(ctx, job), ErrJobExists)

	got, ok, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, job, got)

	updated, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, updated.Status)
	assert.Equal(t, fixed, updated.UpdatedAt)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UpdateStatus(ctx, "missing", domain.JobStatusFailed)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobStoreUsage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	require.NoError(t, s.CreateUsageLog(ctx, domain.UsageLog{UserID: "u", JobID: "j", TensorBytes: 128}))
	logs := s.UsageLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, int64(128), logs[0].TensorBytes)
	assert.False(t, logs[0].CreatedAt.IsZero())

	logs[0].JobID = "mutated"
	assert.Equal(t, "j", s.UsageLogs()[0].JobID)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestOpenWithoutDSNUsesMemory(t *testing.T) {
	s, closeFn, err := Open(context.Background(), "  ")
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	assert.IsType(t, &MemoryJobStore{}, s)
	assert.NoError(t, closeFn())
}

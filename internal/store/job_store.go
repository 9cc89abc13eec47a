package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dunamismax/pixelprep/internal/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
}

// UsageStore records per-job compute usage for billing.
type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

// JobUsageStore is implemented by both backends.
type JobUsageStore interface {
	JobStore
	UsageStore
}

// Open returns the Postgres store for a non-empty dsn and the in-memory store
// otherwise. The returned close function is never nil.
func Open(ctx context.Context, dsn string) (JobUsageStore, func() error, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryJobStore(), func() error { return nil }, nil
	}
	pg, err := NewPostgresJobStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

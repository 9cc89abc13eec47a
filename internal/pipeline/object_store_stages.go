package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/pixelprep/internal/domain"
)

const SourceTypeS3Presigned = domain.SourceTypeS3Presigned

const defaultOutputPrefix = "outputs"

// ObjectStore is the subset of storage.Client the object stages need.
type ObjectStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type ObjectStoreFetcher struct {
	Storage ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if !strings.EqualFold(req.SourceType, SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

// ObjectStoreEmitter writes <OutputPrefix>/<jobID>/<stepID>.npy.
type ObjectStoreEmitter struct {
	Storage      ObjectStore
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, step domain.TransformStep, enc Encoded) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}

	objectKey := OutputObjectKey(e.OutputPrefix, req.JobID, step)
	if err := e.Storage.WriteObject(ctx, objectKey, enc.Data, ContentTypeNPY); err != nil {
		return Output{}, err
	}
	return enc.output(step, objectKey), nil
}

// OutputObjectKey returns the object key a step's tensor is written to.
func OutputObjectKey(prefix, jobID string, step domain.TransformStep) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultOutputPrefix
	}
	return path.Join(prefix, sanitizePathToken(jobID), outputFilename(step))
}

func NewObjectStoreProcessor(store ObjectStore, outputPrefix string, opts TransformerOptions) (*Processor, error) {
	if store == nil {
		return nil, errors.New("storage client is required")
	}
	transformer, err := NewTransformer(opts)
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return &Processor{
		fetcher:     ObjectStoreFetcher{Storage: store},
		transformer: transformer,
		emitter:     ObjectStoreEmitter{Storage: store, OutputPrefix: outputPrefix},
	}, nil
}

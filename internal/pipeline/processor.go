package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/npy"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

// ContentTypeNPY is the content type of emitted tensors.
const ContentTypeNPY = "application/x-npy"

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	UserID     string
	SourceType string
	ObjectKey  string
	Pipeline   []domain.TransformStep
}

type Output struct {
	StepID  string    `json:"step_id"`
	Path    string    `json:"path"`
	Shape   []int     `json:"shape"`
	DType   npy.DType `json:"dtype"`
	Samples int       `json:"samples"`
	Bytes   int       `json:"bytes"`
	Success bool      `json:"success"`
}

type Result struct {
	SourceBytes  int
	SourceWidth  int
	SourceHeight int
	Outputs      []Output
}

// SourcePixels is the pixel count processed across every step and sample.
func (r Result) SourcePixels() int64 {
	var samples int64
	for _, out := range r.Outputs {
		samples += int64(out.Samples)
	}
	return int64(r.SourceWidth) * int64(r.SourceHeight) * samples
}

// TensorBytes is the total encoded size of all outputs.
func (r Result) TensorBytes() int64 {
	var total int64
	for _, out := range r.Outputs {
		total += int64(out.Bytes)
	}
	return total
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.TransformStep, enc Encoded) (Output, error)
}

type Processor struct {
	fetcher     Fetcher
	transformer Transformer
	emitter     Emitter
}

func NewProcessor(fetcher Fetcher, transformer Transformer, emitter Emitter) *Processor {
	return &Processor{fetcher: fetcher, transformer: transformer, emitter: emitter}
}

func NewLocalProcessor(outputDir string, opts TransformerOptions) (*Processor, error) {
	transformer, err := NewTransformer(opts)
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}

	return &Processor{
		fetcher:     LocalFileFetcher{},
		transformer: transformer,
		emitter:     LocalFileEmitter{OutputDir: outputDir},
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if err := domain.ValidateID(req.JobID); err != nil {
		return Result{}, err
	}
	if len(req.Pipeline) == 0 {
		return Result{}, errors.New("pipeline must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	out := Result{SourceBytes: len(sourceBytes), Outputs: make([]Output, 0, len(req.Pipeline))}
	for _, step := range req.Pipeline {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		enc, err := p.transformer.Transform(ctx, sourceBytes, req, step)
		if err != nil {
			return Result{}, fmt.Errorf("transform stage step=%s: %w", step.ID, err)
		}
		out.SourceWidth, out.SourceHeight = enc.SourceWidth, enc.SourceHeight

		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		written, err := p.emitter.Emit(ctx, req, step, enc)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage step=%s: %w", step.ID, err)
		}
		out.Outputs = append(out.Outputs, written)
	}

	return out, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// LocalFileEmitter writes <OutputDir>/<jobID>/<stepID>.npy.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.TransformStep, enc Encoded) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputFilename(step))
	if err := os.WriteFile(fullPath, enc.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}
	return enc.output(step, fullPath), nil
}

func outputFilename(step domain.TransformStep) string {
	return sanitizePathToken(step.ID) + ".npy"
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, in)
}

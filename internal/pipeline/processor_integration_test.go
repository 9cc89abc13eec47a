package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/npy"
)

func TestLocalProcessor_FileInTensorOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	require.NoError(t, os.WriteFile(inputPath, buildTestPNG(t, 240, 120), 0o644))

	processor, err := NewLocalProcessor(outputDir, TransformerOptions{})
	require.NoError(t, err)

	req := Request{
		JobID:      "job-local-1",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Pipeline: []domain.TransformStep{
			{ID: "eval_64", ImageSize: []int{64}},
			{ID: "train_32", ImageSize: []int{32}, Train: true, Samples: 3, DType: "float16"},
		},
	}

	result, err := processor.Process(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Outputs, 2)
	assert.Equal(t, 240, result.SourceWidth)
	assert.Equal(t, 120, result.SourceHeight)
	assert.Equal(t, int64(240*120*4), result.SourcePixels())

	eval := result.Outputs[0]
	assert.Equal(t, filepath.Join(outputDir, "job-local-1", "eval_64.npy"), eval.Path)
	assert.Equal(t, []int{3, 64, 64}, eval.Shape)
	assert.Equal(t, npy.Float32, eval.DType)
	arr := readNPY(t, eval.Path)
	assert.Equal(t, []int{3, 64, 64}, arr.Shape)
	assert.Len(t, arr.Data, 3*64*64)

	train := result.Outputs[1]
	assert.Equal(t, []int{3, 3, 32, 32}, train.Shape)
	assert.Equal(t, npy.Float16, train.DType)
	arr = readNPY(t, train.Path)
	assert.Equal(t, npy.Float16, arr.DType)
	assert.Equal(t, []int{3, 3, 32, 32}, arr.Shape)
	assert.Equal(t, int64(eval.Bytes+train.Bytes), result.TensorBytes())
}

func TestLocalProcessor_Reproducible(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	require.NoError(t, os.WriteFile(inputPath, buildTestPNG(t, 96, 80), 0o644))

	run := func(outDir string) []byte {
		processor, err := NewLocalProcessor(outDir, TransformerOptions{})
		require.NoError(t, err)
		result, err := processor.Process(context.Background(), Request{
			JobID:      "job-seeded",
			SourceType: SourceTypeLocalFile,
			ObjectKey:  inputPath,
			Pipeline:   []domain.TransformStep{{ID: "aug", ImageSize: []int{32}, Train: true, Samples: 2}},
		})
		require.NoError(t, err)
		data, err := os.ReadFile(result.Outputs[0].Path)
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, run(filepath.Join(tmp, "a")), run(filepath.Join(tmp, "b")))
}

func TestLocalProcessor_UnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir(), TransformerOptions{})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		SourceType: SourceTypeS3Presigned,
		ObjectKey:  "uploads/job/source",
		Pipeline:   []domain.TransformStep{{ID: "eval", ImageSize: []int{32}}},
	})
	require.ErrorIs(t, err, ErrUnsupportedSourceType)
}

func TestProcessorRejectsBadRequests(t *testing.T) {
	processor := NewProcessor(staticFetcher{data: buildTestPNG(t, 8, 8)}, mustTransformer(t), discardEmitter{})

	_, err := processor.Process(context.Background(), Request{JobID: "../escape", Pipeline: []domain.TransformStep{{ID: "a", ImageSize: []int{8}}}})
	require.Error(t, err)

	_, err = processor.Process(context.Background(), Request{JobID: "job"})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = processor.Process(ctx, Request{JobID: "job", Pipeline: []domain.TransformStep{{ID: "a", ImageSize: []int{8}}}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessorWrapsStageErrors(t *testing.T) {
	processor := NewProcessor(staticFetcher{data: []byte("not an image")}, mustTransformer(t), discardEmitter{})
	_, err := processor.Process(context.Background(), Request{
		JobID:    "job",
		Pipeline: []domain.TransformStep{{ID: "a", ImageSize: []int{8}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform stage step=a")
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func readNPY(t *testing.T, path string) npy.Array {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	arr, err := npy.Decode(f)
	require.NoError(t, err)
	return arr
}

func mustTransformer(t testing.TB) Transformer {
	t.Helper()
	tr, err := NewTransformer(TransformerOptions{})
	require.NoError(t, err)
	return tr
}

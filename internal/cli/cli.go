// Package cli implements the pixelprep command line: preprocessing local
// images to .npy, previewing pipelines and inspecting tensors.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelprep/internal/augment"
	"github.com/dunamismax/pixelprep/internal/domain"
	"github.com/dunamismax/pixelprep/internal/npy"
	"github.com/dunamismax/pixelprep/internal/pipeline"
	"github.com/dunamismax/pixelprep/internal/telemetry"
	"github.com/dunamismax/pixelprep/internal/transform"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pixelprep",
		Short:         "Turn images into model-ready tensors",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().String("log-level", "warning", "Log level (debug, info, warning, error)")

	runCmd := &cobra.Command{
		Use:   "run IMAGE [IMAGE...]",
		Short: "Preprocess images into .npy tensors",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunHandler,
	}
	addStepFlags(runCmd)
	runCmd.Flags().StringP("out", "o", ".", "Output directory")
	runCmd.Flags().String("resampler", "imaging", "Resize backend (imaging, draw, govips)")

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the steps a configuration builds",
		Args:  cobra.NoArgs,
		RunE:  DescribeHandler,
	}
	addStepFlags(describeCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect FILE [FILE...]",
		Short: "Print the header and value statistics of .npy files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  InspectHandler,
	}
	inspectCmd.Flags().Bool("header-only", false, "Skip reading tensor data")

	rootCmd.AddCommand(runCmd, describeCmd, inspectCmd)
	return rootCmd
}

func addStepFlags(cmd *cobra.Command) {
	cmd.Flags().IntSlice("size", []int{224}, "Output size: S or H,W")
	cmd.Flags().Bool("train", false, "Build the training pipeline")
	cmd.Flags().Int("samples", 1, "Augmented samples per image (training only)")
	cmd.Flags().Uint64("seed", 0, "Random seed (default derived from the file name)")
	cmd.Flags().String("dtype", "float32", "Tensor dtype (float32, float16)")
	cmd.Flags().String("aug", "", "Augmentation options as a JSON object")
	cmd.Flags().Float64Slice("mean", nil, "Per-channel mean (default OpenAI CLIP)")
	cmd.Flags().Float64Slice("std", nil, "Per-channel std (default OpenAI CLIP)")
	cmd.Flags().Bool("resize-longest-max", false, "Fit the longest side and pad (eval only)")
	cmd.Flags().String("resize-fn", "", "Fit for --resize-longest-max: max pads, min center crops")
	cmd.Flags().Int("fill", 0, "Padding gray level for --resize-longest-max")
}

func stepFromFlags(cmd *cobra.Command, stepID string) (domain.TransformStep, error) {
	flags := cmd.Flags()
	size, _ := flags.GetIntSlice("size")
	train, _ := flags.GetBool("train")
	samples, _ := flags.GetInt("samples")
	dtype, _ := flags.GetString("dtype")
	augJSON, _ := flags.GetString("aug")
	mean, _ := flags.GetFloat64Slice("mean")
	std, _ := flags.GetFloat64Slice("std")
	longest, _ := flags.GetBool("resize-longest-max")
	resizeFn, _ := flags.GetString("resize-fn")
	fill, _ := flags.GetInt("fill")

	step := domain.TransformStep{
		ID:               stepID,
		ImageSize:        size,
		Train:            train,
		Mean:             mean,
		Std:              std,
		ResizeLongestMax: longest,
		ResizeFn:         resizeFn,
		FillColor:        fill,
		Samples:          samples,
		DType:            dtype,
	}
	if flags.Changed("seed") {
		seed, _ := flags.GetUint64("seed")
		step.Seed = &seed
	}
	if strings.TrimSpace(augJSON) != "" {
		if err := json.Unmarshal([]byte(augJSON), &step.Aug); err != nil {
			return domain.TransformStep{}, fmt.Errorf("--aug: %w", err)
		}
	}
	if err := step.Validate(); err != nil {
		return domain.TransformStep{}, err
	}
	return step, nil
}

func newLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	return telemetry.NewLogger(telemetry.LogConfig{Level: level, Output: cmd.ErrOrStderr()})
}

func RunHandler(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	outDir, _ := cmd.Flags().GetString("out")
	resampler, _ := cmd.Flags().GetString("resampler")

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	tr, err := pipeline.NewTransformer(pipeline.TransformerOptions{Resampler: resampler, Logger: logger})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, path := range args {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		step, err := stepFromFlags(cmd, "cli")
		if err != nil {
			return err
		}
		if err := runOne(cmd.Context(), tr, path, name, filepath.Join(outDir, name+".npy"), step, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func runOne(ctx context.Context, tr pipeline.Transformer, src, name, dst string, step domain.TransformStep, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	enc, err := tr.Transform(ctx, data, pipeline.Request{JobID: name}, step)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, enc.Data, 0o644); err != nil {
		return fmt.Errorf("write tensor: %w", err)
	}
	fmt.Fprintf(out, "%s -> %s shape=%v dtype=%s\n", src, dst, enc.Shape, enc.DType)
	return nil
}

func DescribeHandler(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	step, err := stepFromFlags(cmd, "describe")
	if err != nil {
		return err
	}
	params, err := step.Params()
	if err != nil {
		return err
	}
	p, err := transform.Build(params,
		transform.WithLogger(logger),
		transform.WithDelegate(augment.Factory{}),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, line := range transform.Describe(p) {
		fmt.Fprintf(out, "%d. %s\n", i+1, line)
	}
	shape := []int{3, params.ImageSize.Height, params.ImageSize.Width}
	if n := step.SampleCount(); n > 1 {
		shape = append([]int{n}, shape...)
	}
	fmt.Fprintf(out, "output: shape=%v dtype=%s bytes=%d\n", shape, step.TensorDType(), npy.EncodedSize(shape, step.TensorDType()))
	return nil
}

func InspectHandler(cmd *cobra.Command, args []string) error {
	headerOnly, _ := cmd.Flags().GetBool("header-only")
	out := cmd.OutOrStdout()

	var errs []error
	for _, path := range args {
		if err := inspectFile(out, path, headerOnly); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func inspectFile(out io.Writer, path string, headerOnly bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var arr npy.Array
	if headerOnly {
		arr, err = npy.DecodeHeader(f)
	} else {
		arr, err = npy.Decode(f)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: dtype=%s shape=%v\n", path, arr.DType, arr.Shape)
	if headerOnly || len(arr.Data) == 0 {
		return nil
	}
	s := summarize(arr.Data)
	fmt.Fprintf(out, "  min=%.4f max=%.4f mean=%.4f std=%.4f\n", s.min, s.max, s.mean, s.std)
	return nil
}

type stats struct {
	min, max, mean, std float64
}

func summarize(data []float32) stats {
	s := stats{min: math.Inf(1), max: math.Inf(-1)}
	var sum, sumSq float64
	for _, v := range data {
		f := float64(v)
		s.min = min(s.min, f)
		s.max = max(s.max, f)
		sum += f
		sumSq += f * f
	}
	n := float64(len(data))
	s.mean = sum / n
	s.std = math.Sqrt(max(sumSq/n-s.mean*s.mean, 0))
	return s
}

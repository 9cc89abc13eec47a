package transform

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResizeShortestEdge(t *testing.T) {
	resize, err := NewResize(Square(224), Bicubic)
	require.NoError(t, err)

	cases := []struct {
		w, h         int
		wantW, wantH int
	}{
		{400, 300, 298, 224},
		{300, 400, 224, 298},
		{224, 224, 224, 224},
		{100, 50, 448, 224},
	}
	for _, tc := range cases {
		out, err := resize.Apply(ImageSample(gradientImage(tc.w, tc.h)))
		require.NoError(t, err)
		assert.Equal(t, image.Pt(tc.wantW, tc.wantH), out.Image.Bounds().Size(), "input %dx%d", tc.w, tc.h)
	}
}

func TestResizeExactSize(t *testing.T) {
	resize, err := NewResize(Size{Height: 50, Width: 80}, Bilinear)
	require.NoError(t, err)

	out, err := resize.Apply(ImageSample(gradientImage(200, 200)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(80, 50), out.Image.Bounds().Size())
}

func TestResizeRejectsTensor(t *testing.T) {
	resize, err := NewResize(Square(8), Bicubic)
	require.NoError(t, err)

	_, err = resize.Apply(TensorSample(NewTensor(3, 4, 4)))
	require.ErrorIs(t, err, ErrUnexpectedTensor)
}

func TestCenterCropPadsSmallInput(t *testing.T) {
	cc, err := NewCenterCrop(Square(10))
	require.NoError(t, err)

	out, err := cc.Apply(ImageSample(solidImage(4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 255})))
	require.NoError(t, err)
	require.Equal(t, image.Pt(10, 10), out.Image.Bounds().Size())

	r, _, _, _ := out.Image.At(0, 0).RGBA()
	assert.Zero(t, r)
	r, _, _, _ = out.Image.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestCenterCropOffset(t *testing.T) {
	img := gradientImage(9, 9)
	cc, err := NewCenterCrop(Square(4))
	require.NoError(t, err)

	out, err := cc.Apply(ImageSample(img))
	require.NoError(t, err)
	require.Equal(t, image.Pt(4, 4), out.Image.Bounds().Size())

	// round(2.5) == 2
	b := out.Image.Bounds()
	assert.Equal(t, img.At(2, 2), out.Image.At(b.Min.X, b.Min.Y))
}

func TestResizeMaxSizeSquareOutput(t *testing.T) {
	for _, fn := range []string{FitMax, FitMin} {
		rms, err := NewResizeMaxSize(64, WithFn(fn))
		require.NoError(t, err)

		for _, dims := range [][2]int{{400, 300}, {300, 400}, {64, 64}, {10, 10}, {1000, 3}, {7, 501}} {
			out, err := rms.Apply(ImageSample(gradientImage(dims[0], dims[1])))
			require.NoError(t, err)
			assert.Equal(t, image.Pt(64, 64), out.Image.Bounds().Size(), "fn=%s input=%v", fn, dims)
		}
	}
}

func TestResizeMaxSizePreservesAspect(t *testing.T) {
	rms, err := NewResizeMaxSize(100, WithFill(0))
	require.NoError(t, err)

	// 200x50 scales to 100x25 and is padded with 37 rows on top, 38 below.
	out, err := rms.Apply(ImageSample(solidImage(200, 50, color.NRGBA{R: 255, G: 255, B: 255, A: 255})))
	require.NoError(t, err)

	content := 0
	for y := 0; y < 100; y++ {
		r, _, _, _ := out.Image.At(50, y).RGBA()
		if r > 0x8000 {
			content++
		}
	}
	assert.Equal(t, 25, content)
	r, _, _, _ := out.Image.At(50, 36).RGBA()
	assert.Zero(t, r)
	r, _, _, _ = out.Image.At(50, 37).RGBA()
	assert.NotZero(t, r)
	r, _, _, _ = out.Image.At(50, 62).RGBA()
	assert.Zero(t, r)
}

func TestResizeMaxSizeFill(t *testing.T) {
	rms, err := NewResizeMaxSize(20, WithFill(128))
	require.NoError(t, err)

	out, err := rms.Apply(ImageSample(solidImage(40, 20, color.NRGBA{A: 255})))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, color.NRGBAModel.Convert(out.Image.At(0, 0)))
}

func TestResizeMaxSizeTensor(t *testing.T) {
	rms, err := NewResizeMaxSize(8, WithFill(0))
	require.NoError(t, err)

	in := NewTensor(3, 2, 8)
	for i := range in.Data {
		in.Data[i] = 1
	}
	out, err := rms.Apply(TensorSample(in))
	require.NoError(t, err)
	require.True(t, out.IsTensor())
	assert.Equal(t, []int{3, 8, 8}, out.Tensor.Shape())

	for y := 0; y < 8; y++ {
		want := float32(0)
		if y == 3 || y == 4 {
			want = 1
		}
		assert.Equal(t, want, out.Tensor.At(1, y, 4), "row %d", y)
	}

	minFit, err := NewResizeMaxSize(8, WithFn(FitMin))
	require.NoError(t, err)
	out, err = minFit.Apply(TensorSample(in))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 8, 8}, out.Tensor.Shape())
}

func TestResizeMaxSizeRejectsBadConfig(t *testing.T) {
	_, err := NewResizeMaxSize(0)
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewResizeMaxSize(10, WithFn("median"))
	require.ErrorIs(t, err, ErrConfig)

	_, err = NewResizeMaxSize(10, WithFill(300))
	require.ErrorIs(t, err, ErrConfig)
}

func TestResamplersAgreeOnSize(t *testing.T) {
	for _, r := range []Resampler{ImagingResampler{}, DrawResampler{}} {
		for _, interp := range []Interpolation{Nearest, Bilinear, Bicubic, Lanczos, Box} {
			out := r.Resize(gradientImage(33, 17), 12, 9, interp)
			assert.Equal(t, image.Pt(12, 9), out.Bounds().Size(), "%s %s", r.Name(), interp)
		}
	}
}

func TestParseInterpolation(t *testing.T) {
	got, err := ParseInterpolation("Bicubic")
	require.NoError(t, err)
	assert.Equal(t, Bicubic, got)

	got, err = ParseInterpolation("linear")
	require.NoError(t, err)
	assert.Equal(t, Bilinear, got)

	_, err = ParseInterpolation("hamming")
	require.ErrorIs(t, err, ErrConfig)
}

func TestSizeFromDims(t *testing.T) {
	s, err := SizeFromDims([]int{224})
	require.NoError(t, err)
	assert.Equal(t, Square(224), s)

	s, err = SizeFromDims([]int{224, 160})
	require.NoError(t, err)
	assert.Equal(t, Size{Height: 224, Width: 160}, s)
	assert.Equal(t, "224x160", s.String())

	_, err = SizeFromDims([]int{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidSize)
	_, err = SizeFromDims([]int{-4})
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestResizeMaxSizeInterpolation(t *testing.T) {
	rms, err := NewResizeMaxSize(32, WithInterpolation(Nearest), WithFill(7))
	require.NoError(t, err)
	assert.Equal(t, "ResizeMaxSize(max_size=32, interpolation=nearest, fn=max, fill=7)", rms.String())

	// Nearest keeps the two source colors exact when upscaling.
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})
	out, err := rms.Apply(ImageSample(img))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, color.NRGBAModel.Convert(out.Image.At(0, 16)))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, color.NRGBAModel.Convert(out.Image.At(31, 16)))
}

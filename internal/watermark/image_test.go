package watermark

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	white = color.NRGBA{255, 255, 255, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
	red   = color.NRGBA{255, 0, 0, 255}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func readPNG(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := loadImageNRGBA(path)
	require.NoError(t, err)
	return img
}

func near(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func runImage(t *testing.T, src, wm image.Image) *image.NRGBA {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")
	err := ImageWatermark(context.Background(), ImageParams{
		InputPath:     writePNG(t, dir, "src.png", src),
		WatermarkPath: writePNG(t, dir, "wm.png", wm),
		OutputPath:    out,
	})
	require.NoError(t, err)
	return readPNG(t, out)
}

func TestImageWatermarkFootprint(t *testing.T) {
	got := runImage(t, solid(1000, 800, white), solid(200, 100, red))

	require.Equal(t, image.Rect(0, 0, 1000, 800), got.Bounds())

	// Footprint is [275,725) x [287,512).
	assert.Equal(t, red, got.NRGBAAt(275, 287))
	assert.Equal(t, red, got.NRGBAAt(724, 511))
	assert.Equal(t, red, got.NRGBAAt(500, 400))
	assert.Equal(t, white, got.NRGBAAt(274, 287))
	assert.Equal(t, white, got.NRGBAAt(275, 286))
	assert.Equal(t, white, got.NRGBAAt(725, 511))
	assert.Equal(t, white, got.NRGBAAt(724, 512))
	assert.Equal(t, white, got.NRGBAAt(0, 0))
}

func TestImageWatermarkTransparentLeavesSourceUnchanged(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 120, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 2), uint8(y * 2), uint8(x + y), 255})
		}
	}
	got := runImage(t, src, solid(40, 40, color.NRGBA{255, 0, 0, 0}))
	assert.Equal(t, src.Pix, got.Pix)
}

func TestImageWatermarkAlphaBlending(t *testing.T) {
	cases := []struct {
		name  string
		alpha uint8
		want  color.NRGBA
		tol   int
	}{
		{"opaque replaces", 255, color.NRGBA{255, 0, 0, 255}, 0},
		{"transparent keeps", 0, color.NRGBA{0, 0, 255, 255}, 0},
		{"half blends", 128, color.NRGBA{128, 0, 127, 255}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := runImage(t, solid(100, 100, blue), solid(10, 10, color.NRGBA{255, 0, 0, tc.alpha}))
			px := got.NRGBAAt(50, 50)
			assert.True(t, near(px.R, tc.want.R, tc.tol), "R=%d want %d", px.R, tc.want.R)
			assert.True(t, near(px.G, tc.want.G, tc.tol), "G=%d want %d", px.G, tc.want.G)
			assert.True(t, near(px.B, tc.want.B, tc.tol), "B=%d want %d", px.B, tc.want.B)
			assert.Equal(t, uint8(255), px.A)
		})
	}
}

func TestImageWatermarkJPEGSourceGetsAlpha(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "photo.jpg")
	f, err := os.Create(srcPath)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, solid(200, 100, white), &jpeg.Options{Quality: 95}))
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "out.png")
	err = ImageWatermark(context.Background(), ImageParams{
		InputPath:     srcPath,
		WatermarkPath: writePNG(t, dir, "wm.png", solid(20, 20, red)),
		OutputPath:    out,
	})
	require.NoError(t, err)

	got := readPNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 200, 100), got.Bounds())
	assert.Equal(t, uint8(255), got.NRGBAAt(0, 0).A)
}

func TestImageWatermarkTinySourceDoesNotFail(t *testing.T) {
	for _, size := range []int{1, 2, 3, 7} {
		got := runImage(t, solid(size, size, white), solid(200, 100, red))
		assert.Equal(t, image.Rect(0, 0, size, size), got.Bounds())
	}
}

func TestImageWatermarkCorruptSource(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.png")
	require.NoError(t, os.WriteFile(srcPath, []byte("not an image"), 0644))
	out := filepath.Join(dir, "out.png")

	err := ImageWatermark(context.Background(), ImageParams{
		InputPath:     srcPath,
		WatermarkPath: writePNG(t, dir, "wm.png", solid(10, 10, red)),
		OutputPath:    out,
	})

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr), "got %v", err)
	assert.Equal(t, srcPath, decErr.Path)
	assert.NoFileExists(t, out)
}

func TestImageWatermarkMissingWatermark(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.png")

	err := ImageWatermark(context.Background(), ImageParams{
		InputPath:     writePNG(t, dir, "src.png", solid(10, 10, white)),
		WatermarkPath: filepath.Join(dir, "missing.png"),
		OutputPath:    out,
	})

	var fsErr *FilesystemError
	require.True(t, errors.As(err, &fsErr), "got %v", err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoFileExists(t, out)
}

func TestImageWatermarkCorruptWatermark(t *testing.T) {
	dir := t.TempDir()
	wmPath := filepath.Join(dir, "wm.png")
	require.NoError(t, os.WriteFile(wmPath, []byte{0x89, 'P', 'N', 'G', 0, 0}, 0644))
	out := filepath.Join(dir, "out.png")

	err := ImageWatermark(context.Background(), ImageParams{
		InputPath:     writePNG(t, dir, "src.png", solid(10, 10, white)),
		WatermarkPath: wmPath,
		OutputPath:    out,
	})

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr), "got %v", err)
	assert.NoFileExists(t, out)
}

func TestImageWatermarkUnwritableOutput(t *testing.T) {
	dir := t.TempDir()
	err := ImageWatermark(context.Background(), ImageParams{
		InputPath:     writePNG(t, dir, "src.png", solid(10, 10, white)),
		WatermarkPath: writePNG(t, dir, "wm.png", solid(10, 10, red)),
		OutputPath:    filepath.Join(dir, "no-such-dir", "out.png"),
	})

	var fsErr *FilesystemError
	require.True(t, errors.As(err, &fsErr), "got %v", err)
	assert.Equal(t, "create", fsErr.Op)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestImageWatermarkCancelledContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(dir, "out.png")
	err := ImageWatermark(ctx, ImageParams{
		InputPath:     writePNG(t, dir, "src.png", solid(10, 10, white)),
		WatermarkPath: writePNG(t, dir, "wm.png", solid(10, 10, red)),
		OutputPath:    out,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
}

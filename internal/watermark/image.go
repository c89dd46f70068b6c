package watermark

import (
	"context"
	"errors"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type ImageParams struct {
	InputPath     string
	WatermarkPath string
	OutputPath    string
}

// ImageWatermark scales the watermark to 45% of the source width, centers it,
// composites it over the source and writes the result as PNG to OutputPath.
//
// The watermark is read from disk on every call. On error nothing is left at
// OutputPath.
func ImageWatermark(ctx context.Context, p ImageParams) error {
	src, err := loadImageNRGBA(p.InputPath)
	if err != nil {
		return err
	}
	wm, err := loadImageNRGBA(p.WatermarkPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := src.Bounds()
	wb := wm.Bounds()
	pl := ComputePlacement(b.Dx(), b.Dy(), wb.Dx(), wb.Dy())
	Composite(src, wm, pl)

	return savePNG(src, p.OutputPath)
}

// Composite resizes wm to the placement size with Lanczos resampling and
// draws it over dst. The watermark's alpha channel is its own mask, so
// transparent watermark pixels leave dst untouched. Parts of the footprint
// outside dst are clipped.
func Composite(dst *image.NRGBA, wm image.Image, pl Placement) {
	if pl.Empty() {
		return
	}
	scaled := resize.Resize(uint(pl.Width), uint(pl.Height), wm, resize.Lanczos3)

	origin := dst.Bounds().Min.Add(image.Pt(pl.X, pl.Y))
	r := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(pl.Width, pl.Height))}
	draw.Draw(dst, r, scaled, scaled.Bounds().Min, draw.Over)
}

// loadImageNRGBA decodes any registered raster format and normalizes it to
// *image.NRGBA so every pixel carries an alpha channel.
func loadImageNRGBA(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if n, ok := decoded.(*image.NRGBA); ok {
		return n, nil
	}
	bounds := decoded.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), decoded, bounds.Min, draw.Src)
	return nrgba, nil
}

// checkImage verifies that path exists and that its header decodes as an
// image, without decoding the pixel data.
func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &FilesystemError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

// savePNG encodes to a temporary file next to outputPath and renames it into
// place once the encoder has finished.
func savePNG(img image.Image, outputPath string) error {
	tmp := filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return &FilesystemError{Op: "create", Path: outputPath, Err: err}
	}

	encErr := png.Encode(f, img)
	closeErr := f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		os.Remove(tmp)
		return &FilesystemError{Op: "write", Path: outputPath, Err: err}
	}

	if err := os.Rename(tmp, outputPath); err != nil {
		os.Remove(tmp)
		return &FilesystemError{Op: "rename", Path: outputPath, Err: err}
	}
	return nil
}

package watermark

import "math"

// The watermark is scaled to this share of the source width on images.
const (
	widthRatioNum = 45
	widthRatioDen = 100
)

const WidthRatio = float64(widthRatioNum) / widthRatioDen

// Placement is the size and top-left offset of the scaled watermark inside
// the source image.
type Placement struct {
	Width  int
	Height int
	X      int
	Y      int
}

// Empty reports whether the watermark collapses to nothing at this size.
func (p Placement) Empty() bool {
	return p.Width <= 0 || p.Height <= 0
}

// ComputePlacement scales a wmW x wmH watermark to 45% of srcW, keeping its
// aspect ratio, and centers it in a srcW x srcH image.
func ComputePlacement(srcW, srcH, wmW, wmH int) Placement {
	w := srcW * widthRatioNum / widthRatioDen
	h := 0
	if wmW > 0 {
		h = int(math.Round(float64(wmH) * float64(w) / float64(wmW)))
	}
	x, y := CenterOffset(srcW, srcH, w, h)
	return Placement{Width: w, Height: h, X: x, Y: y}
}

// CenterOffset returns the top-left corner that centers an inner box inside
// an outer one. Odd differences round down; an inner box larger than the
// outer one gets a negative offset.
func CenterOffset(outerW, outerH, innerW, innerH int) (int, int) {
	return floorDiv(outerW-innerW, 2), floorDiv(outerH-innerH, 2)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

package marker

import (
	"image"
	"image/color"

	"marker-reader/pkg/colorutil"
	"marker-reader/pkg/geometry"

	"gocv.io/x/gocv"
)

// whiteCanvas returns a white BGR frame.
func whiteCanvas(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), rows, cols, gocv.MatTypeCV8UC3)
}

// fillRect paints a solid rectangle.
func fillRect(img *gocv.Mat, r image.Rectangle, c color.RGBA) {
	gocv.Rectangle(img, r, c, -1)
}

// markerCanvas draws a red and a green 45 px square whose centers are 150 px
// apart on one horizontal line.
func markerCanvas() gocv.Mat {
	img := whiteCanvas(200, 400)
	fillRect(&img, image.Rect(80, 78, 125, 123), colorutil.Red)
	fillRect(&img, image.Rect(230, 78, 275, 123), colorutil.Green)
	return img
}

// squareInfo builds an axis-aligned marker descriptor centered on (cx, cy).
func squareInfo(cx, cy, half int) ContourInfo {
	side := float64(2 * half)
	return ContourInfo{
		Corners: [4]image.Point{
			{X: cx - half, Y: cy - half},
			{X: cx + half, Y: cy - half},
			{X: cx + half, Y: cy + half},
			{X: cx - half, Y: cy + half},
		},
		Center:      geometry.NewPoint2D(float64(cx), float64(cy)),
		Width:       side,
		Height:      side,
		Area:        side * side,
		AspectRatio: 1,
		Perimeter:   4 * side,
	}
}

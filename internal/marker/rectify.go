package marker

import (
	"image"
	"log"

	"marker-reader/pkg/geometry"

	"gocv.io/x/gocv"
)

// RotationFor returns the transform that turns the red→green axis of a pair
// horizontal, rotating about the center of the pair's bounding box. It is the
// same matrix gocv.GetRotationMatrix2D produces for these arguments.
func RotationFor(pair ContourPair) (geometry.AffineTransform, image.Point, float64) {
	center := geometry.RectCenter(pair.Bounds())
	angle := pair.Angle()
	return geometry.RotationAbout(geometry.FromImagePoint(center), angle, 1), center, angle
}

// CutBoundingBox rotates the frame once per pair so the red marker sits to
// the left of the green one on a horizontal line, then crops the box that
// holds both markers' corners. Pairs whose rotated box does not fit inside
// the frame are skipped.
func CutBoundingBox(pairs []ContourPair, frame gocv.Mat) []Region {
	var regions []Region

	for _, pair := range pairs {
		region, ok := cutPair(pair, frame)
		if !ok {
			continue
		}
		regions = append(regions, region)
	}
	return regions
}

func cutPair(pair ContourPair, frame gocv.Mat) (Region, bool) {
	transform, center, angle := RotationFor(pair)

	rotMat := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer rotMat.Close()

	rotated := gocv.NewMat()
	defer rotated.Close()
	gocv.WarpAffine(frame, &rotated, rotMat, image.Point{X: frame.Cols(), Y: frame.Rows()})

	// Re-project the 8 corners with the matrix OpenCV actually used
	transform = matToAffine(rotMat, transform)
	box := geometry.BoundingRect(geometry.TransformPoints(transform, pair.Corners()))

	frameRect := image.Rect(0, 0, rotated.Cols(), rotated.Rows())
	if box.Empty() || !box.In(frameRect) {
		log.Printf("rectify: rotated box %v outside frame %dx%d (angle %.1f°), skipping pair",
			box, rotated.Cols(), rotated.Rows(), angle)
		return Region{}, false
	}

	view := rotated.Region(box)
	defer view.Close()

	return Region{
		Pair:   pair,
		Angle:  angle,
		Bounds: pair.Bounds(),
		Crop:   view.Clone(),
	}, true
}

// matToAffine reads a 2x3 CV_64F matrix, falling back to fallback when the
// matrix is not the expected shape.
func matToAffine(m gocv.Mat, fallback geometry.AffineTransform) geometry.AffineTransform {
	if m.Rows() != 2 || m.Cols() != 3 || m.Type() != gocv.MatTypeCV64F {
		return fallback
	}
	return geometry.FromMatrix([2][3]float64{
		{m.GetDoubleAt(0, 0), m.GetDoubleAt(0, 1), m.GetDoubleAt(0, 2)},
		{m.GetDoubleAt(1, 0), m.GetDoubleAt(1, 1), m.GetDoubleAt(1, 2)},
	})
}

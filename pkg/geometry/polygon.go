package geometry

import (
	"image"

	"gonum.org/v1/gonum/mat"
)

// BoundingRect returns the smallest axis-aligned rectangle containing every
// point. Like cv::boundingRect the rectangle is inclusive of the extreme
// pixels, so a single point yields a 1x1 rectangle.
func BoundingRect(points []image.Point) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// RectCenter returns the integer center of r the way OpenCV callers usually
// write it: x + w/2, y + h/2 with integer division.
func RectCenter(r image.Rectangle) image.Point {
	return image.Point{X: r.Min.X + r.Dx()/2, Y: r.Min.Y + r.Dy()/2}
}

// TransformPoints maps every point through t in one matrix product and rounds
// the results back to pixel coordinates.
func TransformPoints(t AffineTransform, points []image.Point) []image.Point {
	if len(points) == 0 {
		return nil
	}

	m := t.ToMatrix()
	affine := mat.NewDense(2, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
	})

	// Homogeneous coordinates, one column per point
	homog := mat.NewDense(3, len(points), nil)
	for i, p := range points {
		homog.Set(0, i, float64(p.X))
		homog.Set(1, i, float64(p.Y))
		homog.Set(2, i, 1)
	}

	var out mat.Dense
	out.Mul(affine, homog)

	result := make([]image.Point, len(points))
	for i := range points {
		result[i] = Point2D{X: out.At(0, i), Y: out.At(1, i)}.Round()
	}
	return result
}

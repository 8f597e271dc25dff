// Package marker decodes the red/green framed 4-cell marker code from BGR
// frames. Every function here is a pure transformation of its inputs; no
// state survives between calls.
package marker

import (
	"image"

	"marker-reader/pkg/geometry"

	"gocv.io/x/gocv"
)

// CodeLength is the number of cells in a marker code.
const CodeLength = 4

// UnknownDigit marks a cell whose blob layout does not match any digit.
const UnknownDigit = 'X'

// ColorKind selects which marker color a mask is built for.
type ColorKind int

const (
	// Red is the marker on the leading side of the code.
	Red ColorKind = iota
	// Green is the marker on the trailing side of the code.
	Green
)

func (k ColorKind) String() string {
	switch k {
	case Red:
		return "red"
	case Green:
		return "green"
	default:
		return "unknown"
	}
}

// ContourInfo describes one candidate marker blob. It is computed once per
// contour and never modified afterwards.
type ContourInfo struct {
	Corners     [4]image.Point   // Minimum-area rotated rectangle vertices
	Center      geometry.Point2D // Axis-aligned bounding box center
	Width       float64          // Bounding box width (pixels)
	Height      float64          // Bounding box height (pixels)
	Area        float64          // Contour area (pixels²)
	AspectRatio float64          // Width/Height, 0 when Height is 0
	Perimeter   float64          // Closed arc length
	Angle       float64          // Rotated rectangle angle (degrees, OpenCV convention)
}

// ContourPair binds a red marker to the green marker it was matched with.
type ContourPair struct {
	Red   ContourInfo
	Green ContourInfo
}

// Corners returns the 4 red corners followed by the 4 green corners.
func (p ContourPair) Corners() []image.Point {
	pts := make([]image.Point, 0, 8)
	pts = append(pts, p.Red.Corners[:]...)
	pts = append(pts, p.Green.Corners[:]...)
	return pts
}

// Bounds returns the axis-aligned box around both markers' corners.
func (p ContourPair) Bounds() image.Rectangle {
	return geometry.BoundingRect(p.Corners())
}

// Angle returns the direction from the red center to the green center in degrees.
func (p ContourPair) Angle() float64 {
	return p.Red.Center.AngleTo(p.Green.Center)
}

// Orientation is the coarse shape of a blob inside a cell.
type Orientation int

const (
	// Vertical blobs are at least as tall as they are wide.
	Vertical Orientation = iota
	// Horizontal blobs are strictly wider than tall.
	Horizontal
)

func (o Orientation) String() string {
	if o == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

// OrientationOf classifies a bounding box.
func OrientationOf(r image.Rectangle) Orientation {
	if r.Dx() > r.Dy() {
		return Horizontal
	}
	return Vertical
}

// Blob is a cell contour with its derived measurements.
type Blob struct {
	Points []image.Point
	Bounds image.Rectangle
	Area   float64
}

// SegmentInfo summarises the blobs found in one of the 4 cells.
type SegmentInfo struct {
	NumContours       int
	Orientations      []Orientation
	AreaRatios        []float64 // Blob area / (crop area / 4)
	AreaRatioRelation float64   // Area[0]/Area[1] when NumContours == 2, else -1
}

// Region is a rectified crop around one matched pair.
type Region struct {
	Pair   ContourPair
	Angle  float64         // Rotation applied (degrees)
	Bounds image.Rectangle // Pair bounds in the source frame
	Crop   gocv.Mat        // Rotated crop; caller closes
}

// Detection is the decoded outcome for one matched pair.
type Detection struct {
	Pair   ContourPair
	Bounds image.Rectangle
	Angle  float64
	Code   string
}

// Result holds the output of one decode call.
type Result struct {
	Annotated  gocv.Mat // Copy of the input with boxes and codes drawn; caller closes
	Pairs      []ContourPair
	Detections []Detection
}

// Codes returns the decoded strings in match order.
func (r *Result) Codes() []string {
	codes := make([]string, len(r.Detections))
	for i, d := range r.Detections {
		codes[i] = d.Code
	}
	return codes
}

// Close releases the annotated image.
func (r *Result) Close() error {
	return r.Annotated.Close()
}

// ViewMode selects which stage of the pipeline a viewer renders.
type ViewMode int

const (
	ViewNormal ViewMode = iota
	ViewDecoded
	ViewRedMask
	ViewGreenMask
)

func (m ViewMode) String() string {
	switch m {
	case ViewNormal:
		return "Normal"
	case ViewDecoded:
		return "Decoded"
	case ViewRedMask:
		return "Red mask"
	case ViewGreenMask:
		return "Green mask"
	default:
		return "Unknown"
	}
}

// ViewModes lists every mode in display order.
func ViewModes() []ViewMode {
	return []ViewMode{ViewNormal, ViewDecoded, ViewRedMask, ViewGreenMask}
}

// ParseViewMode is the inverse of ViewMode.String.
func ParseViewMode(s string) (ViewMode, bool) {
	for _, m := range ViewModes() {
		if m.String() == s {
			return m, true
		}
	}
	return ViewNormal, false
}

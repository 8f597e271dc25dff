package marker

import (
	"image"

	"marker-reader/pkg/geometry"

	"gocv.io/x/gocv"
)

// SobelEdges computes the gradient magnitude of a grayscale image, stretches
// it to 0-255 and binarises it at threshold.
func SobelEdges(gray gocv.Mat, ksize int, threshold float64) gocv.Mat {
	k := oddKernel(ksize)

	sobelX := gocv.NewMat()
	defer sobelX.Close()
	gocv.Sobel(gray, &sobelX, gocv.MatTypeCV64F, 1, 0, k, 1, 0, gocv.BorderDefault)

	sobelY := gocv.NewMat()
	defer sobelY.Close()
	gocv.Sobel(gray, &sobelY, gocv.MatTypeCV64F, 0, 1, k, 1, 0, gocv.BorderDefault)

	magnitude := gocv.NewMat()
	defer magnitude.Close()
	gocv.Magnitude(sobelX, sobelY, &magnitude)

	normalized := gocv.NewMat()
	defer normalized.Close()
	gocv.Normalize(magnitude, &normalized, 0, 255, gocv.NormMinMax)

	magnitude8 := gocv.NewMat()
	defer magnitude8.Close()
	normalized.ConvertTo(&magnitude8, gocv.MatTypeCV8U)

	edges := gocv.NewMat()
	gocv.Threshold(magnitude8, &edges, float32(threshold), 255, gocv.ThresholdBinary)
	return edges
}

// FindFilteredContours extracts the outer edge contours of a masked
// grayscale image and keeps the near-square blobs of plausible marker size.
func FindFilteredContours(masked gocv.Mat, params DetectionParams) [][]image.Point {
	edges := SobelEdges(masked, params.SobelKernel, params.EdgeThreshold)
	defer edges.Close()

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	imageArea := float64(masked.Rows() * masked.Cols())
	minArea := params.MinAreaFraction * imageArea
	maxArea := params.MaxAreaFraction * imageArea

	var filtered [][]image.Point
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area <= minArea || area >= maxArea {
			continue
		}

		rect := gocv.BoundingRect(contour)
		aspect := AspectRatio(float64(rect.Dx()), float64(rect.Dy()))
		if aspect <= params.AspectMin || aspect >= params.AspectMax {
			continue
		}

		filtered = append(filtered, contour.ToPoints())
	}
	return filtered
}

// ExtractContourInfo computes the geometric descriptor of every contour.
func ExtractContourInfo(contours [][]image.Point) []ContourInfo {
	infos := make([]ContourInfo, 0, len(contours))
	for _, c := range contours {
		infos = append(infos, NewContourInfo(c))
	}
	return infos
}

// NewContourInfo measures a single contour.
func NewContourInfo(contour []image.Point) ContourInfo {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()

	rect := gocv.BoundingRect(pv)
	rotRect := gocv.MinAreaRect(pv)

	info := ContourInfo{
		Area:      gocv.ContourArea(pv),
		Perimeter: gocv.ArcLength(pv, true),
		Width:     float64(rect.Dx()),
		Height:    float64(rect.Dy()),
		Angle:     rotRect.Angle,
		Center: geometry.Point2D{
			X: float64(rect.Min.X) + float64(rect.Dx())/2,
			Y: float64(rect.Min.Y) + float64(rect.Dy())/2,
		},
	}
	info.AspectRatio = AspectRatio(info.Width, info.Height)

	for i := 0; i < len(info.Corners) && i < len(rotRect.Points); i++ {
		info.Corners[i] = rotRect.Points[i]
	}
	return info
}

// AspectRatio returns width/height, or 0 for a degenerate zero-height box.
func AspectRatio(width, height float64) float64 {
	if height == 0 {
		return 0
	}
	return width / height
}

package marker

import (
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// ThresholdCell binarises a grayscale crop with an adaptive Gaussian
// threshold, then smooths it with a 3x3 close and a single erosion.
func ThresholdCell(gray gocv.Mat, params DetectionParams) gocv.Mat {
	thresholded := gocv.NewMat()
	defer thresholded.Close()
	gocv.AdaptiveThreshold(gray, &thresholded, 255, gocv.AdaptiveThresholdGaussian,
		gocv.ThresholdBinary, oddKernel(params.ThresholdBlockSize), float32(params.ThresholdC))

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(thresholded, &closed, gocv.MorphClose, kernel)

	eroded := gocv.NewMat()
	gocv.Erode(closed, &eroded, kernel)
	return eroded
}

// CellContours extracts every contour of the binary crop (full hierarchy)
// and keeps the ones that can be code blobs: inside the absolute and
// relative area limits and clear of the crop border.
func CellContours(binary gocv.Mat, params DetectionParams) []Blob {
	contours := gocv.FindContours(binary, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	cols, rows := binary.Cols(), binary.Rows()
	imageArea := float64(cols * rows)
	margin := params.CellBorderMargin

	var blobs []Blob
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < params.CellMinArea || area > params.CellMaxArea {
			continue
		}
		if area/imageArea < params.CellMinInfluence {
			continue
		}

		rect := gocv.BoundingRect(contour)
		if rect.Min.X <= margin || rect.Min.Y <= margin ||
			rect.Max.X >= cols-margin || rect.Max.Y >= rows-margin {
			continue
		}

		blobs = append(blobs, Blob{Points: contour.ToPoints(), Bounds: rect, Area: area})
	}
	return blobs
}

// ClassifyContours splits blobs into large near-square ones (the printed
// frame around the cells) and everything else.
func ClassifyContours(blobs []Blob, size image.Point, params DetectionParams) (squares, rectangles []Blob) {
	imageArea := float64(size.X * size.Y)
	for _, b := range blobs {
		aspect := AspectRatio(float64(b.Bounds.Dx()), float64(b.Bounds.Dy()))
		areaRatio := 0.0
		if imageArea > 0 {
			areaRatio = b.Area / imageArea
		}
		if aspect >= params.SquareAspectMin && aspect <= params.SquareAspectMax && areaRatio > params.SquareMinAreaRatio {
			squares = append(squares, b)
		} else {
			rectangles = append(rectangles, b)
		}
	}
	return squares, rectangles
}

// FilterInsideContours drops every blob that lies strictly inside another
// blob. A nested pair keeps only the outer contour.
func FilterInsideContours(blobs []Blob) []Blob {
	polys := make([]gocv.PointVector, len(blobs))
	for i, b := range blobs {
		polys[i] = gocv.NewPointVectorFromPoints(b.Points)
	}
	defer func() {
		for _, pv := range polys {
			pv.Close()
		}
	}()

	var kept []Blob
	for i, b := range blobs {
		nested := false
		for j := range blobs {
			if i == j {
				continue
			}
			if insidePolygon(b.Points, polys[j]) {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, b)
		}
	}
	return kept
}

// insidePolygon reports whether every point lies strictly inside poly.
func insidePolygon(points []image.Point, poly gocv.PointVector) bool {
	if len(points) == 0 {
		return false
	}
	for _, pt := range points {
		if gocv.PointPolygonTest(poly, pt, false) <= 0 {
			return false
		}
	}
	return true
}

// SeparateBySegments assigns each blob to one of the 4 equal-width cells by
// the x coordinate of its bounding box center.
func SeparateBySegments(blobs []Blob, width int) [CodeLength][]Blob {
	var segments [CodeLength][]Blob
	cellWidth := width / CodeLength

	for _, b := range blobs {
		centerX := b.Bounds.Min.X + b.Bounds.Dx()/2
		idx := 0
		if cellWidth > 0 {
			idx = centerX / cellWidth
		}
		if idx < 0 {
			idx = 0
		}
		if idx >= CodeLength {
			idx = CodeLength - 1
		}
		segments[idx] = append(segments[idx], b)
	}
	return segments
}

// OrderSegments puts two-blob cells into reading order: two wide blobs are
// stacked, so they sort top to bottom; two narrow blobs sit side by side, so
// they sort left to right. A wide/narrow mix keeps its detection order.
// Cells with any other count are left as they are.
func OrderSegments(segments [CodeLength][]Blob) [CodeLength][]Blob {
	var ordered [CodeLength][]Blob
	for i, seg := range segments {
		out := append([]Blob(nil), seg...)
		if len(out) == 2 {
			wide0 := OrientationOf(out[0].Bounds) == Horizontal
			wide1 := OrientationOf(out[1].Bounds) == Horizontal
			switch {
			case wide0 && wide1:
				sort.SliceStable(out, func(a, b int) bool { return out[a].Bounds.Min.Y < out[b].Bounds.Min.Y })
			case !wide0 && !wide1:
				sort.SliceStable(out, func(a, b int) bool { return out[a].Bounds.Min.X < out[b].Bounds.Min.X })
			}
		}
		ordered[i] = out
	}
	return ordered
}

// SegmentInfos measures each ordered cell. Area ratios are relative to a
// quarter of the crop, i.e. one cell.
func SegmentInfos(segments [CodeLength][]Blob, size image.Point) []SegmentInfo {
	cellArea := float64(size.X*size.Y) / CodeLength

	infos := make([]SegmentInfo, 0, CodeLength)
	for _, seg := range segments {
		info := SegmentInfo{
			NumContours:       len(seg),
			AreaRatioRelation: -1,
		}
		for _, b := range seg {
			info.Orientations = append(info.Orientations, OrientationOf(b.Bounds))
			ratio := 0.0
			if cellArea > 0 {
				ratio = b.Area / cellArea
			}
			info.AreaRatios = append(info.AreaRatios, ratio)
		}
		if len(seg) == 2 && seg[1].Area != 0 {
			info.AreaRatioRelation = seg[0].Area / seg[1].Area
		}
		infos = append(infos, info)
	}
	return infos
}

// DecodeCell reads the 4-digit code from one rectified crop.
func DecodeCell(crop gocv.Mat, params DetectionParams) string {
	if crop.Empty() {
		return DecodeNumber(nil, params)
	}

	gray := ToGray(crop)
	defer gray.Close()

	blurred := BlurImage(gray, params.CellBlurKernel)
	defer blurred.Close()

	binary := ThresholdCell(blurred, params)
	defer binary.Close()

	size := image.Point{X: blurred.Cols(), Y: blurred.Rows()}

	blobs := CellContours(binary, params)
	_, rectangles := ClassifyContours(blobs, size, params)
	blobs = FilterInsideContours(rectangles)

	segments := OrderSegments(SeparateBySegments(blobs, size.X))
	return DecodeNumber(SegmentInfos(segments, size), params)
}

package marker

import (
	"image"

	"gocv.io/x/gocv"
)

// BlurImage applies a Gaussian blur with a square kernel. Even sizes are
// bumped to the next odd size.
func BlurImage(src gocv.Mat, ksize int) gocv.Mat {
	k := oddKernel(ksize)
	blurred := gocv.NewMat()
	gocv.GaussianBlur(src, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
	return blurred
}

// ToHSV converts a BGR image to HSV.
func ToHSV(src gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)
	return hsv
}

// ToGray converts a BGR image to single-channel grayscale. Images that are
// already single channel are cloned.
func ToGray(src gocv.Mat) gocv.Mat {
	if src.Channels() == 1 {
		return src.Clone()
	}
	gray := gocv.NewMat()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	return gray
}

// HSVMask builds the binary mask of one marker color from an HSV image.
// Multiple ranges are OR-ed together, which is how red covers the hue wrap
// at 0/180.
func HSVMask(hsv gocv.Mat, kind ColorKind, params DetectionParams) gocv.Mat {
	ranges := params.Ranges(kind)

	if len(ranges) == 0 {
		return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)
	}

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv, hsvScalar(ranges[0].Lower), hsvScalar(ranges[0].Upper), &mask)

	part := gocv.NewMat()
	defer part.Close()
	for _, r := range ranges[1:] {
		gocv.InRangeWithScalar(hsv, hsvScalar(r.Lower), hsvScalar(r.Upper), &part)
		gocv.BitwiseOr(mask, part, &mask)
	}
	return mask
}

// ColorMask runs the full segmentation for one color on a BGR frame:
// blur, HSV conversion, range mask.
func ColorMask(frame gocv.Mat, kind ColorKind, params DetectionParams) gocv.Mat {
	blurred := BlurImage(frame, params.MaskBlurKernel)
	defer blurred.Close()

	hsv := ToHSV(blurred)
	defer hsv.Close()

	return HSVMask(hsv, kind, params)
}

// ApplyMask returns a copy of src with every pixel outside mask set to zero.
// src is not modified.
func ApplyMask(src, mask gocv.Mat) gocv.Mat {
	masked := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Rows(), src.Cols(), src.Type())
	src.CopyToWithMask(&masked, mask)
	return masked
}

func hsvScalar(v [3]float64) gocv.Scalar {
	return gocv.NewScalar(v[0], v[1], v[2], 0)
}

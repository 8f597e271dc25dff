package marker

import (
	"errors"
	"fmt"
	"image"

	"marker-reader/pkg/colorutil"

	"gocv.io/x/gocv"
)

// ErrEmptyInput is returned for frames with no pixels or the wrong channel
// layout. It is the only condition the decoder refuses outright.
var ErrEmptyInput = errors.New("empty or malformed frame")

// Decoder runs the full detection pipeline over BGR frames. It holds only
// its parameters, so one Decoder may be shared across goroutines.
type Decoder struct {
	params DetectionParams
}

// NewDecoder creates a decoder with the given parameters.
func NewDecoder(params DetectionParams) *Decoder {
	return &Decoder{params: params}
}

// Params returns the parameters the decoder was created with.
func (d *Decoder) Params() DetectionParams {
	return d.params
}

// checkFrame enforces the 3-channel, non-empty precondition.
func checkFrame(frame gocv.Mat) error {
	if frame.Empty() || frame.Rows() == 0 || frame.Cols() == 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyInput, frame.Cols(), frame.Rows())
	}
	if frame.Channels() != 3 {
		return fmt.Errorf("%w: want 3 channels, got %d", ErrEmptyInput, frame.Channels())
	}
	return nil
}

// FindMarkers locates the red and green marker blobs and pairs them.
func (d *Decoder) FindMarkers(frame gocv.Mat) ([]ContourPair, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}

	blurred := BlurImage(frame, d.params.MaskBlurKernel)
	defer blurred.Close()

	hsv := ToHSV(blurred)
	defer hsv.Close()

	gray := ToGray(blurred)
	defer gray.Close()

	reds := d.markerInfos(hsv, gray, Red)
	greens := d.markerInfos(hsv, gray, Green)

	return MatchContours(reds, greens, d.params.Distance), nil
}

func (d *Decoder) markerInfos(hsv, gray gocv.Mat, kind ColorKind) []ContourInfo {
	mask := HSVMask(hsv, kind, d.params)
	defer mask.Close()

	masked := ApplyMask(gray, mask)
	defer masked.Close()

	return ExtractContourInfo(FindFilteredContours(masked, d.params))
}

// Decode locates every marker pair in frame, decodes the code between each
// pair and returns an annotated copy of the frame. A frame with no markers
// is not an error: the result simply has no detections.
func (d *Decoder) Decode(frame gocv.Mat) (*Result, error) {
	pairs, err := d.FindMarkers(frame)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Annotated: frame.Clone(),
		Pairs:     pairs,
	}

	for _, pair := range pairs {
		region, ok := cutPair(pair, frame)
		if !ok {
			// Matched but not rectifiable; outline it so the viewer shows why
			gocv.Rectangle(&result.Annotated, pair.Bounds(), colorutil.Red, 1)
			continue
		}

		code := DecodeCell(region.Crop, d.params)
		region.Crop.Close()

		det := Detection{
			Pair:   region.Pair,
			Bounds: region.Bounds,
			Angle:  region.Angle,
			Code:   code,
		}
		result.Detections = append(result.Detections, det)
		annotate(&result.Annotated, det.Bounds, det.Code)
	}
	return result, nil
}

// DecodeImage is Decode for a Go image.
func (d *Decoder) DecodeImage(img image.Image) (*Result, error) {
	mat, err := ImageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return d.Decode(mat)
}

// Masks returns the frame restricted to the red and to the green mask.
func (d *Decoder) Masks(frame gocv.Mat) (red, green gocv.Mat, err error) {
	if err := checkFrame(frame); err != nil {
		return gocv.Mat{}, gocv.Mat{}, err
	}
	return d.maskedView(frame, Red), d.maskedView(frame, Green), nil
}

func (d *Decoder) maskedView(frame gocv.Mat, kind ColorKind) gocv.Mat {
	mask := ColorMask(frame, kind, d.params)
	defer mask.Close()
	return ApplyMask(frame, mask)
}

// Render produces the image a viewer shows for mode. The returned codes are
// only populated in ViewDecoded.
func (d *Decoder) Render(frame gocv.Mat, mode ViewMode) (gocv.Mat, []string, error) {
	if err := checkFrame(frame); err != nil {
		return gocv.Mat{}, nil, err
	}

	switch mode {
	case ViewDecoded:
		result, err := d.Decode(frame)
		if err != nil {
			return gocv.Mat{}, nil, err
		}
		return result.Annotated, result.Codes(), nil
	case ViewRedMask:
		return d.maskedView(frame, Red), nil, nil
	case ViewGreenMask:
		return d.maskedView(frame, Green), nil, nil
	default:
		return frame.Clone(), nil, nil
	}
}

// annotate draws a pair's box and its code just above it.
func annotate(img *gocv.Mat, bounds image.Rectangle, code string) {
	gocv.Rectangle(img, bounds, colorutil.Green, 2)

	labelPos := image.Point{X: bounds.Min.X, Y: bounds.Min.Y - 10}
	if labelPos.Y < 20 {
		labelPos.Y = bounds.Max.Y + 25
	}
	gocv.PutText(img, code, labelPos, gocv.FontHersheySimplex, 1.0, colorutil.Green, 2)
}

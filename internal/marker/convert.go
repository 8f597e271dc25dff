package marker

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ImageToMat converts a Go image.Image to a BGR OpenCV Mat.
func ImageToMat(srcImg image.Image) (gocv.Mat, error) {
	bounds := srcImg.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return gocv.NewMat(), fmt.Errorf("%w: image is %dx%d", ErrEmptyInput, w, h)
	}

	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := srcImg.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// Convert from 16-bit to 8-bit and BGR order for OpenCV
			mat.SetUCharAt(y, x*3+0, uint8(b>>8))
			mat.SetUCharAt(y, x*3+1, uint8(g>>8))
			mat.SetUCharAt(y, x*3+2, uint8(r>>8))
		}
	}

	return mat, nil
}

// MatToImage converts a BGR or grayscale Mat to an RGBA image for display.
func MatToImage(m gocv.Mat) (*image.RGBA, error) {
	if m.Empty() {
		return nil, fmt.Errorf("%w: empty mat", ErrEmptyInput)
	}

	rows, cols := m.Rows(), m.Cols()
	out := image.NewRGBA(image.Rect(0, 0, cols, rows))

	switch m.Channels() {
	case 1:
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v := m.GetUCharAt(y, x)
				i := out.PixOffset(x, y)
				out.Pix[i+0] = v
				out.Pix[i+1] = v
				out.Pix[i+2] = v
				out.Pix[i+3] = 255
			}
		}
	case 3:
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				i := out.PixOffset(x, y)
				out.Pix[i+0] = m.GetUCharAt(y, x*3+2)
				out.Pix[i+1] = m.GetUCharAt(y, x*3+1)
				out.Pix[i+2] = m.GetUCharAt(y, x*3+0)
				out.Pix[i+3] = 255
			}
		}
	default:
		return nil, fmt.Errorf("unsupported channel count %d", m.Channels())
	}
	return out, nil
}

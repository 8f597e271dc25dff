package marker

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDecodeRejectsBadFrames(t *testing.T) {
	d := NewDecoder(DefaultParams())

	empty := gocv.NewMat()
	defer empty.Close()
	_, err := d.Decode(empty)
	assert.ErrorIs(t, err, ErrEmptyInput)

	gray := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8U)
	defer gray.Close()
	_, err = d.Decode(gray)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = d.Masks(gray)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, _, err = d.Render(empty, ViewNormal)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestDecodeNoMarkers(t *testing.T) {
	d := NewDecoder(DefaultParams())

	frame := whiteCanvas(120, 160)
	defer frame.Close()

	result, err := d.Decode(frame)
	require.NoError(t, err)
	defer result.Close()

	assert.Empty(t, result.Pairs)
	assert.Empty(t, result.Detections)
	assert.Empty(t, result.Codes())
	assert.Equal(t, frame.Rows(), result.Annotated.Rows())
	assert.Equal(t, frame.Cols(), result.Annotated.Cols())
}

func TestDecodeSinglePair(t *testing.T) {
	d := NewDecoder(DefaultParams())

	frame := markerCanvas()
	defer frame.Close()

	result, err := d.Decode(frame)
	require.NoError(t, err)
	defer result.Close()

	require.Len(t, result.Pairs, 1)
	require.Len(t, result.Detections, 1)

	det := result.Detections[0]
	assert.True(t, ValidCode(det.Code), "code %q", det.Code)
	assert.InDelta(t, 0, det.Angle, 2)
	assert.Less(t, det.Pair.Red.Center.X, det.Pair.Green.Center.X)
	assert.InDelta(t, 150, det.Pair.Red.Center.Distance(det.Pair.Green.Center), 3)
}

func TestDecodePerimeterWindowMissesWidePair(t *testing.T) {
	// 150 px apart is outside perimeter/3.5..perimeter/2.5 for a 45 px marker
	d := NewDecoder(DefaultParams().WithDistance(PerimeterWindow(3.5, 2.5)))

	frame := markerCanvas()
	defer frame.Close()

	pairs, err := d.FindMarkers(frame)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestDecodeIsRepeatable(t *testing.T) {
	d := NewDecoder(DefaultParams())

	frame := markerCanvas()
	defer frame.Close()
	before := frame.Clone()
	defer before.Close()

	first, err := d.Decode(frame)
	require.NoError(t, err)
	defer first.Close()

	second, err := d.Decode(frame)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.Codes(), second.Codes())
	assert.Equal(t, first.Pairs, second.Pairs)

	// Input frame is never drawn on
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(frame, before, &diff)
	gray := ToGray(diff)
	defer gray.Close()
	assert.Equal(t, 0, gocv.CountNonZero(gray))
}

func TestDecodeImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(80, 78, 126, 124), image.NewUniform(color.RGBA{R: 255, A: 255}), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(230, 78, 276, 124), image.NewUniform(color.RGBA{G: 255, A: 255}), image.Point{}, draw.Src)

	result, err := NewDecoder(DefaultParams()).DecodeImage(img)
	require.NoError(t, err)
	defer result.Close()

	assert.Len(t, result.Detections, 1)

	_, err = NewDecoder(DefaultParams()).DecodeImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRenderModes(t *testing.T) {
	d := NewDecoder(DefaultParams())

	frame := markerCanvas()
	defer frame.Close()

	redCenter := image.Point{X: 102, Y: 100}
	greenCenter := image.Point{X: 252, Y: 100}

	normal, codes, err := d.Render(frame, ViewNormal)
	require.NoError(t, err)
	defer normal.Close()
	assert.Nil(t, codes)
	assert.Equal(t, frame.GetUCharAt(10, 10), normal.GetUCharAt(10, 10))

	decoded, codes, err := d.Render(frame, ViewDecoded)
	require.NoError(t, err)
	defer decoded.Close()
	assert.Len(t, codes, 1)

	red, _, err := d.Render(frame, ViewRedMask)
	require.NoError(t, err)
	defer red.Close()
	assert.Equal(t, uint8(255), red.GetUCharAt(redCenter.Y, redCenter.X*3+2))
	assert.Equal(t, uint8(0), red.GetUCharAt(greenCenter.Y, greenCenter.X*3+1))
	assert.Equal(t, uint8(0), red.GetUCharAt(10, 10*3))

	green, _, err := d.Render(frame, ViewGreenMask)
	require.NoError(t, err)
	defer green.Close()
	assert.Equal(t, uint8(255), green.GetUCharAt(greenCenter.Y, greenCenter.X*3+1))
	assert.Equal(t, uint8(0), green.GetUCharAt(redCenter.Y, redCenter.X*3+2))
}

func TestMasks(t *testing.T) {
	d := NewDecoder(DefaultParams())

	frame := markerCanvas()
	defer frame.Close()

	red, green, err := d.Masks(frame)
	require.NoError(t, err)
	defer red.Close()
	defer green.Close()

	assert.Equal(t, 3, red.Channels())
	redGray := ToGray(red)
	defer redGray.Close()
	greenGray := ToGray(green)
	defer greenGray.Close()
	assert.Greater(t, gocv.CountNonZero(redGray), 45*45/2)
	assert.Greater(t, gocv.CountNonZero(greenGray), 45*45/2)
}

func TestViewModeNames(t *testing.T) {
	for _, m := range ViewModes() {
		got, ok := ParseViewMode(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, got)
	}
	_, ok := ParseViewMode("Infrared")
	assert.False(t, ok)
}

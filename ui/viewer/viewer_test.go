package viewer

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"marker-reader/internal/capture"
	"marker-reader/internal/config"
	"marker-reader/internal/marker"
	"marker-reader/pkg/colorutil"
	"marker-reader/ui/prefs"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newTestViewer(t *testing.T) *Viewer {
	t.Helper()
	a := test.NewApp()
	t.Cleanup(a.Quit)

	p := prefs.LoadFrom(filepath.Join(t.TempDir(), "preferences.json"))
	return New(a, config.Default(), p)
}

func markerFrame() gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 200, 400, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, image.Rect(80, 78, 125, 123), colorutil.Red, -1)
	gocv.Rectangle(&img, image.Rect(230, 78, 275, 123), colorutil.Green, -1)
	return img
}

func TestViewerDefaultsToDecoded(t *testing.T) {
	v := newTestViewer(t)
	assert.Equal(t, marker.ViewDecoded, v.Mode())
	assert.Equal(t, "0", v.sourceEntry.Text)
	assert.False(t, v.startBtn.Disabled())
	assert.True(t, v.stopBtn.Disabled())
}

func TestViewerShowFrameDecodes(t *testing.T) {
	v := newTestViewer(t)

	frame := markerFrame()
	defer frame.Close()

	require.NoError(t, v.ShowFrame(frame))
	require.Len(t, v.Codes(), 1)
	assert.Contains(t, v.codesLabel.Text, v.Codes()[0])

	shown, ok := v.display.Image.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, 400, shown.Bounds().Dx())
}

func TestViewerModeSwitch(t *testing.T) {
	v := newTestViewer(t)

	frame := markerFrame()
	defer frame.Close()
	require.NoError(t, v.ShowFrame(frame))
	codes := v.Codes()

	v.SetMode(marker.ViewRedMask)
	assert.Equal(t, marker.ViewRedMask, v.Mode())
	assert.Equal(t, int(marker.ViewRedMask), v.prefs.Int(prefs.KeyViewMode, -1))

	require.NoError(t, v.ShowFrame(frame))
	shown := v.display.Image.(*image.RGBA)
	// Background is masked out
	assert.Equal(t, uint8(0), shown.RGBAAt(10, 10).R)
	// Codes from the last decoded frame are kept
	assert.Equal(t, codes, v.Codes())
}

func TestViewerShowFrameRejectsEmpty(t *testing.T) {
	v := newTestViewer(t)

	empty := gocv.NewMat()
	defer empty.Close()
	assert.ErrorIs(t, v.ShowFrame(empty), marker.ErrEmptyInput)
}

func TestViewerSaveCurrent(t *testing.T) {
	v := newTestViewer(t)
	path := filepath.Join(t.TempDir(), "shot.jpg")

	assert.Error(t, v.SaveCurrent(path))

	frame := markerFrame()
	defer frame.Close()
	require.NoError(t, v.ShowFrame(frame))
	require.NoError(t, v.SaveCurrent(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestViewerStartFailure(t *testing.T) {
	v := newTestViewer(t)
	err := v.Start("/nonexistent/stream.mp4")
	assert.Error(t, err)
	v.Stop()
}

func TestRefreshLoopReleasesStoppedCamera(t *testing.T) {
	v := newTestViewer(t)
	cam := capture.NewCamera("0", 0)
	defer cam.Close()

	ctx, cancel := context.WithCancel(context.Background())
	v.mu.Lock()
	v.camera = cam
	v.cancel = cancel
	v.mu.Unlock()

	done := make(chan struct{})
	go func() {
		v.refreshLoop(ctx, cancel, cam)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop kept running without a camera")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Nil(t, v.cancel)
}

func TestFormatCodes(t *testing.T) {
	assert.Equal(t, "No markers", formatCodes(nil))
	assert.Equal(t, "Codes: 0120  X000", formatCodes([]string{"0120", "X000"}))
}

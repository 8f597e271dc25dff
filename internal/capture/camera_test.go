package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fakeReader delivers a fixed number of solid frames, then fails.
type fakeReader struct {
	mu     sync.Mutex
	left   int
	closed bool
}

func (r *fakeReader) Read(m *gocv.Mat) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.left <= 0 {
		return false
	}
	r.left--
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 100, 150, 0), 8, 8, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(m)
	return true
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in       string
		id       int
		isDevice bool
	}{
		{"0", 0, true},
		{"2", 2, true},
		{"-1", 0, false},
		{"rtsp://10.0.0.5/stream", 0, false},
		{"video.mp4", 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseSource(tt.in)
		assert.Equal(t, tt.isDevice, ok, tt.in)
		assert.Equal(t, tt.id, id, tt.in)
	}
}

func TestCameraPublishesFrames(t *testing.T) {
	cam := NewCamera("fake", time.Millisecond)
	defer cam.Close()

	rd := &fakeReader{left: 1000}
	require.NoError(t, cam.start(context.Background(), rd))
	assert.True(t, cam.Running())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, err := cam.Next(ctx)
	require.NoError(t, err)
	defer f.Close()

	assert.GreaterOrEqual(t, f.Seq, uint64(1))
	assert.Equal(t, 8, f.Mat.Rows())
	assert.Equal(t, uint8(150), f.Mat.GetUCharAt(0, 2))

	cam.Stop()
	assert.False(t, cam.Running())
	assert.True(t, rd.isClosed())
	assert.NoError(t, cam.Err())

	// Last frame survives Stop
	snap, ok := cam.Mailbox().Snapshot()
	require.True(t, ok)
	snap.Close()
}

func TestCameraStopsWhenSourceDries(t *testing.T) {
	cam := NewCamera("fake", time.Millisecond)
	defer cam.Close()

	rd := &fakeReader{left: 2}
	require.NoError(t, cam.start(context.Background(), rd))

	require.Eventually(t, func() bool { return !cam.Running() }, time.Second, 5*time.Millisecond)
	assert.Error(t, cam.Err())
	assert.True(t, rd.isClosed())
	assert.Equal(t, uint64(2), cam.Mailbox().Stats().Published)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// At most one frame is still pending, then the consumer is released
	var err error
	for i := 0; i < 3; i++ {
		var f *Frame
		f, err = cam.Next(ctx)
		if err != nil {
			break
		}
		f.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestCaptureLoopCancelsItsContext(t *testing.T) {
	cam := NewCamera("fake", time.Millisecond)
	defer cam.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	cam.captureLoop(ctx, cancel, &fakeReader{}, done)

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	_, open := <-done
	assert.False(t, open)
}

func TestCameraRestartClearsFailure(t *testing.T) {
	cam := NewCamera("fake", time.Millisecond)
	defer cam.Close()

	require.NoError(t, cam.start(context.Background(), &fakeReader{}))
	require.Eventually(t, func() bool { return !cam.Running() }, time.Second, 5*time.Millisecond)

	require.NoError(t, cam.start(context.Background(), &fakeReader{left: 1000}))
	defer cam.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := cam.Next(ctx)
	require.NoError(t, err)
	f.Close()
}

func TestCameraStartTwiceIsNoop(t *testing.T) {
	cam := NewCamera("fake", time.Millisecond)
	defer cam.Close()

	first := &fakeReader{left: 1000}
	second := &fakeReader{left: 1000}
	require.NoError(t, cam.start(context.Background(), first))
	require.NoError(t, cam.start(context.Background(), second))

	assert.True(t, second.isClosed())
	assert.False(t, first.isClosed())
}

func TestCameraStopWithoutStart(t *testing.T) {
	cam := NewCamera("0", 0)
	cam.Stop()
	assert.NoError(t, cam.Close())
}

func TestCameraOpenFailure(t *testing.T) {
	cam := NewCamera("/nonexistent/stream.mp4", 0)
	defer cam.Close()

	err := cam.Start(context.Background())
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, cam.Running())
}

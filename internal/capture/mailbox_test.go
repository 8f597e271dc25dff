package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testFrame(seq uint64, value float64) *Frame {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), 4, 4, gocv.MatTypeCV8UC3)
	return &Frame{Mat: mat, Seq: seq, Captured: time.Now()}
}

func TestMailboxNewestWins(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	m.Publish(testFrame(1, 10))
	m.Publish(testFrame(2, 20))
	m.Publish(testFrame(3, 30))

	f, err := m.Next(context.Background())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, uint64(3), f.Seq)
	assert.Equal(t, uint8(30), f.Mat.GetUCharAt(0, 0))

	stats := m.Stats()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(1), stats.Consumed)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, uint64(3), stats.LastSeq)
}

func TestMailboxNextBlocksUntilPublish(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	got := make(chan uint64, 1)
	go func() {
		f, err := m.Next(context.Background())
		if err != nil {
			got <- 0
			return
		}
		got <- f.Seq
		f.Close()
	}()

	select {
	case <-got:
		t.Fatal("Next returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	m.Publish(testFrame(7, 1))

	select {
	case seq := <-got:
		assert.Equal(t, uint64(7), seq)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after Publish")
	}
}

func TestMailboxNextHonoursContext(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailboxCloseWakesConsumer(t *testing.T) {
	m := NewMailbox()

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the consumer")
	}

	// Publishing after close must not panic or buffer
	m.Publish(testFrame(9, 1))
	assert.Equal(t, uint64(0), m.Stats().Published)
}

func TestMailboxSnapshotDoesNotConsume(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	_, ok := m.Snapshot()
	assert.False(t, ok)

	m.Publish(testFrame(1, 42))

	snap, ok := m.Snapshot()
	require.True(t, ok)
	defer snap.Close()
	assert.Equal(t, uint8(42), snap.GetUCharAt(0, 0))

	f, err := m.Next(context.Background())
	require.NoError(t, err)
	f.Close()

	// Still available after the frame itself was consumed and closed
	snap2, ok := m.Snapshot()
	require.True(t, ok)
	defer snap2.Close()
	assert.Equal(t, uint8(42), snap2.GetUCharAt(0, 0))
}

func TestMailboxFailWakesConsumer(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cause := errors.New("stream ended")
	m.Fail(cause)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("Fail did not wake the consumer")
	}
}

func TestMailboxFailDrainsPendingFrame(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	m.Publish(testFrame(1, 10))
	m.Fail(errors.New("stream ended"))

	f, err := m.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
	f.Close()

	_, err = m.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	// A new frame clears the failure
	m.Publish(testFrame(2, 20))
	f, err = m.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)
	f.Close()

	m.Fail(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

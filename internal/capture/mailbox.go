// Package capture supplies frames to the decoder: cameras and stream URLs
// through gocv.VideoCapture, and still images from disk. Producers hand
// frames over through a single-slot Mailbox where the newest frame wins.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrClosed is returned by sources and mailboxes after Close.
var ErrClosed = errors.New("capture: closed")

// Frame is one captured image. The Mat is owned by whoever holds the Frame
// and must not be modified after it has been published.
type Frame struct {
	Mat      gocv.Mat
	Seq      uint64
	Captured time.Time
}

// Close releases the frame's pixels.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}

// MailboxStats is a snapshot of a mailbox's counters.
type MailboxStats struct {
	Published uint64 // Frames handed to Publish
	Consumed  uint64 // Frames taken by Next
	Dropped   uint64 // Frames overwritten before anyone took them
	LastSeq   uint64 // Sequence number of the newest published frame
}

// Mailbox is a single-slot frame buffer with overwrite-on-publish
// semantics. Publishing never blocks; a slow consumer only ever sees the
// most recent frame.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame // nil = consumed
	latest gocv.Mat
	closed bool
	err    error // producer failure, reported once the slot is drained
	stats  MailboxStats
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{latest: gocv.NewMat()}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores frame, replacing (and closing) any unconsumed one.
// The mailbox takes ownership of frame. Publishing to a closed mailbox
// closes the frame and returns.
func (m *Mailbox) Publish(frame *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		frame.Close()
		return
	}

	m.stats.Published++
	m.stats.LastSeq = frame.Seq

	if m.frame != nil {
		m.stats.Dropped++
		m.frame.Close()
	}
	m.frame = frame
	m.err = nil

	// Keep a private copy so Snapshot works after the frame is consumed
	frame.Mat.CopyTo(&m.latest)

	m.cond.Signal()
}

// Next blocks until a frame is available, ctx is done, the producer has
// failed or the mailbox is closed. A pending frame is still handed out
// after a failure; the following call returns the failure wrapped in
// ErrClosed. The caller owns the returned frame.
func (m *Mailbox) Next(ctx context.Context) (*Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed && m.err == nil && ctx.Err() == nil {
		m.cond.Wait()
	}

	if m.closed {
		return nil, ErrClosed
	}
	if m.frame == nil {
		if m.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrClosed, m.err)
		}
		return nil, ctx.Err()
	}

	frame := m.frame
	m.frame = nil
	m.stats.Consumed++
	return frame, nil
}

// Fail records that the producer stopped and wakes waiting consumers.
// Once the pending frame is taken, Next returns err wrapped in ErrClosed
// until a new frame is published. A nil err clears an earlier failure.
func (m *Mailbox) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
	if err != nil {
		m.cond.Broadcast()
	}
}

// Snapshot returns a copy of the most recently published frame without
// consuming it, or false when nothing has been published yet.
func (m *Mailbox) Snapshot() (gocv.Mat, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.latest.Empty() {
		return gocv.NewMat(), false
	}
	return m.latest.Clone(), true
}

// Stats returns the mailbox counters.
func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close wakes any waiting consumer and releases the buffered frames.
// Idempotent.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.frame != nil {
		m.frame.Close()
		m.frame = nil
	}
	m.latest.Close()
	m.cond.Broadcast()
	return nil
}

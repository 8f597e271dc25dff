package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrOpen is returned when a capture device or stream cannot be opened.
var ErrOpen = errors.New("capture: cannot open source")

// DefaultPollInterval is how often the capture loop grabs a frame.
const DefaultPollInterval = 20 * time.Millisecond

// reader is the subset of gocv.VideoCapture the capture loop needs.
type reader interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// ParseSource interprets a source string: a plain integer selects a local
// device by index, anything else is passed to OpenCV as a file or URL.
func ParseSource(source string) (deviceID int, isDevice bool) {
	id, err := strconv.Atoi(source)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// openReader opens a device index or a stream URL.
func openReader(source string) (reader, error) {
	var (
		vc  *gocv.VideoCapture
		err error
	)
	if id, ok := ParseSource(source); ok {
		vc, err = gocv.OpenVideoCapture(id)
	} else {
		vc, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrOpen, source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w %q", ErrOpen, source)
	}
	return vc, nil
}

// Camera grabs frames from a device or stream on a background goroutine
// and publishes them to a Mailbox.
type Camera struct {
	source   string
	interval time.Duration
	mailbox  *Mailbox

	mu      sync.Mutex
	rd      reader
	cancel  context.CancelFunc
	done    chan struct{}
	seq     uint64
	lastErr error
}

// NewCamera creates a camera for source. Nothing is opened until Start.
func NewCamera(source string, interval time.Duration) *Camera {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Camera{
		source:   source,
		interval: interval,
		mailbox:  NewMailbox(),
	}
}

// Source returns the device index or URL the camera reads from.
func (c *Camera) Source() string {
	return c.source
}

// Mailbox returns the mailbox frames are published to.
func (c *Camera) Mailbox() *Mailbox {
	return c.mailbox
}

// Running reports whether the capture loop is active.
func (c *Camera) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Err returns the error that stopped the last capture loop, if any.
func (c *Camera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Start opens the source and begins capturing. Starting a running camera
// is a no-op.
func (c *Camera) Start(ctx context.Context) error {
	rd, err := openReader(c.source)
	if err != nil {
		return err
	}
	return c.start(ctx, rd)
}

func (c *Camera) start(ctx context.Context, rd reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		rd.Close()
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.rd = rd
	c.cancel = cancel
	c.done = make(chan struct{})
	c.lastErr = nil
	c.mailbox.Fail(nil)

	go c.captureLoop(loopCtx, cancel, rd, c.done)
	log.Printf("capture: started %q every %v", c.source, c.interval)
	return nil
}

// Stop ends the capture loop and releases the device. The last published
// frame stays available through Mailbox().Snapshot.
func (c *Camera) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops the camera and closes its mailbox.
func (c *Camera) Close() error {
	c.Stop()
	return c.mailbox.Close()
}

// Next implements Source by waiting for the next published frame.
func (c *Camera) Next(ctx context.Context) (*Frame, error) {
	return c.mailbox.Next(ctx)
}

// captureLoop reads a frame every interval until ctx is cancelled or the
// source stops delivering. A source that stops fails the mailbox so
// consumers blocked in Next return.
func (c *Camera) captureLoop(ctx context.Context, cancel context.CancelFunc, rd reader, done chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var loopErr error
	defer func() {
		cancel()
		rd.Close()
		if loopErr != nil {
			c.mailbox.Fail(loopErr)
		}
		c.mu.Lock()
		c.rd = nil
		c.cancel = nil
		c.done = nil
		c.lastErr = loopErr
		c.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mat := gocv.NewMat()
			if !rd.Read(&mat) || mat.Empty() {
				mat.Close()
				loopErr = fmt.Errorf("capture: %q stopped delivering frames", c.source)
				log.Printf("%v", loopErr)
				return
			}
			c.seq++
			c.mailbox.Publish(&Frame{Mat: mat, Seq: c.seq, Captured: time.Now()})
		}
	}
}

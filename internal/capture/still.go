package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"marker-reader/internal/marker"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Source is anything that yields frames one at a time.
type Source interface {
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// LoadImage reads an image file, applying any EXIF orientation so phone
// photos come out upright.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return img, nil
}

// LoadMat reads an image file into a BGR Mat.
func LoadMat(path string) (gocv.Mat, error) {
	img, err := LoadImage(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	mat, err := marker.ImageToMat(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%s: %w", path, err)
	}
	return mat, nil
}

// FileSource yields still images from a list of paths, in order.
type FileSource struct {
	mu     sync.Mutex
	paths  []string
	next   int
	closed bool
}

// NewFileSource creates a source over paths.
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{paths: append([]string(nil), paths...)}
}

// Len returns the number of paths the source was created with.
func (s *FileSource) Len() int {
	return len(s.paths)
}

// Path returns the path of frame seq as returned by Next.
func (s *FileSource) Path(seq uint64) string {
	if seq == 0 || seq > uint64(len(s.paths)) {
		return ""
	}
	return s.paths[seq-1]
}

// Next loads the next file. It returns ErrClosed once all
// paths have been consumed.
func (s *FileSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed || s.next >= len(s.paths) {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	path := s.paths[s.next]
	s.next++
	seq := uint64(s.next)
	s.mu.Unlock()

	mat, err := LoadMat(path)
	if err != nil {
		return nil, err
	}
	return &Frame{Mat: mat, Seq: seq, Captured: time.Now()}, nil
}

// Close stops the source.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Package snapshot writes frames and annotated results to disk.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ErrEmpty is returned when asked to save a frame with no pixels.
var ErrEmpty = errors.New("snapshot: empty frame")

// SaveJPEG encodes mat as a JPEG at the given quality (1-100).
func SaveJPEG(path string, mat gocv.Mat, quality int) error {
	if mat.Empty() {
		return ErrEmpty
	}
	if quality < 1 || quality > 100 {
		quality = 90
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if !gocv.IMWriteWithParams(path, mat, []int{gocv.IMWriteJpegQuality, quality}) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}

// SaveImage writes a Go image, choosing the format from the extension.
func SaveImage(path string, img image.Image, quality int) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmpty
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Name builds a timestamped file name such as "marker-20060102-150405.000.jpg".
func Name(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s.jpg", prefix, t.Format("20060102-150405.000"))
}

// AnnotatedPath maps an input image path to its annotated output in dir:
// photos/a.png -> dir/a_decoded.jpg.
func AnnotatedPath(dir, input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+"_decoded.jpg")
}

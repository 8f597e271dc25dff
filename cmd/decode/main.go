// Command decode reads marker codes from still images.
//
//	decode [-config reader.yaml] [-out dir] [-masks] [-workers N] image...
//
// One line is printed per image, in argument order:
//
//	photos/a.jpg: 0120 X004
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"marker-reader/internal/capture"
	"marker-reader/internal/config"
	"marker-reader/internal/marker"
	"marker-reader/internal/snapshot"
	"marker-reader/internal/version"
	"marker-reader/pkg/colorutil"

	"golang.org/x/sync/errgroup"
)

// fileResult is what decoding one input produced.
type fileResult struct {
	Path  string
	Codes []string
	Err   error
}

// options carries the flags that affect per-file work.
type options struct {
	OutDir    string
	WithMasks bool
	Quality   int
}

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults built in)")
	outDir := flag.String("out", "", "Write annotated JPEGs to this directory")
	withMasks := flag.Bool("masks", false, "With -out, also write the red and green mask views")
	workers := flag.Int("workers", runtime.NumCPU(), "Images decoded in parallel")
	probe := flag.String("probe", "", "Print the HSV value at x,y of each image instead of decoding")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("decode"))
		return
	}
	if flag.NArg() == 0 {
		fmt.Println("Usage: decode [-config file] [-out dir] [-masks] [-workers N] [-probe x,y] image...")
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config: %v\n", err)
		os.Exit(1)
	}

	if *probe != "" {
		pt, err := parsePoint(*probe)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Probe: %v\n", err)
			os.Exit(1)
		}
		failed := false
		for _, path := range flag.Args() {
			if err := probeFile(os.Stdout, path, pt, cfg.Detection); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	opts := options{OutDir: *outDir, WithMasks: *withMasks, Quality: cfg.Output.JPEGQuality}
	decoder := marker.NewDecoder(cfg.Detection)

	results := decodeAll(context.Background(), decoder, flag.Args(), opts, *workers)

	failed := false
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Path, r.Err)
			failed = true
			continue
		}
		fmt.Println(formatResult(r))
	}
	if failed {
		os.Exit(1)
	}
}

// decodeAll decodes every path with at most workers images in flight and
// returns the results in input order. Per-file failures are reported in
// the result, they do not stop the batch.
func decodeAll(ctx context.Context, decoder *marker.Decoder, paths []string, opts options, workers int) []fileResult {
	if workers < 1 {
		workers = 1
	}
	results := make([]fileResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = fileResult{Path: path, Err: err}
				return nil
			}
			codes, err := decodeFile(decoder, path, opts)
			results[i] = fileResult{Path: path, Codes: codes, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// decodeFile decodes one image and writes the requested outputs.
func decodeFile(decoder *marker.Decoder, path string, opts options) ([]string, error) {
	frame, err := capture.LoadMat(path)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	result, err := decoder.Decode(frame)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	if opts.OutDir == "" {
		return result.Codes(), nil
	}

	out := snapshot.AnnotatedPath(opts.OutDir, path)
	if err := snapshot.SaveJPEG(out, result.Annotated, opts.Quality); err != nil {
		return nil, err
	}

	if opts.WithMasks {
		red, green, err := decoder.Masks(frame)
		if err != nil {
			return nil, err
		}
		defer red.Close()
		defer green.Close()

		stem := strings.TrimSuffix(out, "_decoded.jpg")
		if err := snapshot.SaveJPEG(stem+"_red.jpg", red, opts.Quality); err != nil {
			return nil, err
		}
		if err := snapshot.SaveJPEG(stem+"_green.jpg", green, opts.Quality); err != nil {
			return nil, err
		}
	}
	return result.Codes(), nil
}

func formatResult(r fileResult) string {
	if len(r.Codes) == 0 {
		return fmt.Sprintf("%s: no markers", r.Path)
	}
	return fmt.Sprintf("%s: %s", r.Path, strings.Join(r.Codes, " "))
}

// parsePoint reads "x,y".
func parsePoint(s string) (image.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return image.Point{}, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return image.Point{}, fmt.Errorf("bad x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return image.Point{}, fmt.Errorf("bad y in %q: %w", s, err)
	}
	return image.Point{X: x, Y: y}, nil
}

// probeFile prints the color at pt and which marker ranges accept it,
// for tuning the HSV ranges against real photos.
func probeFile(w io.Writer, path string, pt image.Point, params marker.DetectionParams) error {
	img, err := capture.LoadImage(path)
	if err != nil {
		return err
	}
	if !pt.In(img.Bounds()) {
		return fmt.Errorf("point %v outside image %v", pt, img.Bounds())
	}

	r, g, b, _ := img.At(pt.X, pt.Y).RGBA()
	h, s, v := colorutil.RGBToHSV(float64(r>>8), float64(g>>8), float64(b>>8))

	fmt.Fprintf(w, "%s @ %d,%d: RGB(%d,%d,%d) HSV(%.0f,%.0f,%.0f) red=%v green=%v\n",
		filepath.Base(path), pt.X, pt.Y, r>>8, g>>8, b>>8, h, s, v,
		inAny(params.Ranges(marker.Red), h, s, v), inAny(params.Ranges(marker.Green), h, s, v))
	return nil
}

func inAny(ranges []marker.HSVRange, h, s, v float64) bool {
	for _, r := range ranges {
		if r.Contains(h, s, v) {
			return true
		}
	}
	return false
}

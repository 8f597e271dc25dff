// Command livedecode decodes markers from a camera or stream without a UI,
// logging every time the set of visible codes changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"marker-reader/internal/capture"
	"marker-reader/internal/config"
	"marker-reader/internal/marker"
	"marker-reader/internal/snapshot"
	"marker-reader/internal/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults built in)")
	source := flag.String("source", "", "Device index or stream URL (overrides config)")
	replay := flag.String("replay", "", "Comma-separated image files to decode instead of a camera")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	saveDir := flag.String("save", "", "Write an annotated JPEG here whenever the codes change")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("livedecode"))
		return
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *source != "" {
		cfg.Capture.Source = *source
	}
	if *saveDir != "" {
		cfg.Output.Dir = *saveDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var src capture.Source
	if *replay != "" {
		src = capture.NewFileSource(strings.Split(*replay, ",")...)
	} else {
		cam := capture.NewCamera(cfg.Capture.Source, cfg.Capture.PollInterval)
		if err := cam.Start(ctx); err != nil {
			log.Fatalf("Capture: %v", err)
		}
		src = cam
	}
	defer src.Close()

	log.Printf("%s decoding from %s", version.String("livedecode"), describe(*replay, cfg.Capture.Source))

	runner := &runner{
		decoder: marker.NewDecoder(cfg.Detection),
		saveDir: *saveDir,
		quality: cfg.Output.JPEGQuality,
		report: func(frame *capture.Frame, codes []string) {
			log.Printf("frame %d: %s", frame.Seq, formatCodes(codes))
		},
	}

	stats, err := runner.run(ctx, src)
	log.Printf("processed %d frames, %d code changes", stats.Frames, stats.Changes)
	if err != nil {
		log.Fatalf("Stopped: %v", err)
	}
}

func describe(replay, source string) string {
	if replay != "" {
		return "replay of " + replay
	}
	if id, ok := capture.ParseSource(source); ok {
		return fmt.Sprintf("device %d", id)
	}
	return source
}

// runStats counts what a run did.
type runStats struct {
	Frames  int
	Changes int
}

// runner pulls frames from a source and decodes each one.
type runner struct {
	decoder *marker.Decoder
	saveDir string
	quality int
	report  func(frame *capture.Frame, codes []string)
}

// run decodes frames until the source is exhausted or ctx ends. report is
// called for the first frame and then only when the codes change.
func (r *runner) run(ctx context.Context, src capture.Source) (runStats, error) {
	var (
		stats runStats
		last  []string
	)

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, capture.ErrClosed) || errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded) {
				return stats, nil
			}
			return stats, err
		}

		changed, codes, err := r.handle(frame, last, stats.Frames == 0)
		frame.Close()
		if err != nil {
			return stats, err
		}

		stats.Frames++
		if changed {
			stats.Changes++
			last = codes
		}
	}
}

// handle decodes one frame. It reports and optionally saves the frame when
// its codes differ from last, or when force is set.
func (r *runner) handle(frame *capture.Frame, last []string, force bool) (bool, []string, error) {
	result, err := r.decoder.Decode(frame.Mat)
	if err != nil {
		return false, nil, fmt.Errorf("frame %d: %w", frame.Seq, err)
	}
	defer result.Close()

	codes := result.Codes()
	if !force && slices.Equal(codes, last) {
		return false, codes, nil
	}

	if r.report != nil {
		r.report(frame, codes)
	}
	if r.saveDir != "" {
		path := filepath.Join(r.saveDir, snapshot.Name(fmt.Sprintf("frame%06d", frame.Seq), frame.Captured))
		if err := snapshot.SaveJPEG(path, result.Annotated, r.quality); err != nil {
			return true, codes, err
		}
	}
	return true, codes, nil
}

func formatCodes(codes []string) string {
	if len(codes) == 0 {
		return "no markers"
	}
	return strings.Join(codes, " ")
}

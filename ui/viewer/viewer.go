// Package viewer provides the live marker viewer window: a camera feed shown
// in one of the pipeline's view modes, with the decoded codes beneath it.
package viewer

import (
	"context"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"marker-reader/internal/capture"
	"marker-reader/internal/config"
	"marker-reader/internal/marker"
	"marker-reader/internal/snapshot"
	"marker-reader/internal/version"
	"marker-reader/ui/prefs"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"gocv.io/x/gocv"
)

// refreshInterval is how often the display pulls the newest frame.
const refreshInterval = 50 * time.Millisecond

// Viewer is the main application window.
type Viewer struct {
	fyne.Window
	app     fyne.App
	cfg     config.Config
	prefs   *prefs.Prefs
	decoder *marker.Decoder

	mu     sync.Mutex
	camera *capture.Camera
	mode   marker.ViewMode
	shown  *image.RGBA // Last rendered frame, what Save writes
	codes  []string
	cancel context.CancelFunc

	display     *fynecanvas.Image
	sourceEntry *widget.Entry
	startBtn    *widget.Button
	stopBtn     *widget.Button
	modeRadio   *widget.RadioGroup
	codesLabel  *widget.Label
	statusBar   *widget.Label
}

// New creates the viewer window. Capture does not start until the user
// presses Start.
func New(fyneApp fyne.App, cfg config.Config, p *prefs.Prefs) *Viewer {
	win := fyneApp.NewWindow("Marker Reader")

	v := &Viewer{
		Window:  win,
		app:     fyneApp,
		cfg:     cfg,
		prefs:   p,
		decoder: marker.NewDecoder(cfg.Detection),
		mode:    marker.ViewMode(p.Int(prefs.KeyViewMode, int(marker.ViewDecoded))),
	}

	v.setupUI()
	v.SetOnClosed(v.shutdown)
	v.Resize(fyne.NewSize(960, 720))
	return v
}

func (v *Viewer) setupUI() {
	v.display = fynecanvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 640, 480)))
	v.display.FillMode = fynecanvas.ImageFillContain
	v.display.SetMinSize(fyne.NewSize(640, 480))

	v.sourceEntry = widget.NewEntry()
	v.sourceEntry.SetPlaceHolder("Device index or stream URL")
	v.sourceEntry.SetText(v.prefs.String(prefs.KeySource, v.cfg.Capture.Source))

	v.startBtn = widget.NewButton("Start", v.onStart)
	v.stopBtn = widget.NewButton("Stop", v.onStop)
	v.stopBtn.Disable()

	var modeNames []string
	for _, m := range marker.ViewModes() {
		modeNames = append(modeNames, m.String())
	}
	v.modeRadio = widget.NewRadioGroup(modeNames, v.onModeChanged)
	v.modeRadio.Horizontal = true
	v.modeRadio.Required = true
	v.modeRadio.SetSelected(v.mode.String())

	saveBtn := widget.NewButton("Save", v.onSave)
	saveAsBtn := widget.NewButton("Save As...", v.onSaveAs)

	v.codesLabel = widget.NewLabelWithStyle("No markers", fyne.TextAlignCenter, fyne.TextStyle{Bold: true, Monospace: true})
	v.statusBar = widget.NewLabel(fmt.Sprintf("Marker Reader v%s", version.Version))

	toolbar := container.NewBorder(nil, nil,
		widget.NewLabel("Source:"),
		container.NewHBox(v.startBtn, v.stopBtn, saveBtn, saveAsBtn),
		v.sourceEntry,
	)

	bottom := container.NewVBox(
		v.modeRadio,
		v.codesLabel,
		container.NewPadded(v.statusBar),
	)

	v.SetContent(container.NewBorder(toolbar, bottom, nil, nil, v.display))
}

// Mode returns the current view mode.
func (v *Viewer) Mode() marker.ViewMode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// SetMode switches the view mode.
func (v *Viewer) SetMode(mode marker.ViewMode) {
	v.modeRadio.SetSelected(mode.String())
}

func (v *Viewer) onModeChanged(name string) {
	mode, ok := marker.ParseViewMode(name)
	if !ok {
		return
	}
	v.mu.Lock()
	v.mode = mode
	cam := v.camera
	v.mu.Unlock()
	v.prefs.SetInt(prefs.KeyViewMode, int(mode))

	// Re-render the last frame so a stopped view follows the mode too
	if cam != nil {
		if snap, ok := cam.Mailbox().Snapshot(); ok {
			defer snap.Close()
			if err := v.ShowFrame(snap); err != nil {
				log.Printf("viewer: %v", err)
			}
		}
	}
}

// Start opens source and begins capturing and displaying frames.
func (v *Viewer) Start(source string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cancel != nil {
		return nil
	}
	if v.camera != nil {
		v.camera.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cam := capture.NewCamera(source, v.cfg.Capture.PollInterval)
	if err := cam.Start(ctx); err != nil {
		cancel()
		return err
	}

	v.camera = cam
	v.cancel = cancel
	go v.refreshLoop(ctx, cancel, cam)

	v.prefs.SetString(prefs.KeySource, source)
	return nil
}

// Stop halts capture. The last frame stays on screen.
func (v *Viewer) Stop() {
	v.mu.Lock()
	cancel, cam := v.cancel, v.camera
	v.cancel = nil
	v.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	cam.Stop()
}

// Connect fills in source and starts capture as if Start had been pressed.
func (v *Viewer) Connect(source string) {
	v.sourceEntry.SetText(source)
	v.onStart()
}

func (v *Viewer) onStart() {
	source := strings.TrimSpace(v.sourceEntry.Text)
	if source == "" {
		source = v.cfg.Capture.Source
	}
	if err := v.Start(source); err != nil {
		dialog.ShowError(err, v.Window)
		v.updateStatus("Failed to open " + source)
		return
	}
	v.startBtn.Disable()
	v.stopBtn.Enable()
	v.updateStatus("Capturing from " + source)
}

func (v *Viewer) onStop() {
	v.Stop()
	v.startBtn.Enable()
	v.stopBtn.Disable()
	v.updateStatus("Stopped")
}

// refreshLoop redraws the newest frame until ctx is cancelled or the camera
// stops on its own. Frames that arrive between ticks are skipped.
func (v *Viewer) refreshLoop(ctx context.Context, cancel context.CancelFunc, cam *capture.Camera) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !cam.Running() {
				if err := cam.Err(); err != nil {
					v.updateStatus(err.Error())
				}
				v.startBtn.Enable()
				v.stopBtn.Disable()
				cancel()
				v.mu.Lock()
				if v.camera == cam {
					v.cancel = nil
				}
				v.mu.Unlock()
				return
			}

			seq := cam.Mailbox().Stats().LastSeq
			if seq == lastSeq {
				continue
			}
			lastSeq = seq

			snap, ok := cam.Mailbox().Snapshot()
			if !ok {
				continue
			}
			if err := v.ShowFrame(snap); err != nil {
				log.Printf("viewer: %v", err)
			}
			snap.Close()
		}
	}
}

// ShowFrame renders frame in the current mode and puts it on screen.
func (v *Viewer) ShowFrame(frame gocv.Mat) error {
	mode := v.Mode()

	rendered, codes, err := v.decoder.Render(frame, mode)
	if err != nil {
		return fmt.Errorf("render %s: %w", mode, err)
	}
	defer rendered.Close()

	img, err := marker.MatToImage(rendered)
	if err != nil {
		return fmt.Errorf("convert %s: %w", mode, err)
	}

	v.mu.Lock()
	v.shown = img
	if mode == marker.ViewDecoded {
		v.codes = codes
	}
	v.mu.Unlock()

	v.display.Image = img
	v.display.Refresh()

	if mode == marker.ViewDecoded {
		v.codesLabel.SetText(formatCodes(codes))
	}
	return nil
}

// Codes returns the codes decoded from the last frame shown in Decoded mode.
func (v *Viewer) Codes() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.codes...)
}

func formatCodes(codes []string) string {
	if len(codes) == 0 {
		return "No markers"
	}
	return "Codes: " + strings.Join(codes, "  ")
}

// SaveCurrent writes the frame on screen to path.
func (v *Viewer) SaveCurrent(path string) error {
	v.mu.Lock()
	img := v.shown
	v.mu.Unlock()

	if img == nil {
		return fmt.Errorf("nothing to save yet")
	}
	return snapshot.SaveImage(path, img, v.cfg.Output.JPEGQuality)
}

func (v *Viewer) saveDir() string {
	return v.prefs.String(prefs.KeySaveDir, v.cfg.Output.Dir)
}

func (v *Viewer) onSave() {
	path := filepath.Join(v.saveDir(), snapshot.Name("marker", time.Now()))
	if err := v.SaveCurrent(path); err != nil {
		dialog.ShowError(err, v.Window)
		return
	}
	v.updateStatus("Saved " + path)
}

func (v *Viewer) onSaveAs() {
	fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		path := writer.URI().Path()
		if filepath.Ext(path) == "" {
			path += ".jpg"
		}
		if err := v.SaveCurrent(path); err != nil {
			dialog.ShowError(err, v.Window)
			return
		}
		v.prefs.SetString(prefs.KeySaveDir, filepath.Dir(path))
		v.updateStatus("Saved " + path)
	}, v.Window)
	fd.SetFileName(snapshot.Name("marker", time.Now()))
	if loc, err := storage.ListerForURI(storage.NewFileURI(v.saveDir())); err == nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (v *Viewer) updateStatus(text string) {
	v.statusBar.SetText(text)
}

// shutdown stops capture and persists preferences when the window closes.
func (v *Viewer) shutdown() {
	v.Stop()
	v.mu.Lock()
	cam := v.camera
	v.camera = nil
	v.mu.Unlock()
	if cam != nil {
		cam.Close()
	}

	if v.prefs.Dirty() {
		if err := v.prefs.Save(); err != nil {
			log.Printf("viewer: failed to save preferences: %v", err)
		}
	}
}

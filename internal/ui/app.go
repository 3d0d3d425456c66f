// Package ui is the fyne preview window. It owns the camera coordinator:
// its control loop drains open completions and repaints the preview, and
// its buttons drive open, close, focus, rotation and night mode.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// App is the preview window and the coordinator's owner.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	fyneApp fyne.App
	window  fyne.Window
	coord   *camera.Coordinator

	frames      *camera.FrameBuffer
	image       *canvas.Image
	placeholder image.Image
	lastFrame   uint64

	statusMu sync.Mutex
	status   *widget.Label

	orientation atomic.Int32
	nightMode   atomic.Bool
	night       *nightLUT
	nightBuf    *image.RGBA

	stopCh   chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}
}

var _ camera.Owner = (*App)(nil)

// NewApp creates the window. Attach a coordinator before Run.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	return newApp(app.NewWithID("camera-preview-go"), cfg, logger)
}

func newApp(fa fyne.App, cfg *config.Config, logger *zap.Logger) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	placeholder := createColoredImage(cfg.Camera.Width, cfg.Camera.Height, color.RGBA{25, 25, 25, 255})
	a := &App{
		cfg:         cfg,
		logger:      logger.Named("ui"),
		fyneApp:     fa,
		window:      fa.NewWindow("Camera Preview"),
		frames:      camera.NewFrameBuffer(),
		image:       canvas.NewImageFromImage(placeholder),
		placeholder: placeholder,
		status:      widget.NewLabel("Closed"),
		night:       newNightLUT(cfg.Preview.NightBoost),
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	a.image.FillMode = canvas.ImageFillContain
	a.orientation.Store(int32(cfg.Preview.Orientation))
	a.nightMode.Store(cfg.Preview.NightMode)

	a.window.Resize(fyne.NewSize(float32(cfg.Preview.WindowWidth), float32(cfg.Preview.WindowHeight)))
	a.window.SetContent(a.content())
	a.window.SetCloseIntercept(func() {
		a.logger.Info("window closed")
		a.Stop()
		a.fyneApp.Quit()
	})
	return a
}

func createColoredImage(width, height int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stride := img.Stride
	for x := 0; x < width; x++ {
		off := x * 4
		img.Pix[off+0], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = c.R, c.G, c.B, c.A
	}
	firstRow := img.Pix[:stride]
	for y := 1; y < height; y++ {
		copy(img.Pix[y*stride:(y+1)*stride], firstRow)
	}
	return img
}

func (a *App) content() fyne.CanvasObject {
	openBtn := widget.NewButton("Open", a.open)
	closeBtn := widget.NewButton("Close", a.close)
	focus := widget.NewCheck("Auto focus", a.setAutoFocus)
	focus.Checked = a.cfg.AutoFocus.Enabled
	rotate := widget.NewButton("Rotate", a.rotate)
	night := widget.NewCheck("Night mode", func(on bool) {
		a.nightMode.Store(on)
		a.logger.Info("night mode", zap.Bool("enabled", on))
	})
	night.Checked = a.nightMode.Load()

	bar := container.NewHBox(openBtn, closeBtn, rotate, focus, night, a.status)
	bg := canvas.NewRectangle(color.RGBA{20, 20, 20, 255})
	return container.NewBorder(nil, bar, nil, nil, container.NewStack(bg, a.image))
}

// Attach binds the coordinator the window drives.
func (a *App) Attach(c *camera.Coordinator) {
	a.coord = c
}

// Frames is the preview target frames are written into.
func (a *App) Frames() *camera.FrameBuffer {
	return a.frames
}

// Run starts the control loop, requests the configured camera and blocks
// in the fyne event loop until the window closes.
func (a *App) Run() {
	a.Start()
	a.open()
	a.window.ShowAndRun()
	a.Stop()
}

// Start runs the control loop without showing the window.
func (a *App) Start() {
	go a.controlLoop()
}

// Stop ends the control loop. The coordinator is left to the caller.
func (a *App) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// controlLoop is the control context: it completes opens and repaints the
// preview at the configured UI rate.
func (a *App) controlLoop() {
	defer close(a.loopDone)

	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.Preview.UIFPS))
	defer ticker.Stop()
	statusTick := time.NewTicker(time.Second)
	defer statusTick.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case cmp := <-a.coord.Completions():
			a.coord.Complete(cmp)
		case <-ticker.C:
			a.refresh()
		case <-statusTick.C:
			if a.coord.IsOpen() {
				a.setStatus(fmt.Sprintf("Open %.1f fps", a.frames.FPS()))
			}
		}
	}
}

// refresh runs on the control loop only; it alone touches the image.
func (a *App) refresh() {
	if a.frames.FrameCount() < a.lastFrame {
		// Buffer was reset by a close.
		a.lastFrame = 0
		a.image.Image = a.placeholder
		a.image.Refresh()
		return
	}
	frame, n, ok := a.frames.ReadIfNew(a.lastFrame)
	if !ok || frame == nil {
		return
	}
	a.lastFrame = n

	display := frame
	if a.nightMode.Load() {
		a.nightBuf = a.night.apply(frame, a.nightBuf)
		display = a.nightBuf
	}
	a.image.Image = display
	a.image.Refresh()
}

// OnCameraOpened starts the preview on the window's frame buffer, or
// reports that no camera is available.
func (a *App) OnCameraOpened(h camera.Handle, target camera.Target) {
	if h == nil {
		a.setStatus("No camera available")
		return
	}
	if err := a.coord.SetDisplayOrientation(int(a.orientation.Load())); err != nil {
		a.logger.Warn("orientation rejected", zap.Error(err))
	}
	if target == nil {
		target = a.frames
	}
	if err := a.coord.StartPreviewOn(target); err != nil {
		a.logger.Error("preview failed", zap.Error(err))
		a.setStatus("Preview failed")
		return
	}
	a.setStatus(fmt.Sprintf("Open (%s)", shortSession(a.coord.Session())))
}

func shortSession(id uuid.UUID) string {
	return id.String()[:8]
}

func (a *App) setStatus(text string) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.SetText(text)
}

func (a *App) statusText() string {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	return a.status.Text
}

func (a *App) open() {
	a.setStatus("Opening...")
	a.coord.Open(a.cfg.Camera.Index, a.frames)
}

// close blocks the event goroutine until the camera is released.
func (a *App) close() {
	start := time.Now()
	a.coord.Close()
	a.logger.Debug("close finished", zap.Duration("took", time.Since(start)))

	a.frames.Reset()
	a.setStatus("Closed")
}

func (a *App) setAutoFocus(on bool) {
	if on {
		a.coord.StartAutoFocus()
	} else {
		a.coord.StopAutoFocus()
	}
}

func (a *App) rotate() {
	next := (a.orientation.Load() + 90) % 360
	a.orientation.Store(next)
	if err := a.coord.SetDisplayOrientation(int(next)); err != nil {
		a.logger.Warn("rotate failed", zap.Error(err))
	}
}

// Quit ends the fyne event loop; Run returns afterwards.
func (a *App) Quit() {
	a.fyneApp.Quit()
}

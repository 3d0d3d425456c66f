// Package device implements camera.Device backends: V4L2 through
// blackjack/webcam, OpenCV through gocv, and a synthetic test pattern.
//
// Every backend plugs a source into the same handle, so preview streaming,
// frame-rate limiting, rotation and callback delivery behave identically.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"go.uber.org/zap"
)

// Errors
var (
	ErrUnsupported   = errors.New("device: unsupported")
	ErrNoDevice      = errors.New("device: no camera available")
	ErrPreviewActive = errors.New("device: preview size cannot change while previewing")
	ErrReleased      = errors.New("device: handle released")
)

// errTimeout means no frame was ready; the stream simply tries again.
var errTimeout = errors.New("device: frame timeout")

// source is one opened camera as seen by the shared handle. Start, Next and
// Stop are only called from the handle; Next only from the stream goroutine.
type source interface {
	// Configure applies p. The preview size only changes while stopped.
	Configure(p *camera.Parameters) error
	Start() error
	// Next blocks for the next frame, returning errTimeout when none
	// arrived in time.
	Next(ctx context.Context) (image.Image, error)
	Stop() error
	// Focus starts (true) or cancels (false) a focus sweep.
	Focus(start bool) error
	Close() error
}

type opener func(index int) (source, *camera.Parameters, error)

// Device opens handles on one backend.
type Device struct {
	backend    string
	logger     *zap.Logger
	open       opener
	candidates func() []int
}

var _ camera.Device = (*Device)(nil)

// New returns the backend selected by cfg.Backend.
func New(cfg config.CameraConfig, logger *zap.Logger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Device{backend: cfg.Backend, logger: logger.Named("device." + cfg.Backend)}

	switch cfg.Backend {
	case "v4l2":
		d.open = func(index int) (source, *camera.Parameters, error) {
			return openV4L2(cfg, index, d.logger)
		}
		d.candidates = func() []int {
			devices, err := camera.DiscoverDevices()
			if err != nil {
				d.logger.Warn("device discovery failed", zap.Error(err))
				return nil
			}
			var out []int
			for _, dev := range devices {
				if len(out) == cfg.ProbeLimit {
					break
				}
				out = append(out, dev.Index)
			}
			return out
		}
	case "opencv":
		d.open = func(index int) (source, *camera.Parameters, error) {
			return openOpenCV(cfg, index, d.logger)
		}
		d.candidates = func() []int { return upTo(cfg.ProbeLimit) }
	case "pattern":
		d.open = func(index int) (source, *camera.Parameters, error) {
			if index < 0 || index >= cfg.PatternDevices {
				return nil, nil, fmt.Errorf("%w: pattern %d", ErrNoDevice, index)
			}
			src, p := newPatternSource(cfg, index)
			return src, p, nil
		}
		d.candidates = func() []int { return upTo(cfg.PatternDevices) }
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrUnsupported, cfg.Backend)
	}
	return d, nil
}

func upTo(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Backend returns the backend name.
func (d *Device) Backend() string {
	return d.backend
}

// Open opens the camera at index.
func (d *Device) Open(index int) (camera.Handle, error) {
	src, params, err := d.open(index)
	if err != nil {
		return nil, fmt.Errorf("open %s camera %d: %w", d.backend, index, err)
	}
	d.logger.Info("camera opened", zap.Int("index", index), zap.String("params", params.Flatten()))
	return newHandle(fmt.Sprintf("%s:%d", d.backend, index), src, params, d.logger), nil
}

// OpenDefault opens the first camera that can be opened.
func (d *Device) OpenDefault() (camera.Handle, error) {
	for _, index := range d.candidates() {
		h, err := d.Open(index)
		if err == nil {
			return h, nil
		}
		d.logger.Debug("probe failed", zap.Int("index", index), zap.Error(err))
	}
	return nil, ErrNoDevice
}

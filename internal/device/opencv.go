//go:build opencv

package device

import (
	"context"
	"fmt"
	"image"
	"sync"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// cvSource reads frames through OpenCV's VideoCapture. All capture calls
// are serialized on mu.
type cvSource struct {
	index  int
	logger *zap.Logger

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func openOpenCV(cfg config.CameraConfig, index int, logger *zap.Logger) (source, *camera.Parameters, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opencv %d: %v", ErrNoDevice, index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, nil, fmt.Errorf("%w: opencv %d not opened", ErrNoDevice, index)
	}

	vc.Set(gocv.VideoCaptureBufferSize, float64(cfg.Buffers))
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))

	w := int(vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(vc.Get(gocv.VideoCaptureFrameHeight))
	if w <= 0 || h <= 0 {
		w, h = cfg.Width, cfg.Height
	}
	logger.Info("opencv capture opened",
		zap.Int("index", index),
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Float64("fps", vc.Get(gocv.VideoCaptureFPS)))

	p := camera.NewParameters()
	p.SetPreviewSize(w, h)
	_ = p.Set(camera.KeyPreviewFormat, "bgr")
	p.SetPreviewFrameRate(cfg.FPS)
	p.SetSupportedFocusModes(camera.FocusModeContinuous, camera.FocusModeFixed)
	p.SetFocusMode(camera.FocusModeContinuous)

	return &cvSource{index: index, logger: logger, vc: vc, mat: gocv.NewMat()}, p, nil
}

func (s *cvSource) Configure(p *camera.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, h, ok := p.PreviewSize(); ok {
		s.vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
		s.vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	}
	s.vc.Set(gocv.VideoCaptureFPS, float64(p.PreviewFrameRate()))
	if p.FocusMode() == camera.FocusModeFixed {
		s.vc.Set(gocv.VideoCaptureAutoFocus, 0)
	} else {
		s.vc.Set(gocv.VideoCaptureAutoFocus, 1)
	}
	return nil
}

func (s *cvSource) Start() error { return nil }

func (s *cvSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, errTimeout
	}
	return s.mat.ToImage()
}

func (s *cvSource) Stop() error { return nil }

// Focus toggles continuous autofocus; OpenCV has no one-shot trigger.
func (s *cvSource) Focus(start bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := 0.0
	if start {
		v = 1
	}
	s.vc.Set(gocv.VideoCaptureAutoFocus, v)
	return nil
}

func (s *cvSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	return s.vc.Close()
}

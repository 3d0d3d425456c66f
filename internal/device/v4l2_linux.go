//go:build linux

package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"syscall"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"github.com/blackjack/webcam"
	"go.uber.org/zap"
)

// V4L2 fourcc codes and control IDs.
const (
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // MJPG
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // YUYV

	cidFocusAuto      webcam.ControlID = 0x009a090c
	cidAutoFocusStart webcam.ControlID = 0x009a091c
	cidAutoFocusStop  webcam.ControlID = 0x009a091d
)

type v4l2Source struct {
	path    string
	cam     *webcam.Webcam
	buffers uint32
	fps     int
	logger  *zap.Logger

	hasFocusAuto bool
	hasAFTrigger bool

	mu        sync.Mutex
	format    webcam.PixelFormat
	width     int
	height    int
	streaming bool
}

func openV4L2(cfg config.CameraConfig, index int, logger *zap.Logger) (source, *camera.Parameters, error) {
	path := camera.DevicePath(index)
	cam, err := webcam.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrNoDevice, path, err)
	}

	s := &v4l2Source{
		path:    path,
		cam:     cam,
		buffers: uint32(cfg.Buffers),
		fps:     cfg.FPS,
		logger:  logger.With(zap.String("path", path)),
	}
	p, err := s.negotiate(cfg)
	if err != nil {
		cam.Close()
		return nil, nil, err
	}
	return s, p, nil
}

// negotiate picks the pixel format and frame size closest to cfg and
// reports the result as parameters.
func (s *v4l2Source) negotiate(cfg config.CameraConfig) (*camera.Parameters, error) {
	formats := s.cam.GetSupportedFormats()
	order := []webcam.PixelFormat{pixFmtMJPEG, pixFmtYUYV}
	if cfg.Format == "yuyv" {
		order = []webcam.PixelFormat{pixFmtYUYV, pixFmtMJPEG}
	}
	format := webcam.PixelFormat(0)
	for _, f := range order {
		if _, ok := formats[f]; ok {
			format = f
			break
		}
	}
	if format == 0 {
		return nil, fmt.Errorf("%w: %s offers neither MJPEG nor YUYV", ErrUnsupported, s.path)
	}

	sizes := s.cam.GetSupportedFrameSizes(format)
	w, h := chooseSize(sizes, uint32(cfg.Width), uint32(cfg.Height))
	if err := s.setFormat(format, w, h); err != nil {
		return nil, err
	}
	if err := s.cam.SetBufferCount(s.buffers); err != nil {
		s.logger.Debug("buffer count not applied", zap.Error(err))
	}
	if err := s.cam.SetFramerate(float32(cfg.FPS)); err != nil {
		s.logger.Debug("frame rate not applied", zap.Error(err))
	}

	controls := s.cam.GetControls()
	_, s.hasFocusAuto = controls[cidFocusAuto]
	_, s.hasAFTrigger = controls[cidAutoFocusStart]

	p := camera.NewParameters()
	p.SetPreviewSize(s.width, s.height)
	if values := sizeValues(sizes); values != "" {
		_ = p.Set(camera.KeyPreviewSizeValues, values)
	}
	if s.format == pixFmtMJPEG {
		_ = p.Set(camera.KeyPreviewFormat, "mjpeg")
	} else {
		_ = p.Set(camera.KeyPreviewFormat, "yuyv")
	}
	p.SetPreviewFrameRate(cfg.FPS)
	switch {
	case s.hasAFTrigger:
		p.SetSupportedFocusModes(camera.FocusModeAuto, camera.FocusModeFixed)
		p.SetFocusMode(camera.FocusModeAuto)
	case s.hasFocusAuto:
		p.SetSupportedFocusModes(camera.FocusModeContinuous, camera.FocusModeFixed)
		p.SetFocusMode(camera.FocusModeContinuous)
	default:
		p.SetSupportedFocusModes(camera.FocusModeFixed)
		p.SetFocusMode(camera.FocusModeFixed)
	}
	return p, nil
}

func (s *v4l2Source) setFormat(format webcam.PixelFormat, w, h uint32) error {
	f, gw, gh, err := s.cam.SetImageFormat(format, w, h)
	if err != nil {
		return fmt.Errorf("device: set format %dx%d on %s: %w", w, h, s.path, err)
	}
	if f != pixFmtMJPEG && f != pixFmtYUYV {
		return fmt.Errorf("%w: driver chose pixel format %#x", ErrUnsupported, uint32(f))
	}
	s.mu.Lock()
	s.format, s.width, s.height = f, int(gw), int(gh)
	s.mu.Unlock()
	s.logger.Info("format negotiated",
		zap.String("format", fourcc(f)),
		zap.Uint32("width", gw),
		zap.Uint32("height", gh))
	return nil
}

func (s *v4l2Source) Configure(p *camera.Parameters) error {
	w, h, _ := p.PreviewSize()
	s.mu.Lock()
	resize := w != s.width || h != s.height
	format := s.format
	s.mu.Unlock()
	if resize {
		if err := s.setFormat(format, uint32(w), uint32(h)); err != nil {
			return err
		}
	}

	if fps := p.PreviewFrameRate(); fps != s.fps {
		if err := s.cam.SetFramerate(float32(fps)); err != nil {
			s.logger.Debug("frame rate not applied", zap.Int("fps", fps), zap.Error(err))
		}
		s.fps = fps
	}

	if mode := p.FocusMode(); s.hasFocusAuto && mode != "" {
		var v int32
		if mode == camera.FocusModeContinuous {
			v = 1
		}
		if err := s.cam.SetControl(cidFocusAuto, v); err != nil {
			return fmt.Errorf("device: set focus mode: %w", err)
		}
	}
	return nil
}

func (s *v4l2Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		return nil
	}
	if err := s.cam.StartStreaming(); err != nil {
		return err
	}
	s.streaming = true
	return nil
}

// Next waits at most a second for a frame.
func (s *v4l2Source) Next(ctx context.Context) (image.Image, error) {
	err := s.cam.WaitForFrame(1)
	var timeout *webcam.Timeout
	switch {
	case errors.As(err, &timeout):
		return nil, errTimeout
	case err != nil:
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	raw, index, err := s.cam.GetFrame()
	if errors.Is(err, syscall.EAGAIN) {
		return nil, errTimeout
	}
	if err != nil {
		return nil, err
	}
	defer s.cam.ReleaseFrame(index)
	if len(raw) == 0 {
		return nil, errTimeout
	}

	s.mu.Lock()
	format, w, h := s.format, s.width, s.height
	s.mu.Unlock()
	if format == pixFmtMJPEG {
		return decodeMJPEG(raw)
	}
	return decodeYUYV(raw, w, h)
}

func (s *v4l2Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return nil
	}
	s.streaming = false
	return s.cam.StopStreaming()
}

// Focus triggers a one-shot sweep where the driver exposes one. Fixed
// focus cameras accept the call and do nothing.
func (s *v4l2Source) Focus(start bool) error {
	if !s.hasAFTrigger {
		return nil
	}
	id := cidAutoFocusStop
	if start {
		id = cidAutoFocusStart
	}
	return s.cam.SetControl(id, 1)
}

func (s *v4l2Source) Close() error {
	s.mu.Lock()
	s.streaming = false
	s.mu.Unlock()
	return s.cam.Close()
}

// chooseSize picks the supported size closest in area to w x h. Stepwise
// ranges are clamped and snapped to their step.
func chooseSize(sizes []webcam.FrameSize, w, h uint32) (uint32, uint32) {
	if len(sizes) == 0 {
		return w, h
	}
	want := int64(w) * int64(h)
	bestW, bestH := w, h
	bestDiff := int64(-1)
	for _, fs := range sizes {
		cw := snap(w, fs.MinWidth, fs.MaxWidth, fs.StepWidth)
		ch := snap(h, fs.MinHeight, fs.MaxHeight, fs.StepHeight)
		diff := int64(cw)*int64(ch) - want
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestW, bestH, bestDiff = cw, ch, diff
		}
	}
	return bestW, bestH
}

func snap(v, lo, hi, step uint32) uint32 {
	if v <= lo || hi <= lo {
		return lo
	}
	if v >= hi {
		return hi
	}
	if step > 1 {
		v = lo + (v-lo)/step*step
	}
	return v
}

// sizeValues lists the discrete sizes, largest first.
func sizeValues(sizes []webcam.FrameSize) string {
	type wh struct{ w, h uint32 }
	var list []wh
	seen := make(map[wh]bool)
	for _, fs := range sizes {
		if fs.MinWidth != fs.MaxWidth || fs.MinHeight != fs.MaxHeight {
			continue
		}
		k := wh{fs.MaxWidth, fs.MaxHeight}
		if !seen[k] {
			seen[k] = true
			list = append(list, k)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].w*list[i].h > list[j].w*list[j].h
	})
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = fmt.Sprintf("%dx%d", s.w, s.h)
	}
	return strings.Join(out, ",")
}

func fourcc(f webcam.PixelFormat) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

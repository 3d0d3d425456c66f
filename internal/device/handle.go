package device

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"camera-preview-go/internal/camera"

	"go.uber.org/zap"
)

// handle is the camera.Handle shared by every backend.
type handle struct {
	name   string
	src    source
	logger *zap.Logger

	mu          sync.Mutex
	params      *camera.Parameters
	orientation int
	target      camera.Target
	callback    camera.PreviewCallback
	stream      *stream
	released    bool
}

var _ camera.Handle = (*handle)(nil)

func newHandle(name string, src source, params *camera.Parameters, logger *zap.Logger) *handle {
	return &handle{
		name:   name,
		src:    src,
		logger: logger.With(zap.String("camera", name)),
		params: params.Clone(),
	}
}

func (h *handle) Parameters() (*camera.Parameters, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil, ErrReleased
	}
	return h.params.Clone(), nil
}

// SetParameters validates p against the current state and applies it.
func (h *handle) SetParameters(p *camera.Parameters) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}

	w, ht, ok := p.PreviewSize()
	if !ok {
		return fmt.Errorf("device: invalid %s", camera.KeyPreviewSize)
	}
	if h.stream != nil {
		cw, ch, _ := h.params.PreviewSize()
		if w != cw || ht != ch {
			return ErrPreviewActive
		}
	}
	if mode := p.FocusMode(); mode != "" {
		if supported := h.params.SupportedFocusModes(); len(supported) > 0 && !slices.Contains(supported, mode) {
			return fmt.Errorf("device: focus mode %q not supported", mode)
		}
	}
	if p.PreviewFrameRate() <= 0 {
		return fmt.Errorf("device: invalid %s", camera.KeyPreviewFrameRate)
	}

	if err := h.src.Configure(p); err != nil {
		return err
	}
	h.params = p.Clone()
	if h.stream != nil {
		h.stream.setFPS(p.PreviewFrameRate())
	}
	return nil
}

func (h *handle) SetPreviewCallback(cb camera.PreviewCallback) {
	h.mu.Lock()
	h.callback = cb
	h.mu.Unlock()
}

func (h *handle) SetDisplayOrientation(degrees int) error {
	if !camera.ValidOrientation(degrees) {
		return fmt.Errorf("%w: %d", camera.ErrInvalidOrientation, degrees)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.orientation = degrees
	return nil
}

func (h *handle) SetPreviewTarget(t camera.Target) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.target = t
	return nil
}

// StartPreview starts streaming into the bound target. Starting twice is a
// no-op.
func (h *handle) StartPreview() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	if h.stream != nil {
		return nil
	}
	if err := h.src.Start(); err != nil {
		return fmt.Errorf("device: start stream: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := newStream(cancel, h.params.PreviewFrameRate())
	h.stream = s
	go h.run(ctx, s)
	go h.dispatch(ctx, s)
	h.logger.Info("preview started", zap.Int("fps", h.params.PreviewFrameRate()))
	return nil
}

// StopPreview stops streaming and returns after the last frame was written
// to the target. It does not wait for a preview callback that is still
// running, since that callback may itself call back into the owner of the
// handle.
func (h *handle) StopPreview() error {
	h.mu.Lock()
	s := h.stream
	h.stream = nil
	h.mu.Unlock()
	if s == nil {
		return nil
	}

	s.cancel()
	<-s.done
	frames, skipped, errs := s.stats()
	h.logger.Info("preview stopped",
		zap.Uint64("frames", frames),
		zap.Uint64("skipped", skipped),
		zap.Uint64("dropped", s.dropped.Load()),
		zap.Uint64("errors", errs))
	return h.src.Stop()
}

func (h *handle) AutoFocus() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	return h.src.Focus(true)
}

func (h *handle) CancelAutoFocus() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	return h.src.Focus(false)
}

// Release stops any preview and closes the device. Later calls are no-ops.
func (h *handle) Release() error {
	if err := h.StopPreview(); err != nil {
		h.logger.Warn("stop before release failed", zap.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	h.target = nil
	h.callback = nil
	return h.src.Close()
}

// sinks returns what the next frame goes to.
func (h *handle) sinks() (camera.Target, camera.PreviewCallback, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target, h.callback, h.orientation
}

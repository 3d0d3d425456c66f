package device

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// stream is one running preview. Frames go to the target on the run
// goroutine and to the preview callback on a separate dispatch goroutine,
// so a slow or re-entrant callback never holds up StopPreview.
type stream struct {
	cancel    context.CancelFunc
	done      chan struct{}
	callbacks chan image.Image
	cbDone    chan struct{} // closed when dispatch returns

	fps     atomic.Int32
	frames  atomic.Uint64
	skipped atomic.Uint64
	dropped atomic.Uint64
	errors  atomic.Uint64
}

func newStream(cancel context.CancelFunc, fps int) *stream {
	s := &stream{
		cancel:    cancel,
		done:      make(chan struct{}),
		callbacks: make(chan image.Image, 1),
		cbDone:    make(chan struct{}),
	}
	s.setFPS(fps)
	return s
}

func (s *stream) setFPS(fps int) {
	if fps < 1 {
		fps = 1
	}
	s.fps.Store(int32(fps))
}

func (s *stream) stats() (frames, skipped, errs uint64) {
	return s.frames.Load(), s.skipped.Load(), s.errors.Load()
}

// offer hands frame to the dispatcher. When the callback is still busy
// with an earlier frame the new one is dropped.
func (s *stream) offer(frame image.Image) {
	select {
	case s.callbacks <- frame:
	default:
		s.dropped.Add(1)
	}
}

// run pulls frames from the source until ctx is cancelled. Devices may
// ignore the requested rate, so frames arriving sooner than 1/fps after the
// last delivered one are dropped.
func (h *handle) run(ctx context.Context, s *stream) {
	defer close(s.done)

	var last time.Time
	for ctx.Err() == nil {
		frame, err := h.src.Next(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, errTimeout):
			continue
		case err != nil:
			if s.errors.Add(1)%50 == 1 {
				h.logger.Warn("frame read failed", zap.Error(err))
			}
			continue
		}

		now := time.Now()
		if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(s.fps.Load()) {
			s.skipped.Add(1)
			continue
		}
		last = now

		target, cb, orientation := h.sinks()
		frame = Rotate(frame, orientation)
		if target != nil {
			target.Write(frame)
		}
		if cb != nil {
			s.offer(frame)
		}

		if n := s.frames.Add(1); n%300 == 1 {
			b := frame.Bounds()
			h.logger.Debug("frame delivered",
				zap.Uint64("frame", n),
				zap.Int("width", b.Dx()),
				zap.Int("height", b.Dy()),
				zap.Uint64("skipped", s.skipped.Load()))
		}
	}
}

// dispatch runs the preview callback for frames offered by run. The
// callback is looked up again per frame so SetPreviewCallback(nil) takes
// effect immediately. No callback starts once ctx is cancelled; one already
// running may still finish after StopPreview returns.
func (h *handle) dispatch(ctx context.Context, s *stream) {
	defer close(s.cbDone)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.callbacks:
			if ctx.Err() != nil {
				return
			}
			if _, cb, _ := h.sinks(); cb != nil {
				cb(frame)
			}
		}
	}
}

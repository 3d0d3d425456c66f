package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	"camera-preview-go/internal/worker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Completion is the result of one open request, delivered to the control
// side through Coordinator.Completions.
type Completion struct {
	Session uuid.UUID
	Index   int
	Handle  Handle // nil when no device could be opened
	Target  Target
	Err     error

	gen uint64
}

// Options configures a Coordinator.
type Options struct {
	Logger *zap.Logger

	// AutoFocus builds the focus helper when preview starts. Nil disables
	// auto-focus.
	AutoFocus AutoFocusFactory

	// CompletionBuffer is the capacity of the completion channel.
	CompletionBuffer int

	// BeforeOpen runs on the worker, under the resource lock, right before
	// the device is opened.
	BeforeOpen func(index int)
}

// Coordinator owns a single camera handle. Open and Close run as tasks on
// a dedicated worker; the accessors run on the caller's goroutine under the
// same resource lock the tasks take.
//
// Lock order is mu, then stateMu.
type Coordinator struct {
	dev    Device
	owner  Owner
	opts   Options
	logger *zap.Logger

	worker      *worker.Worker
	completions chan Completion
	quit        chan struct{}
	quitOnce    sync.Once

	// mu is the resource lock.
	mu     sync.Mutex
	handle Handle
	focus  AutoFocuser
	target Target

	stateMu  sync.Mutex
	state    State
	gen      uint64
	abort    chan struct{} // closed when the pending open is superseded by Close
	closing  chan struct{} // done channel of the close in flight, if any
	session  uuid.UUID
	shutdown bool
}

// NewCoordinator returns a closed coordinator with its own worker.
func NewCoordinator(dev Device, owner Owner, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CompletionBuffer <= 0 {
		opts.CompletionBuffer = 8
	}
	return &Coordinator{
		dev:         dev,
		owner:       owner,
		opts:        opts,
		logger:      opts.Logger.Named("coordinator"),
		worker:      worker.New("camera", opts.Logger),
		completions: make(chan Completion, opts.CompletionBuffer),
		quit:        make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Session identifies the most recent open request. It is the value carried
// by that request's Completion and logged as "session"; uuid.Nil before the
// first Open.
func (c *Coordinator) Session() uuid.UUID {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.session
}

// IsOpen reports whether the handle is open and usable.
func (c *Coordinator) IsOpen() bool {
	return c.State() == StateOpen
}

// Open requests the camera at index, or the first available camera when
// index is negative. It never blocks: the device is opened on the worker
// and the result arrives on Completions. Open while an open is pending or
// a camera is already open does nothing, as does Open once Shutdown has
// begun.
func (c *Coordinator) Open(index int, target Target) {
	session := uuid.New()

	c.stateMu.Lock()
	if c.shutdown {
		c.stateMu.Unlock()
		c.logger.Debug("open ignored, shutting down", zap.Int("index", index))
		return
	}
	if c.state != StateClosed || c.closing != nil {
		st := c.state
		c.stateMu.Unlock()
		c.logger.Debug("open ignored", zap.Int("index", index), zap.Stringer("state", st))
		return
	}
	c.state = StatePendingOpen
	c.gen++
	gen := c.gen
	abort := make(chan struct{})
	c.abort = abort
	c.session = session
	c.stateMu.Unlock()

	err := c.worker.Post(func() { c.openTask(session, index, target, gen, abort) })
	if err != nil {
		c.logger.Error("open not scheduled", zap.Int("index", index), zap.Error(err))
		c.stateMu.Lock()
		if c.gen == gen {
			c.state = StateClosed
			c.abort = nil
		}
		c.stateMu.Unlock()
	}
}

func (c *Coordinator) openTask(session uuid.UUID, index int, target Target, gen uint64, abort chan struct{}) {
	c.mu.Lock()
	if c.opts.BeforeOpen != nil {
		c.opts.BeforeOpen(index)
	}
	var (
		h   Handle
		err error
	)
	if index >= 0 {
		h, err = c.dev.Open(index)
	} else {
		h, err = c.dev.OpenDefault()
	}
	if err != nil {
		c.logger.Warn("camera unavailable", zap.Int("index", index), zap.Error(err))
		h = nil
	}
	c.handle = h
	c.target = target
	c.mu.Unlock()

	cmp := Completion{
		Session: session,
		Index:   index,
		Handle:  h,
		Target:  target,
		Err:     err,
		gen:     gen,
	}
	select {
	case c.completions <- cmp:
	case <-abort:
		c.logger.Debug("open superseded by close", zap.Stringer("session", session))
	case <-c.quit:
	}
}

// Completions delivers open results. The control goroutine must drain it,
// passing each value to Complete, or call Pump.
func (c *Coordinator) Completions() <-chan Completion {
	return c.completions
}

// Complete finishes an open on the control goroutine: the state becomes
// Open, or Closed when no handle was obtained, and the owner is told.
// Completions of an open that has since been closed are dropped.
func (c *Coordinator) Complete(cmp Completion) {
	c.stateMu.Lock()
	if c.state != StatePendingOpen || cmp.gen != c.gen {
		c.stateMu.Unlock()
		c.logger.Debug("stale completion dropped", zap.Stringer("session", cmp.Session))
		return
	}
	if cmp.Handle == nil {
		c.state = StateClosed
	} else {
		c.state = StateOpen
	}
	c.abort = nil
	c.stateMu.Unlock()

	if cmp.Handle == nil {
		c.logger.Warn("open completed without a camera", zap.Int("index", cmp.Index), zap.Stringer("session", cmp.Session))
	} else {
		c.logger.Info("camera opened", zap.Int("index", cmp.Index), zap.Stringer("session", cmp.Session))
	}
	if c.owner != nil {
		c.owner.OnCameraOpened(cmp.Handle, cmp.Target)
	}
}

// Pump drains Completions until ctx is done or the coordinator shuts down.
func (c *Coordinator) Pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return nil
		case cmp := <-c.completions:
			c.Complete(cmp)
		}
	}
}

// Close releases the camera and returns once it is fully released and the
// state is Closed. It does nothing when the coordinator is already closed.
func (c *Coordinator) Close() {
	_ = c.CloseContext(context.Background())
}

// CloseContext is Close with a bounded wait. When ctx ends first it returns
// ErrCloseInterrupted; the release still runs on the worker.
func (c *Coordinator) CloseContext(ctx context.Context) error {
	done := c.requestClose()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCloseInterrupted, ctx.Err())
	}
}

// requestClose schedules the release and returns the channel closed when it
// finishes, or nil when there is nothing to close. A Close issued while
// another is in flight joins it instead of scheduling a second release.
func (c *Coordinator) requestClose() <-chan struct{} {
	c.stateMu.Lock()
	if c.closing != nil {
		done := c.closing
		c.stateMu.Unlock()
		return done
	}
	switch c.state {
	case StateClosed:
		c.stateMu.Unlock()
		return nil
	case StatePendingOpen:
		// Invalidate the pending completion.
		c.gen++
		if c.abort != nil {
			close(c.abort)
			c.abort = nil
		}
	}
	gen := c.gen
	done := make(chan struct{})
	c.closing = done
	c.stateMu.Unlock()

	if err := c.worker.Post(func() { c.closeTask(gen, done) }); err != nil {
		c.logger.Warn("worker stopped, releasing inline", zap.Error(err))
		c.closeTask(gen, done)
	}
	return done
}

func (c *Coordinator) closeTask(gen uint64, done chan struct{}) {
	defer close(done)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopFocusLocked()
	if h := c.handle; h != nil {
		if err := h.StopPreview(); err != nil {
			c.logger.Warn("stop preview failed", zap.Error(err))
		}
		h.SetPreviewCallback(nil)
		if err := h.Release(); err != nil {
			c.logger.Warn("release failed", zap.Error(err))
		}
		c.handle = nil
		c.logger.Info("camera released", zap.Stringer("session", c.Session()))
	}
	c.target = nil

	c.stateMu.Lock()
	if c.gen == gen {
		c.state = StateClosed
	}
	if c.closing == done {
		c.closing = nil
	}
	c.stateMu.Unlock()
}

// Shutdown closes the camera and stops the worker. The coordinator cannot
// be reopened afterwards.
func (c *Coordinator) Shutdown() {
	_ = c.ShutdownContext(context.Background())
}

// ShutdownContext is Shutdown with a bounded wait. Open is refused from the
// moment it is called. When ctx ends before the release and the queued
// tasks finish it returns ErrCloseInterrupted; the worker still drains its
// queue and exits in the background.
func (c *Coordinator) ShutdownContext(ctx context.Context) error {
	c.stateMu.Lock()
	c.shutdown = true
	c.stateMu.Unlock()

	err := c.CloseContext(ctx)
	c.quitOnce.Do(func() { close(c.quit) })
	if werr := c.worker.StopContext(ctx); werr != nil && err == nil {
		err = fmt.Errorf("%w: %w", ErrCloseInterrupted, werr)
	}
	return err
}

// liveLocked returns the handle when the state is Open. Callers hold mu.
func (c *Coordinator) liveLocked() Handle {
	if c.State() != StateOpen {
		return nil
	}
	return c.handle
}

// Parameters returns a copy of the camera parameters, or nil when no camera
// is open.
func (c *Coordinator) Parameters() *Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.liveLocked()
	if h == nil {
		return nil
	}
	p, err := h.Parameters()
	if err != nil {
		c.logger.Warn("get parameters failed", zap.Error(err))
		return nil
	}
	return p
}

// SetParameters applies p. It is a no-op when no camera is open.
func (c *Coordinator) SetParameters(p *Parameters) error {
	if p == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.liveLocked()
	if h == nil {
		return nil
	}
	return h.SetParameters(p)
}

// SetOneShotPreviewCallback registers cb for the next preview frame only.
func (c *Coordinator) SetOneShotPreviewCallback(cb PreviewCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.liveLocked()
	if h == nil {
		return
	}
	if cb == nil {
		h.SetPreviewCallback(nil)
		return
	}
	var once sync.Once
	h.SetPreviewCallback(func(frame image.Image) {
		once.Do(func() { cb(frame) })
	})
}

// SetDisplayOrientation rotates the preview clockwise by degrees.
// Like every accessor it is a no-op when no camera is open.
func (c *Coordinator) SetDisplayOrientation(degrees int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.liveLocked()
	if h == nil {
		return nil
	}
	if !ValidOrientation(degrees) {
		return fmt.Errorf("%w: %d", ErrInvalidOrientation, degrees)
	}
	return h.SetDisplayOrientation(degrees)
}

// StartPreview starts the preview stream on the bound target and creates a
// fresh auto-focus helper.
func (c *Coordinator) StartPreview() error {
	return c.StartPreviewOn(nil)
}

// StartPreviewOn binds target, when non-nil, then starts preview.
func (c *Coordinator) StartPreviewOn(target Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.liveLocked()
	if h == nil {
		return nil
	}
	if target != nil {
		if err := h.SetPreviewTarget(target); err != nil {
			return fmt.Errorf("bind preview target: %w", err)
		}
		c.target = target
	}
	if err := h.StartPreview(); err != nil {
		return fmt.Errorf("start preview: %w", err)
	}
	c.stopFocusLocked()
	if c.opts.AutoFocus != nil {
		c.focus = c.opts.AutoFocus(h)
	}
	return nil
}

// StopPreview stops the preview stream and discards the auto-focus helper.
func (c *Coordinator) StopPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.liveLocked()
	if h == nil {
		return nil
	}
	c.stopFocusLocked()
	return h.StopPreview()
}

// StartAutoFocus resumes the auto-focus helper, if preview is running.
func (c *Coordinator) StartAutoFocus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focus != nil {
		c.focus.Start()
	}
}

// StopAutoFocus pauses the auto-focus helper, if preview is running.
func (c *Coordinator) StopAutoFocus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focus != nil {
		c.focus.Stop()
	}
}

func (c *Coordinator) stopFocusLocked() {
	if c.focus != nil {
		c.focus.Stop()
		c.focus = nil
	}
}

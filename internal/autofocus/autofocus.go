// Package autofocus periodically re-triggers focus on a previewing camera.
package autofocus

import (
	"context"
	"sync"
	"time"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"go.uber.org/zap"
)

// DefaultInterval is the pause between focus sweeps.
const DefaultInterval = 2 * time.Second

// Focuser is the part of a camera handle the manager drives.
type Focuser interface {
	Parameters() (*camera.Parameters, error)
	AutoFocus() error
	CancelAutoFocus() error
}

// Manager cycles focus on one handle. It is created when preview starts
// and must be stopped before the handle is released.
type Manager struct {
	f        Focuser
	interval time.Duration
	use      bool
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ camera.AutoFocuser = (*Manager)(nil)

// New builds a manager for f and starts cycling right away. Cycling only
// happens when cfg enables it and the handle's focus mode is auto or macro;
// otherwise Start and Stop do nothing.
func New(cfg config.AutoFocusConfig, f Focuser, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	mode := ""
	if p, err := f.Parameters(); err == nil && p != nil {
		mode = p.FocusMode()
	}
	m := &Manager{
		f:        f,
		interval: interval,
		use:      cfg.Enabled && (mode == camera.FocusModeAuto || mode == camera.FocusModeMacro),
		logger:   logger.Named("autofocus"),
	}
	m.logger.Debug("focus helper created", zap.String("mode", mode), zap.Bool("cycling", m.use))
	m.Start()
	return m
}

// Active reports whether this manager drives focus at all.
func (m *Manager) Active() bool {
	return m.use
}

// Start begins cycling. Calling Start while already cycling does nothing.
func (m *Manager) Start() {
	if !m.use {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.cycle(ctx)
}

// Stop cancels any sweep in progress. When Stop returns the manager no
// longer calls into the handle.
func (m *Manager) Stop() {
	if !m.use {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.wg.Wait()
	}
	if err := m.f.CancelAutoFocus(); err != nil {
		m.logger.Debug("cancel focus failed", zap.Error(err))
	}
}

func (m *Manager) cycle(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := m.f.AutoFocus(); err != nil {
			// A failed sweep is retried on the next tick.
			m.logger.Debug("focus sweep failed", zap.Error(err))
		}
		timer.Reset(m.interval)
	}
}

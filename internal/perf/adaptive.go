package perf

import (
	"context"
	"sync"
	"time"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"go.uber.org/zap"
)

// StatsSource yields system health samples.
type StatsSource interface {
	Sample() (Stats, error)
}

// FrameRateControl is the camera surface the controller adjusts. The
// coordinator's parameter accessors satisfy it; Parameters returns nil while
// no camera is open.
type FrameRateControl interface {
	Parameters() *camera.Parameters
	SetParameters(p *camera.Parameters) error
}

// AdaptiveController lowers the preview frame rate while the system is
// stressed and restores it once the system has been calm for a while.
type AdaptiveController struct {
	cfg    config.PerformanceConfig
	stats  StatsSource
	cam    FrameRateControl
	logger *zap.Logger

	mu            sync.Mutex
	fps           int
	maxFPS        int
	last          Stats
	stressed      bool
	stressCount   int
	recoveryCount int
}

// NewAdaptiveController starts at maxFPS.
func NewAdaptiveController(cfg config.PerformanceConfig, maxFPS int, stats StatsSource, cam FrameRateControl, logger *zap.Logger) *AdaptiveController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinFPS > maxFPS {
		cfg.MinFPS = maxFPS
	}
	return &AdaptiveController{
		cfg:    cfg,
		stats:  stats,
		cam:    cam,
		logger: logger.Named("perf"),
		fps:    maxFPS,
		maxFPS: maxFPS,
	}
}

// Run samples every CheckInterval until ctx is done.
func (ac *AdaptiveController) Run(ctx context.Context) error {
	if !ac.cfg.DynamicFPS {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(ac.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ac.step()
		}
	}
}

func (ac *AdaptiveController) step() {
	s, err := ac.stats.Sample()
	if err != nil {
		ac.logger.Debug("sample failed", zap.Error(err))
		return
	}

	ac.mu.Lock()
	ac.last = s
	hot := s.LoadAvg > ac.cfg.CPULoadThreshold || (s.HasTemp && s.Temperature > ac.cfg.CPUTempThresholdC)
	if hot {
		ac.recoveryCount = 0
		ac.stressCount++
		if ac.stressCount >= ac.cfg.StressHoldCount {
			ac.stressCount = 0
			ac.stressed = true
			ac.setFPSLocked(ac.fps - ac.cfg.FPSStep)
		}
	} else {
		ac.stressCount = 0
		ac.recoveryCount++
		if ac.recoveryCount >= ac.cfg.RecoverHoldCount {
			ac.recoveryCount = 0
			ac.stressed = false
			ac.setFPSLocked(ac.fps + ac.cfg.FPSStep)
		}
	}
	fps := ac.fps
	ac.mu.Unlock()

	ac.apply(fps)
}

func (ac *AdaptiveController) setFPSLocked(fps int) {
	if fps < ac.cfg.MinFPS {
		fps = ac.cfg.MinFPS
	}
	if fps > ac.maxFPS {
		fps = ac.maxFPS
	}
	if fps != ac.fps {
		ac.logger.Info("preview fps changed",
			zap.Int("from", ac.fps),
			zap.Int("to", fps),
			zap.Float64("load", ac.last.LoadAvg),
			zap.Float64("temp_c", ac.last.Temperature))
		ac.fps = fps
	}
}

// apply pushes fps to the camera when one is open and differs.
func (ac *AdaptiveController) apply(fps int) {
	p := ac.cam.Parameters()
	if p == nil || p.PreviewFrameRate() == fps {
		return
	}
	p.SetPreviewFrameRate(fps)
	if err := ac.cam.SetParameters(p); err != nil {
		ac.logger.Warn("set frame rate failed", zap.Int("fps", fps), zap.Error(err))
	}
}

// CurrentFPS returns the frame rate the controller is targeting.
func (ac *AdaptiveController) CurrentFPS() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.fps
}

// Status returns the latest sample and whether the system counts as stressed.
func (ac *AdaptiveController) Status() (Stats, bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.last, ac.stressed
}

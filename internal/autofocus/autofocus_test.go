package autofocus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFocuser struct {
	mu       sync.Mutex
	mode     string
	sweeps   int
	cancels  int
	stopped  bool
	lateCall bool
	fail     bool
}

func (f *fakeFocuser) Parameters() (*camera.Parameters, error) {
	p := camera.NewParameters()
	p.SetFocusMode(f.mode)
	return p, nil
}

func (f *fakeFocuser) AutoFocus() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		f.lateCall = true
	}
	f.sweeps++
	if f.fail {
		return errors.New("busy")
	}
	return nil
}

func (f *fakeFocuser) CancelAutoFocus() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeFocuser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func fastConfig() config.AutoFocusConfig {
	return config.AutoFocusConfig{Enabled: true, Interval: 5 * time.Millisecond}
}

func TestManager_CyclesInAutoMode(t *testing.T) {
	f := &fakeFocuser{mode: camera.FocusModeAuto}
	m := New(fastConfig(), f, nil)
	defer m.Stop()

	assert.True(t, m.Active())
	require.Eventually(t, func() bool { return f.count() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestManager_NoCyclingForOtherModes(t *testing.T) {
	for _, mode := range []string{camera.FocusModeFixed, camera.FocusModeContinuous, camera.FocusModeInfinity, ""} {
		f := &fakeFocuser{mode: mode}
		m := New(fastConfig(), f, nil)
		assert.False(t, m.Active(), mode)

		time.Sleep(20 * time.Millisecond)
		m.Stop()
		assert.Zero(t, f.count(), mode)
		assert.Zero(t, f.cancels, mode)
	}
}

func TestManager_DisabledByConfig(t *testing.T) {
	f := &fakeFocuser{mode: camera.FocusModeMacro}
	cfg := fastConfig()
	cfg.Enabled = false
	m := New(cfg, f, nil)
	m.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.count())
}

func TestManager_NoCallsAfterStop(t *testing.T) {
	f := &fakeFocuser{mode: camera.FocusModeMacro}
	m := New(fastConfig(), f, nil)
	require.Eventually(t, func() bool { return f.count() >= 1 }, 2*time.Second, time.Millisecond)

	m.Stop()
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.False(t, f.lateCall)
	assert.Equal(t, 1, f.cancels)
}

func TestManager_RestartAfterStop(t *testing.T) {
	f := &fakeFocuser{mode: camera.FocusModeAuto, fail: true}
	m := New(fastConfig(), f, nil)
	require.Eventually(t, func() bool { return f.count() >= 1 }, 2*time.Second, time.Millisecond)
	m.Stop()
	m.Stop()

	n := f.count()
	m.Start()
	m.Start()
	require.Eventually(t, func() bool { return f.count() > n }, 2*time.Second, time.Millisecond)
	m.Stop()
}

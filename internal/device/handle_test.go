package device

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource produces a red/blue 2x1 frame every millisecond.
type fakeSource struct {
	mu         sync.Mutex
	configured []*camera.Parameters
	starts     int
	stops      int
	closes     int
	focus      []bool
	failNext   atomic.Bool
}

func (s *fakeSource) Configure(p *camera.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = append(s.configured, p.Clone())
	return nil
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	if s.failNext.CompareAndSwap(true, false) {
		return nil, errors.New("usb hiccup")
	}
	return twoPixels(image.Point{}), nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSource) Focus(start bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focus = append(s.focus, start)
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) counts() (starts, stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.closes
}

func fakeParams(fps int) *camera.Parameters {
	p := camera.NewParameters()
	p.SetPreviewSize(2, 1)
	p.SetPreviewFrameRate(fps)
	p.SetSupportedFocusModes(camera.FocusModeAuto, camera.FocusModeFixed)
	p.SetFocusMode(camera.FocusModeAuto)
	return p
}

func newFakeHandle(fps int) (*handle, *fakeSource) {
	src := &fakeSource{}
	return newHandle("fake:0", src, fakeParams(fps), zap.NewNop()), src
}

type frameLog struct {
	mu     sync.Mutex
	frames []image.Image
}

func (l *frameLog) add(img image.Image) {
	l.mu.Lock()
	l.frames = append(l.frames, img)
	l.mu.Unlock()
}

func (l *frameLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

func (l *frameLog) last() image.Image {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames[len(l.frames)-1]
}

func TestHandle_PreviewAppliesOrientation(t *testing.T) {
	h, src := newFakeHandle(60)
	fb := camera.NewFrameBuffer()
	var got frameLog

	require.NoError(t, h.SetPreviewTarget(fb))
	h.SetPreviewCallback(got.add)
	require.NoError(t, h.SetDisplayOrientation(90))
	require.NoError(t, h.StartPreview())
	require.NoError(t, h.StartPreview(), "second start is a no-op")

	require.Eventually(t, func() bool { return got.len() >= 2 }, 2*time.Second, time.Millisecond)
	s := h.stream
	require.NoError(t, h.StopPreview())
	<-s.cbDone

	frame := got.last()
	assert.Equal(t, image.Rect(0, 0, 1, 2), frame.Bounds())
	assert.Equal(t, red, frame.At(0, 0))
	assert.NotZero(t, fb.FrameCount())

	delivered := got.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, delivered, got.len(), "no callbacks after the dispatcher exits")

	starts, stops, _ := src.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestHandle_InvalidOrientation(t *testing.T) {
	h, _ := newFakeHandle(30)
	assert.ErrorIs(t, h.SetDisplayOrientation(45), camera.ErrInvalidOrientation)
}

func TestHandle_FrameRateLimit(t *testing.T) {
	h, _ := newFakeHandle(10)
	var got frameLog
	h.SetPreviewCallback(got.add)

	require.NoError(t, h.StartPreview())
	time.Sleep(250 * time.Millisecond)
	s := h.stream
	require.NoError(t, h.StopPreview())

	_, skipped, _ := s.stats()
	assert.LessOrEqual(t, got.len(), 5)
	assert.NotZero(t, skipped)
}

func TestHandle_StopPreviewDoesNotWaitForCallback(t *testing.T) {
	h, src := newFakeHandle(60)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	h.SetPreviewCallback(func(image.Image) {
		calls.Add(1)
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	require.NoError(t, h.StartPreview())
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	time.Sleep(50 * time.Millisecond) // let frames pile up behind the busy callback
	s := h.stream

	stopped := make(chan error, 1)
	go func() { stopped <- h.StopPreview() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StopPreview waited for a blocked callback")
	}
	_, stops, _ := src.counts()
	assert.Equal(t, 1, stops)

	close(release)
	<-s.cbDone
	assert.Equal(t, int32(1), calls.Load(), "no callback starts after StopPreview")
	assert.NotZero(t, s.dropped.Load())
}

func TestHandle_ReadErrorsDoNotStopPreview(t *testing.T) {
	h, src := newFakeHandle(60)
	var got frameLog
	h.SetPreviewCallback(got.add)
	src.failNext.Store(true)

	require.NoError(t, h.StartPreview())
	require.Eventually(t, func() bool { return got.len() >= 1 }, 2*time.Second, time.Millisecond)
	s := h.stream
	require.NoError(t, h.StopPreview())

	_, _, errs := s.stats()
	assert.Equal(t, uint64(1), errs)
}

func TestHandle_SetParameters(t *testing.T) {
	h, src := newFakeHandle(30)

	p, err := h.Parameters()
	require.NoError(t, err)
	p.SetPreviewFrameRate(15)
	require.NoError(t, h.SetParameters(p))

	require.NoError(t, h.StartPreview())

	bigger := p.Clone()
	bigger.SetPreviewSize(4, 2)
	assert.ErrorIs(t, h.SetParameters(bigger), ErrPreviewActive)

	slower := p.Clone()
	slower.SetPreviewFrameRate(5)
	require.NoError(t, h.SetParameters(slower), "frame rate may change while previewing")
	assert.Equal(t, int32(5), h.stream.fps.Load())

	badFocus := p.Clone()
	badFocus.SetFocusMode(camera.FocusModeMacro)
	assert.Error(t, h.SetParameters(badFocus))

	require.NoError(t, h.StopPreview())
	require.NoError(t, h.SetParameters(bigger))

	cur, err := h.Parameters()
	require.NoError(t, err)
	w, ht, _ := cur.PreviewSize()
	assert.Equal(t, [2]int{4, 2}, [2]int{w, ht})

	src.mu.Lock()
	assert.Len(t, src.configured, 3)
	src.mu.Unlock()
}

func TestHandle_FocusDelegates(t *testing.T) {
	h, src := newFakeHandle(30)
	require.NoError(t, h.AutoFocus())
	require.NoError(t, h.CancelAutoFocus())

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, []bool{true, false}, src.focus)
}

func TestHandle_Release(t *testing.T) {
	h, src := newFakeHandle(30)
	require.NoError(t, h.StartPreview())

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())

	_, stops, closes := src.counts()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, closes)

	_, err := h.Parameters()
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, h.StartPreview(), ErrReleased)
	assert.ErrorIs(t, h.AutoFocus(), ErrReleased)
	assert.ErrorIs(t, h.SetPreviewTarget(camera.NewFrameBuffer()), ErrReleased)
}

func patternConfig(devices int) config.CameraConfig {
	cfg := config.DefaultConfig().Camera
	cfg.Backend = "pattern"
	cfg.Width, cfg.Height, cfg.FPS = 64, 48, 30
	cfg.PatternDevices = devices
	return cfg
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := patternConfig(1)
	cfg.Backend = "firewire"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPatternDevice_Open(t *testing.T) {
	dev, err := New(patternConfig(2), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "pattern", dev.Backend())

	_, err = dev.Open(2)
	assert.ErrorIs(t, err, ErrNoDevice)

	h, err := dev.OpenDefault()
	require.NoError(t, err)
	defer h.Release()

	p, err := h.Parameters()
	require.NoError(t, err)
	w, ht, ok := p.PreviewSize()
	require.True(t, ok)
	assert.Equal(t, [2]int{64, 48}, [2]int{w, ht})
	assert.Equal(t, camera.FocusModeAuto, p.FocusMode())
}

func TestPatternDevice_NoneConfigured(t *testing.T) {
	dev, err := New(patternConfig(0), zap.NewNop())
	require.NoError(t, err)
	_, err = dev.OpenDefault()
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestPatternDevice_Preview(t *testing.T) {
	dev, err := New(patternConfig(1), zap.NewNop())
	require.NoError(t, err)
	h, err := dev.Open(0)
	require.NoError(t, err)

	fb := camera.NewFrameBuffer()
	require.NoError(t, h.SetPreviewTarget(fb))
	require.NoError(t, h.StartPreview())
	require.Eventually(t, func() bool { return fb.FrameCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.AutoFocus())
	require.NoError(t, h.Release())

	assert.Equal(t, image.Rect(0, 0, 64, 48), fb.Read().Bounds())
	assert.Equal(t, 1, h.(*handle).src.(*patternSource).Sweeps())
}

func TestRenderScene(t *testing.T) {
	for scene := 0; scene < 4; scene++ {
		img := renderScene(scene, 32, 24, 0, true)
		assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())
		// Blink block is lit on even seconds, focus bar along the bottom.
		assert.Equal(t, [4]uint8{255, 255, 255, 255}, [4]uint8(img.Pix[0:4]))
		last := img.PixOffset(31, 23)
		assert.Equal(t, [4]uint8{255, 220, 0, 255}, [4]uint8(img.Pix[last:last+4]))
	}
}

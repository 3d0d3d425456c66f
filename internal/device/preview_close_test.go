package device

import (
	"image"
	"sync/atomic"
	"testing"
	"time"

	"camera-preview-go/internal/camera"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// A preview callback that re-registers itself takes the coordinator's
// resource lock from the frame path. Close holds that lock while stopping
// preview, so the two must not wait on each other.
func TestPatternDevice_CloseWhileCallbackRearms(t *testing.T) {
	dev, err := New(patternConfig(1), zap.NewNop())
	require.NoError(t, err)
	c := camera.NewCoordinator(dev, nil, camera.Options{Logger: zap.NewNop()})
	t.Cleanup(c.Shutdown)

	c.Open(0, camera.NewFrameBuffer())
	select {
	case cmp := <-c.Completions():
		c.Complete(cmp)
	case <-time.After(2 * time.Second):
		t.Fatal("open did not complete")
	}
	require.True(t, c.IsOpen())
	require.NoError(t, c.StartPreview())

	var fired atomic.Int32
	var rearm camera.PreviewCallback
	rearm = func(image.Image) {
		fired.Add(1)
		time.Sleep(20 * time.Millisecond)
		c.SetOneShotPreviewCallback(rearm)
	}
	c.SetOneShotPreviewCallback(rearm)
	require.Eventually(t, func() bool { return fired.Load() >= 2 }, 2*time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatalf("Close blocked, state=%s", c.State())
	}
	assert.Equal(t, camera.StateClosed, c.State())
	assert.False(t, c.IsOpen())
}

package camera

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBuffer_EmptyRead(t *testing.T) {
	fb := NewFrameBuffer()
	assert.Nil(t, fb.Read())

	img, n, ok := fb.ReadIfNew(0)
	assert.Nil(t, img)
	assert.Zero(t, n)
	assert.False(t, ok)
	assert.Zero(t, fb.FPS())
	assert.True(t, fb.LastFrameTime().IsZero())
}

func TestFrameBuffer_ReadIfNew(t *testing.T) {
	fb := NewFrameBuffer()
	a := image.NewGray(image.Rect(0, 0, 1, 1))
	b := image.NewGray(image.Rect(0, 0, 2, 2))

	fb.Write(a)
	img, n, ok := fb.ReadIfNew(0)
	require.True(t, ok)
	assert.Same(t, a, img)
	assert.Equal(t, uint64(1), n)

	_, _, ok = fb.ReadIfNew(n)
	assert.False(t, ok)

	fb.Write(b)
	img, n, ok = fb.ReadIfNew(n)
	require.True(t, ok)
	assert.Same(t, b, img)
	assert.Equal(t, uint64(2), n)
	assert.Equal(t, uint64(2), fb.FrameCount())
	assert.Greater(t, fb.FPS(), 0.0)
}

func TestFrameBuffer_Reset(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Write(image.NewGray(image.Rect(0, 0, 1, 1)))
	fb.Reset()

	assert.Nil(t, fb.Read())
	assert.Zero(t, fb.FrameCount())
}

func TestFrameBuffer_ConcurrentWriteRead(t *testing.T) {
	fb := NewFrameBuffer()
	frame := image.NewGray(image.Rect(0, 0, 4, 4))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			fb.Write(frame)
		}
	}()
	go func() {
		defer wg.Done()
		var seen uint64
		for i := 0; i < 1000; i++ {
			if img, n, ok := fb.ReadIfNew(seen); ok {
				seen = n
				assert.NotNil(t, img)
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, uint64(1000), fb.FrameCount())
}

package camera

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// FrameBuffer holds the latest preview frame. It implements Target: the
// preview stream writes at device speed and the UI reads when it redraws.
type FrameBuffer struct {
	// Double buffer; readIndex points at the newest complete frame.
	slots      [2]atomic.Pointer[frameSlot]
	writeIndex atomic.Int32
	readIndex  atomic.Int32

	frameCount  atomic.Uint64
	lastFrameAt atomic.Int64 // unix nanos

	mu      sync.RWMutex
	started time.Time
}

type frameSlot struct {
	img image.Image
}

var _ Target = (*FrameBuffer)(nil)

// NewFrameBuffer returns an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	fb := &FrameBuffer{started: time.Now()}
	fb.readIndex.Store(1)
	return fb
}

// Write stores frame as the latest. It never blocks.
func (fb *FrameBuffer) Write(frame image.Image) {
	w := fb.writeIndex.Load()
	fb.slots[w].Store(&frameSlot{img: frame})

	fb.writeIndex.Store(1 - w)
	fb.readIndex.Store(w)

	fb.frameCount.Add(1)
	fb.lastFrameAt.Store(time.Now().UnixNano())
}

// Read returns the latest frame, or nil before the first Write.
func (fb *FrameBuffer) Read() image.Image {
	s := fb.slots[fb.readIndex.Load()].Load()
	if s == nil {
		return nil
	}
	return s.img
}

// ReadIfNew returns the latest frame when more frames than lastSeen have
// been written, together with the new count.
func (fb *FrameBuffer) ReadIfNew(lastSeen uint64) (image.Image, uint64, bool) {
	n := fb.frameCount.Load()
	if n <= lastSeen {
		return nil, lastSeen, false
	}
	return fb.Read(), n, true
}

// FrameCount returns the number of frames written since the last Reset.
func (fb *FrameBuffer) FrameCount() uint64 {
	return fb.frameCount.Load()
}

// LastFrameTime returns when the latest frame arrived.
func (fb *FrameBuffer) LastFrameTime() time.Time {
	nanos := fb.lastFrameAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// FPS returns the average frame rate since the last Reset, or 0 when no
// frame arrived within the last second.
func (fb *FrameBuffer) FPS() float64 {
	last := fb.LastFrameTime()
	if last.IsZero() || time.Since(last) > time.Second {
		return 0
	}
	fb.mu.RLock()
	up := time.Since(fb.started)
	fb.mu.RUnlock()
	if up <= 0 {
		return 0
	}
	return float64(fb.frameCount.Load()) / up.Seconds()
}

// Reset clears the buffer, typically when the camera closes.
func (fb *FrameBuffer) Reset() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.slots[0].Store(nil)
	fb.slots[1].Store(nil)
	fb.frameCount.Store(0)
	fb.lastFrameAt.Store(0)
	fb.started = time.Now()
}

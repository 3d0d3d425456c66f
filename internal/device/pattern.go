package device

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"
)

// patternRate is the rate the synthetic camera produces frames at,
// independent of the requested preview rate.
const patternRate = 30

// patternSource is a synthetic camera. Each index renders its own scene.
type patternSource struct {
	scene int

	mu        sync.Mutex
	width     int
	height    int
	focusing  bool
	sweeps    int
	streaming bool
	frame     int
	next      time.Time
}

func newPatternSource(cfg config.CameraConfig, index int) (*patternSource, *camera.Parameters) {
	src := &patternSource{scene: index % 4, width: cfg.Width, height: cfg.Height}

	p := camera.NewParameters()
	p.SetPreviewSize(cfg.Width, cfg.Height)
	_ = p.Set(camera.KeyPreviewSizeValues, fmt.Sprintf("320x240,640x480,1280x720,%dx%d", cfg.Width, cfg.Height))
	_ = p.Set(camera.KeyPreviewFormat, "rgba")
	p.SetPreviewFrameRate(cfg.FPS)
	p.SetSupportedFocusModes(camera.FocusModeAuto, camera.FocusModeFixed)
	p.SetFocusMode(camera.FocusModeAuto)
	return src, p
}

func (s *patternSource) Configure(p *camera.Parameters) error {
	w, h, ok := p.PreviewSize()
	if !ok {
		return fmt.Errorf("device: invalid %s", camera.KeyPreviewSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = w, h
	if p.FocusMode() == camera.FocusModeFixed {
		s.focusing = false
	}
	return nil
}

func (s *patternSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = true
	s.next = time.Now()
	return nil
}

func (s *patternSource) Next(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if !s.streaming {
		s.mu.Unlock()
		return nil, fmt.Errorf("device: pattern not streaming")
	}
	wait := time.Until(s.next)
	s.next = s.next.Add(time.Second / patternRate)
	if wait < -time.Second {
		// Fell far behind; resync instead of bursting.
		s.next = time.Now().Add(time.Second / patternRate)
	}
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	w, h, n, focusing := s.width, s.height, s.frame, s.focusing
	s.frame++
	s.mu.Unlock()
	return renderScene(s.scene, w, h, n, focusing), nil
}

func (s *patternSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	return nil
}

func (s *patternSource) Focus(start bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusing = start
	if start {
		s.sweeps++
	}
	return nil
}

// Sweeps returns how many focus sweeps were started.
func (s *patternSource) Sweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func (s *patternSource) Close() error {
	return s.Stop()
}

// renderScene draws frame n of a scene: 0 sky with drifting clouds,
// 1 field with moving markers, 2 urban grid, 3 color ramp. A white
// block top-left blinks once per second; a yellow bar shows a focus sweep.
func renderScene(scene, width, height, n int, focusing bool) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shift := n * 2

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		grad := float64(y) / float64(height)
		for x := 0; x < width; x++ {
			var r, g, b uint8
			switch scene {
			case 0:
				r = uint8(135 * (1 - grad))
				g = uint8(206 * (1 - grad))
				b = uint8(250 * (1 - grad))
				if (x+shift)%80 < 20 && y%60 < 15 {
					r, g, b = 230, 230, 230
				}
			case 1:
				r, g, b = 50+uint8(n%30), 120+uint8(n%40), 50
				if (x+shift)%100 < 10 && y%100 < 10 {
					r, g, b = 255, 100, 100
				}
			case 2:
				gray := 128 + uint8(n%80)
				r, g, b = gray, gray, gray
				if (x%40 < 5 || y%30 < 3) && x+y > 200 {
					r, g, b = 180, 180, 200
				}
			default:
				r = uint8(x + n)
				g = uint8(y + n/2)
				b = uint8(x + y + n/3)
			}

			if (n/patternRate)%2 == 0 && x < 50 && y < 20 {
				r, g, b = 255, 255, 255
			}
			if focusing && y >= height-6 {
				r, g, b = 255, 220, 0
			}

			px := row[x*4 : x*4+4]
			px[0], px[1], px[2], px[3] = r, g, b, 255
		}
	}
	return img
}

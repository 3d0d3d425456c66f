// Package config manages configuration for the camera preview.
//
// Settings come from a YAML file, environment variables and built-in
// defaults, in that order of precedence for the keys each one sets.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Configuration struct
// =============================================================================

// Config holds all runtime configuration values.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Camera      CameraConfig      `yaml:"camera"`
	AutoFocus   AutoFocusConfig   `yaml:"autofocus"`
	Preview     PreviewConfig     `yaml:"preview"`
	Performance PerformanceConfig `yaml:"performance"`
	Worker      WorkerConfig      `yaml:"worker"`
}

// LoggingConfig controls the zap logger and its rotating log file.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	File        string `yaml:"file"`
	MaxBytes    int    `yaml:"max_bytes"`
	BackupCount int    `yaml:"backup_count"`
	Stdout      bool   `yaml:"stdout"`
}

// CameraConfig selects the device backend and the requested capture profile.
type CameraConfig struct {
	Backend string `yaml:"backend"` // v4l2, opencv or pattern
	// Index is the camera to open; negative opens the first available one.
	Index             int    `yaml:"index"`
	Width             int    `yaml:"width"`
	Height            int    `yaml:"height"`
	FPS               int    `yaml:"fps"`
	Format            string `yaml:"format"` // mjpeg or yuyv
	Buffers           int    `yaml:"buffers"`
	ProbeLimit        int    `yaml:"probe_limit"`
	PatternDevices    int    `yaml:"pattern_devices"`
	KillDeviceHolders bool   `yaml:"kill_device_holders"`
}

// AutoFocusConfig controls the periodic focus helper.
type AutoFocusConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// PreviewConfig controls the preview window.
type PreviewConfig struct {
	Orientation  int     `yaml:"orientation"`
	UIFPS        int     `yaml:"ui_fps"`
	NightMode    bool    `yaml:"night_mode"`
	NightBoost   float64 `yaml:"night_boost"`
	WindowWidth  int     `yaml:"window_width"`
	WindowHeight int     `yaml:"window_height"`
}

// PerformanceConfig drives the adaptive frame-rate controller.
type PerformanceConfig struct {
	DynamicFPS        bool          `yaml:"dynamic_fps"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	MinFPS            int           `yaml:"min_fps"`
	FPSStep           int           `yaml:"fps_step"`
	CPULoadThreshold  float64       `yaml:"cpu_load_threshold"`
	CPUTempThresholdC float64       `yaml:"cpu_temp_threshold_c"`
	StressHoldCount   int           `yaml:"stress_hold_count"`
	RecoverHoldCount  int           `yaml:"recover_hold_count"`
}

// WorkerConfig tunes the camera worker and coordinator.
type WorkerConfig struct {
	CompletionBuffer int           `yaml:"completion_buffer"`
	CloseTimeout     time.Duration `yaml:"close_timeout"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:       "info",
			File:        "./logs/camera_preview.log",
			MaxBytes:    5 * 1024 * 1024, // 5 MB
			BackupCount: 3,
			Stdout:      true,
		},
		Camera: CameraConfig{
			Backend:           "v4l2",
			Index:             -1,
			Width:             640,
			Height:            480,
			FPS:               25,
			Format:            "mjpeg",
			Buffers:           4,
			ProbeLimit:        4,
			PatternDevices:    1,
			KillDeviceHolders: true,
		},
		AutoFocus: AutoFocusConfig{
			Enabled:  true,
			Interval: 2 * time.Second,
		},
		Preview: PreviewConfig{
			Orientation:  0,
			UIFPS:        20,
			NightMode:    false,
			NightBoost:   1.6,
			WindowWidth:  800,
			WindowHeight: 600,
		},
		Performance: PerformanceConfig{
			DynamicFPS:        true,
			CheckInterval:     2 * time.Second,
			MinFPS:            10,
			FPSStep:           2,
			CPULoadThreshold:  3.0,
			CPUTempThresholdC: 75.0,
			StressHoldCount:   3,
			RecoverHoldCount:  3,
		},
		Worker: WorkerConfig{
			CompletionBuffer: 8,
			CloseTimeout:     5 * time.Second,
		},
	}
}

// =============================================================================
// Clamping helpers
// =============================================================================

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if hi > lo && v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > lo && v > hi {
		return hi
	}
	return v
}

func atLeast(d, lo time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	return d
}

// =============================================================================
// Load
// =============================================================================

// ConfigPath returns the YAML file path to use, respecting env vars.
func ConfigPath() string {
	if p := os.Getenv("CAMERA_PREVIEW_CONFIG"); p != "" {
		return p
	}
	return "./camera-preview.yaml"
}

// Load reads the YAML file at path (or the default/env path) over the
// defaults. A missing file is not an error. On a parse error the defaults
// are returned together with the error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.applyEnv()
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := cfg.decode(f); err != nil {
		return DefaultConfig(), fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// Parse decodes YAML from r over the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decode(r); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	c.normalize()
	return nil
}

func (c *Config) applyEnv() {
	if logFile := os.Getenv("CAMERA_PREVIEW_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}
}

// normalize clamps every value into its supported range.
func (c *Config) normalize() {
	def := DefaultConfig()

	// logging
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	case "warning":
		c.Logging.Level = "warn"
	default:
		c.Logging.Level = def.Logging.Level
	}
	c.Logging.MaxBytes = clampInt(c.Logging.MaxBytes, 1024, 0)
	c.Logging.BackupCount = clampInt(c.Logging.BackupCount, 1, 0)

	// camera
	c.Camera.Backend = strings.ToLower(strings.TrimSpace(c.Camera.Backend))
	switch c.Camera.Backend {
	case "v4l2", "opencv", "pattern":
	default:
		c.Camera.Backend = def.Camera.Backend
	}
	if c.Camera.Index < -1 {
		c.Camera.Index = -1
	}
	c.Camera.Width = clampInt(c.Camera.Width, 160, 1920)
	c.Camera.Height = clampInt(c.Camera.Height, 120, 1080)
	c.Camera.FPS = clampInt(c.Camera.FPS, 1, 60)
	c.Camera.Format = strings.ToLower(strings.TrimSpace(c.Camera.Format))
	if c.Camera.Format != "mjpeg" && c.Camera.Format != "yuyv" {
		c.Camera.Format = def.Camera.Format
	}
	c.Camera.Buffers = clampInt(c.Camera.Buffers, 2, 16)
	c.Camera.ProbeLimit = clampInt(c.Camera.ProbeLimit, 1, 16)
	c.Camera.PatternDevices = clampInt(c.Camera.PatternDevices, 0, 8)

	// autofocus
	c.AutoFocus.Interval = atLeast(c.AutoFocus.Interval, 250*time.Millisecond)

	// preview
	switch c.Preview.Orientation {
	case 0, 90, 180, 270:
	default:
		c.Preview.Orientation = 0
	}
	c.Preview.UIFPS = clampInt(c.Preview.UIFPS, 1, 60)
	c.Preview.NightBoost = clampFloat(c.Preview.NightBoost, 1.0, 4.0)
	c.Preview.WindowWidth = clampInt(c.Preview.WindowWidth, 320, 3840)
	c.Preview.WindowHeight = clampInt(c.Preview.WindowHeight, 240, 2160)

	// performance
	c.Performance.CheckInterval = atLeast(c.Performance.CheckInterval, 250*time.Millisecond)
	c.Performance.MinFPS = clampInt(c.Performance.MinFPS, 1, 60)
	c.Performance.FPSStep = clampInt(c.Performance.FPSStep, 1, 30)
	c.Performance.CPULoadThreshold = clampFloat(c.Performance.CPULoadThreshold, 0.1, 20.0)
	c.Performance.CPUTempThresholdC = clampFloat(c.Performance.CPUTempThresholdC, 30.0, 100.0)
	c.Performance.StressHoldCount = clampInt(c.Performance.StressHoldCount, 1, 0)
	c.Performance.RecoverHoldCount = clampInt(c.Performance.RecoverHoldCount, 1, 0)

	// worker
	c.Worker.CompletionBuffer = clampInt(c.Worker.CompletionBuffer, 1, 256)
	c.Worker.CloseTimeout = atLeast(c.Worker.CloseTimeout, 100*time.Millisecond)
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks whether the Config values are reasonable and returns
// warnings. Returns ok=false if any setting is critically problematic.
func (c *Config) Validate() (ok bool, warnings []string) {
	ok = true

	pixels := c.Camera.Width * c.Camera.Height
	if pixels > 1280*720 {
		warnings = append(warnings, "High resolution may cause USB bandwidth issues")
	}

	var bandwidth float64
	if c.Camera.Format == "mjpeg" {
		bandwidth = float64(pixels*c.Camera.FPS) * 0.15 / 1024 / 1024
	} else {
		bandwidth = float64(pixels*c.Camera.FPS) * 2 / 1024 / 1024
	}
	if bandwidth > 30 {
		ok = false
		warnings = append(warnings, "Estimated USB bandwidth exceeds safe limits")
	} else if bandwidth > 20 {
		warnings = append(warnings, "Estimated USB bandwidth is high - may cause issues")
	}

	if c.Performance.MinFPS > c.Camera.FPS {
		warnings = append(warnings, fmt.Sprintf("min_fps (%d) > camera fps (%d)", c.Performance.MinFPS, c.Camera.FPS))
	}

	if c.Preview.UIFPS > c.Camera.FPS {
		warnings = append(warnings, fmt.Sprintf("ui_fps (%d) > camera fps (%d) redraws duplicate frames", c.Preview.UIFPS, c.Camera.FPS))
	}

	if c.Camera.Backend == "pattern" && c.Camera.PatternDevices == 0 {
		warnings = append(warnings, "pattern backend with no devices: every open yields no camera")
	}

	return ok, warnings
}

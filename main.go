package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"camera-preview-go/internal/autofocus"
	"camera-preview-go/internal/camera"
	"camera-preview-go/internal/config"
	"camera-preview-go/internal/device"
	"camera-preview-go/internal/helpers"
	"camera-preview-go/internal/perf"
	"camera-preview-go/internal/ui"

	"go.uber.org/zap"
)

// Version information - set by linker flags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	configPath := flag.String("config", "", "Path to YAML config (default: ./camera-preview.yaml or $CAMERA_PREVIEW_CONFIG)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Camera Preview %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", GoVersion)
		fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, cfgErr := config.Load(*configPath)

	logger, logCleanup, err := config.ConfigureLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed: %v\n", err)
		os.Exit(1)
	}
	defer logCleanup()

	if cfgErr != nil {
		logger.Warn("config load failed, using defaults", zap.Error(cfgErr))
	}
	logger.Info("camera preview starting",
		zap.String("version", Version),
		zap.String("backend", cfg.Camera.Backend),
		zap.Int("width", cfg.Camera.Width),
		zap.Int("height", cfg.Camera.Height),
		zap.Int("fps", cfg.Camera.FPS))

	ok, warnings := cfg.Validate()
	if !ok {
		logger.Warn("config validation failed")
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("camera preview failed", zap.Error(err))
		logCleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	dev, err := device.New(cfg.Camera, logger)
	if err != nil {
		return err
	}

	app := ui.NewApp(cfg, logger)
	coord := camera.NewCoordinator(dev, app, camera.Options{
		Logger:           logger,
		CompletionBuffer: cfg.Worker.CompletionBuffer,
		BeforeOpen:       beforeOpen(cfg.Camera, logger),
		AutoFocus: func(h camera.Handle) camera.AutoFocuser {
			return autofocus.New(cfg.AutoFocus, h, logger)
		},
	})
	app.Attach(coord)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	controller := perf.NewAdaptiveController(cfg.Performance, cfg.Camera.FPS, perf.NewMonitor(), coord, logger)
	go func() {
		if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("adaptive frame rate stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		app.Stop()
		app.Quit()
	}()

	app.Run()
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Worker.CloseTimeout)
	defer closeCancel()
	if err := coord.ShutdownContext(closeCtx); err != nil {
		logger.Warn("camera did not release in time", zap.Error(err))
	}
	logger.Info("camera preview stopped")
	return nil
}

// beforeOpen frees the device nodes an open is about to use. It runs on
// the camera worker.
func beforeOpen(cfg config.CameraConfig, logger *zap.Logger) func(int) {
	if !cfg.KillDeviceHolders || cfg.Backend == "pattern" {
		return nil
	}
	killer := helpers.NewHolderKiller(helpers.DefaultGrace, logger)
	return func(index int) {
		var paths []string
		if index >= 0 {
			paths = append(paths, camera.DevicePath(index))
		} else if devices, err := camera.DiscoverDevices(); err == nil {
			for i, d := range devices {
				if i == cfg.ProbeLimit {
					break
				}
				paths = append(paths, d.Path)
			}
		}
		for _, p := range paths {
			if pids := killer.Kill(p); len(pids) > 0 {
				logger.Info("freed camera device", zap.String("path", p), zap.Ints("pids", pids))
			}
		}
	}
}

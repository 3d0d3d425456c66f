package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// Rotating File Writer
// =============================================================================

// RotatingFileWriter is a zapcore.WriteSyncer that rotates its file by size:
// when a write would push the file past maxBytes it is renamed to .1, the
// old .1 to .2, and so on up to backupCount.
type RotatingFileWriter struct {
	mu          sync.Mutex
	path        string
	maxBytes    int64
	backupCount int
	file        *os.File
	size        int64
}

var _ zapcore.WriteSyncer = (*RotatingFileWriter)(nil)

// NewRotatingFileWriter opens path for appending, creating its directory.
// maxBytes <= 0 disables rotation.
func NewRotatingFileWriter(path string, maxBytes, backupCount int) (*RotatingFileWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create log dir: %w", err)
		}
	}

	rw := &RotatingFileWriter{
		path:        path,
		maxBytes:    int64(maxBytes),
		backupCount: backupCount,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingFileWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("config: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("config: stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when needed.
func (rw *RotatingFileWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.maxBytes > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: log rotation failed: %v\n", err)
		}
	}
	if rw.file == nil {
		return 0, os.ErrClosed
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Sync flushes the current file.
func (rw *RotatingFileWriter) Sync() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	return rw.file.Sync()
}

// Close closes the current file.
func (rw *RotatingFileWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

// rotate shifts file -> file.1 -> file.2 ... and reopens a fresh file.
func (rw *RotatingFileWriter) rotate() error {
	if rw.file != nil {
		rw.file.Close()
		rw.file = nil
	}

	for i := rw.backupCount; i > 0; i-- {
		src := rw.path
		if i > 1 {
			src = fmt.Sprintf("%s.%d", rw.path, i-1)
		}
		dst := fmt.Sprintf("%s.%d", rw.path, i)
		_ = os.Remove(dst)
		if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if rw.backupCount <= 0 {
		_ = os.Remove(rw.path)
	}

	return rw.open()
}

// =============================================================================
// ConfigureLogging
// =============================================================================

// ConfigureLogging builds the application logger: a rotating file plus,
// optionally, stdout, both at the configured level. If the log file cannot
// be opened the logger falls back to stdout and a warning is logged.
//
// The returned cleanup flushes and closes the file; call it on shutdown.
func ConfigureLogging(cfg *Config) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("config: log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	var (
		cores   []zapcore.Core
		file    *RotatingFileWriter
		fileErr error
	)
	if cfg.Logging.File != "" {
		file, fileErr = NewRotatingFileWriter(cfg.Logging.File, cfg.Logging.MaxBytes, cfg.Logging.BackupCount)
		if fileErr == nil {
			cores = append(cores, zapcore.NewCore(enc, file, level))
		}
	}
	if cfg.Logging.Stdout || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.Lock(os.Stdout), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if fileErr != nil {
		logger.Warn("file logging disabled", zap.String("file", cfg.Logging.File), zap.Error(fileErr))
	}

	cleanup := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, cleanup, nil
}

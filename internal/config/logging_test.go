package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	rw, err := NewRotatingFileWriter(path, 10, 2)
	require.NoError(t, err)
	defer rw.Close()

	for _, line := range []string{"aaaaaaaa\n", "bbbbbbbb\n", "cccccccc\n", "dddddddd\n"} {
		_, err := rw.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, rw.Sync())

	read := func(p string) string {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "dddddddd\n", read(path))
	assert.Equal(t, "cccccccc\n", read(path+".1"))
	assert.Equal(t, "bbbbbbbb\n", read(path+".2"))
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingFileWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	rw, err := NewRotatingFileWriter(path, 0, 1)
	require.NoError(t, err)
	_, err = rw.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(b))

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestConfigureLogging_WritesToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.File = filepath.Join(t.TempDir(), "preview.log")
	cfg.Logging.Stdout = false
	cfg.Logging.Level = "warn"

	logger, cleanup, err := ConfigureLogging(cfg)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	b, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	out := string(b)
	assert.True(t, strings.Contains(out, "shown"))
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, "WARN")
}

func TestConfigureLogging_BadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	_, _, err := ConfigureLogging(cfg)
	assert.Error(t, err)
}

package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadApplicationConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	writeConfig(t, path, `
name = "custom"
width = 800
height = 600
frame_limit = 10
log_level = "debug"
`)

	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "custom", config.Name)
	assert.Equal(t, uint32(800), config.Width)
	assert.Equal(t, uint32(600), config.Height)
	assert.Equal(t, uint64(10), config.FrameLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, config.FrameBufferCount)
	assert.Equal(t, uint32(1024), config.ViewCapacity)
}

func TestLoadApplicationConfigRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")

	writeConfig(t, path, `width = "not a number"`)
	_, err := LoadApplicationConfig(path)
	assert.Error(t, err)

	writeConfig(t, path, `log_level = "verbose"`)
	_, err = LoadApplicationConfig(path)
	assert.Error(t, err)

	_, err = LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApplyLogLevel(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error", "DEBUG"} {
		c := DefaultApplicationConfig()
		c.LogLevel = level
		assert.NoError(t, c.ApplyLogLevel(), level)
	}

	c := DefaultApplicationConfig()
	c.LogLevel = "loud"
	assert.Error(t, c.ApplyLogLevel())
}

func TestWatchApplicationConfigReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	writeConfig(t, path, `name = "before"`)

	reloaded := make(chan *ApplicationConfig, 4)
	watcher, err := WatchApplicationConfig(path, func(c *ApplicationConfig) {
		reloaded <- c
	})
	require.NoError(t, err)
	defer watcher.Close()

	writeConfig(t, path, `name = "after"`)

	select {
	case config := <-reloaded:
		assert.Equal(t, "after", config.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload never fired")
	}
}

package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/hiroki-sone/prism/engine/core"
)

type ApplicationConfig struct {
	// The application name used for window titles and log lines.
	Name string `toml:"name"`
	// Presentation surface size.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// Swap-chain depth; frames in flight is this minus one.
	FrameBufferCount int `toml:"frame_buffer_count"`
	// Capacity of the shader-visible descriptor table.
	ViewCapacity uint32 `toml:"view_capacity"`
	// One of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// Frames per second the loop throttles to; zero runs uncapped.
	TargetFrameRate uint32 `toml:"target_frame_rate"`
	// Stop after this many presented frames; zero runs until quit.
	FrameLimit uint64 `toml:"frame_limit"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:             "Prism",
		Width:            1280,
		Height:           720,
		FrameBufferCount: 3,
		ViewCapacity:     1024,
		LogLevel:         "info",
		TargetFrameRate:  60,
	}
}

// LoadApplicationConfig reads a TOML config file over the defaults and
// applies the configured log level.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	config := DefaultApplicationConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		core.LogError("failed to read config %q: %s", path, err.Error())
		return nil, err
	}
	if err := toml.Unmarshal(data, config); err != nil {
		core.LogError("failed to parse config %q: %s", path, err.Error())
		return nil, err
	}
	if err := config.ApplyLogLevel(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) ApplyLogLevel() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		core.SetLogLevel(core.InfoLevel)
	case "debug":
		core.SetLogLevel(core.DebugLevel)
	case "warn":
		core.SetLogLevel(core.WarnLevel)
	case "error":
		core.SetLogLevel(core.ErrorLevel)
	default:
		err := fmt.Errorf("unknown log level %q", c.LogLevel)
		core.LogError(err.Error())
		return err
	}
	return nil
}

// WatchApplicationConfig reloads the config whenever the file changes
// and hands the result to onReload. Close the returned watcher to stop.
// A file that becomes unparseable keeps the previous configuration.
func WatchApplicationConfig(path string, onReload func(*ApplicationConfig)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		core.LogError("failed to watch config %q: %s", path, err.Error())
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				config, err := LoadApplicationConfig(path)
				if err != nil {
					core.LogWarn("config reload skipped: %s", err.Error())
					continue
				}
				core.LogInfo("config %q reloaded", path)
				onReload(config)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				core.LogWarn("config watcher: %s", err.Error())
			}
		}
	}()

	return watcher, nil
}

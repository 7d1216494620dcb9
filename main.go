/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hiroki-sone/prism/engine"
	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/soft"
	"github.com/hiroki-sone/prism/testbed"
)

const configPath = "prism.toml"

func main() {
	config := engine.DefaultApplicationConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := engine.LoadApplicationConfig(configPath)
		if err != nil {
			panic(err)
		}
		config = loaded
	}

	tb, err := testbed.NewTestGame(config)
	if err != nil {
		panic(err)
	}

	dev := soft.New()
	presenter, err := dev.CreatePresenter(config.FrameBufferCount, config.Width, config.Height)
	if err != nil {
		panic(err)
	}

	e, err := engine.New(tb.Game, dev, presenter)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	if watcher, err := engine.WatchApplicationConfig(configPath, func(c *engine.ApplicationConfig) {
		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_CONFIG_RELOADED,
			Data: c,
		})
	}); err == nil {
		defer watcher.Close()
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}()

	// run engine
	if err := e.Run(); err != nil {
		panic(err)
	}
}

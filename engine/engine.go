package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer"
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game

	dev       device.Device
	presenter device.Presenter

	// Written from the event-dispatch goroutine, read by the frame
	// loop.
	isRunning atomic.Bool

	width  uint32
	height uint32

	clock    *core.Clock
	lastTime float64
}

func New(g *Game, dev device.Device, presenter device.Presenter) (*Engine, error) {
	if g.ApplicationConfig == nil {
		return nil, fmt.Errorf("engine: game has no application config")
	}
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		dev:          dev,
		presenter:    presenter,
		clock:        core.NewClock(),
		width:        g.ApplicationConfig.Width,
		height:       g.ApplicationConfig.Height,
	}
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_DEVICE_LOST, e.onEvent)
	core.EventRegister(core.EVENT_CODE_CONFIG_RELOADED, e.onConfigReloaded)

	config := e.gameInstance.ApplicationConfig
	if err := renderer.Initialize(e.dev, e.presenter, renderer.Config{
		AppName:          config.Name,
		Width:            config.Width,
		Height:           config.Height,
		FrameBufferCount: config.FrameBufferCount,
		ViewCapacity:     config.ViewCapacity,
	}); err != nil {
		core.LogError(err.Error())
		return err
	}

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	// start goroutine to process all the events around the engine
	go core.ProcessEvents()

	config := e.gameInstance.ApplicationConfig
	var targetFrameSeconds float64
	if config.TargetFrameRate > 0 {
		targetFrameSeconds = 1.0 / float64(config.TargetFrameRate)
	}

	for e.isRunning.Load() {
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.gameInstance.FnUpdate(delta, currentTime); err != nil {
			core.LogError("game update failed, shutting down: %s", err.Error())
			e.isRunning.Store(false)
			break
		}

		err := renderer.PresentFrame(func(ctx *gpu.CommandContext, backBuffer device.Buffer, rtv gpu.Rtv) error {
			return e.gameInstance.FnRender(ctx, backBuffer, rtv, delta)
		})
		if err != nil {
			core.LogError("frame presentation failed, shutting down: %s", err.Error())
			e.isRunning.Store(false)
			break
		}

		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_FRAME_PRESENTED,
			Data: renderer.FrameCount(),
		})

		if config.FrameLimit > 0 && renderer.FrameCount() >= config.FrameLimit {
			core.LogInfo("frame limit %d reached, stopping", config.FrameLimit)
			e.isRunning.Store(false)
			break
		}

		e.clock.Update()
		frameElapsed := e.clock.Elapsed() - currentTime
		core.MetricsUpdate(frameElapsed)

		// If there is time left, give it back to the OS.
		if remaining := targetFrameSeconds - frameElapsed; remaining > 0 {
			time.Sleep(time.Duration(remaining * float64(time.Second)))
		}

		e.lastTime = currentTime
	}

	return e.Shutdown()
}

// Stop ends the frame loop after the current iteration.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError(err.Error())
		}
	}
	if err := renderer.Shutdown(); err != nil {
		return err
	}
	return core.EventSystemShutdown()
}

// GetFramebufferSize returns the width and height (in this order)
// of the presentation surface.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
	case core.EVENT_CODE_DEVICE_LOST:
		core.LogError("device lost: %v", context.Data)
		e.isRunning.Store(false)
	}
}

func (e *Engine) onConfigReloaded(context core.EventContext) {
	config, ok := context.Data.(*ApplicationConfig)
	if !ok {
		core.LogError("wrong event data associated with the event type `%d`", context.Type)
		return
	}
	// Only the log level and frame pacing can change at runtime; the
	// device objects were sized by the boot config.
	e.gameInstance.ApplicationConfig.LogLevel = config.LogLevel
	e.gameInstance.ApplicationConfig.TargetFrameRate = config.TargetFrameRate
	core.LogInfo("runtime config applied: log_level=%s target_frame_rate=%d",
		config.LogLevel, config.TargetFrameRate)
}

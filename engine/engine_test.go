package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer"
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
	"github.com/hiroki-sone/prism/engine/renderer/soft"
)

// The quit event is delivered on the event-dispatch goroutine while
// the frame loop is reading the running flag, so this exercises the
// cross-goroutine stop path end to end.
func TestRunStopsOnQuitEvent(t *testing.T) {
	config := DefaultApplicationConfig()
	config.TargetFrameRate = 0
	config.FrameLimit = 10000

	g := &Game{
		ApplicationConfig: config,
		FnInitialize:      func() error { return nil },
		FnUpdate:          func(deltaTime, elapsed float64) error { return nil },
		FnRender: func(ctx *gpu.CommandContext, backBuffer device.Buffer, rtv gpu.Rtv, deltaTime float64) error {
			return nil
		},
		FnOnResize: func(width, height uint32) error { return nil },
	}

	dev := soft.New()
	presenter, err := dev.CreatePresenter(config.FrameBufferCount, config.Width, config.Height)
	require.NoError(t, err)

	e, err := New(g, dev, presenter)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	quitSent := false
	core.EventRegister(core.EVENT_CODE_FRAME_PRESENTED, func(core.EventContext) {
		if !quitSent {
			quitSent = true
			core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		}
	})

	require.NoError(t, e.Run())
	assert.False(t, e.isRunning.Load())
	assert.Less(t, renderer.FrameCount(), config.FrameLimit,
		"loop must end on the quit event, not the frame limit")
}

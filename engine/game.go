package engine

import (
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime, elapsed float64) error
type Render func(ctx *gpu.CommandContext, backBuffer device.Buffer, rtv gpu.Rtv, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error

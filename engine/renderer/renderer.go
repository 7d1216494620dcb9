package renderer

import (
	"fmt"
	"sync"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/device"
	"github.com/hiroki-sone/prism/engine/renderer/gpu"
)

const (
	// DefaultFrameBufferCount keeps three frames in flight: the CPU
	// records frame N while the GPU drains N-1 and N-2.
	DefaultFrameBufferCount = 3

	defaultViewCapacity = 1024
)

type Config struct {
	AppName string
	Width   uint32
	Height  uint32

	// FrameBufferCount is the swap-chain depth; zero means
	// DefaultFrameBufferCount.
	FrameBufferCount int

	// ViewCapacity bounds the shader-visible descriptor table; zero
	// means defaultViewCapacity.
	ViewCapacity uint32

	// DisableVSync presents without waiting for vertical blank.
	DisableVSync bool
}

// FrameRecorder records one frame's commands. The back buffer is
// already in render-target state with its view cleared; the recorder
// must not close or submit the list.
type FrameRecorder func(ctx *gpu.CommandContext, backBuffer device.Buffer, rtv gpu.Rtv) error

// Renderer owns the frame loop's device objects: the graphics and copy
// queues, the descriptor heaps and the presenter, plus the per-back-
// buffer fence values that pace the CPU against the GPU.
type Renderer struct {
	dev       device.Device
	presenter device.Presenter

	gfxQueue  *gpu.CommandQueue
	copyQueue *gpu.CommandQueue

	views   *gpu.CbvSrvUavHeap
	rtvHeap *gpu.RtvHeap
	dsvHeap *gpu.DsvHeap

	backBufferRtvs []gpu.Rtv

	frameFenceValues []gpu.FenceValue
	frameIndex       int
	frameCount       uint64
	vsync            bool

	shutdown bool
}

var initRenderer sync.Once
var renderer *Renderer

// Initialize builds the singleton renderer over an already-created
// device and presenter. Device validation messages are routed into the
// engine log.
func Initialize(dev device.Device, presenter device.Presenter, config Config) error {
	var err error
	initRenderer.Do(func() {
		renderer, err = newRenderer(dev, presenter, config)
	})
	if err != nil {
		return err
	}
	if renderer == nil {
		return fmt.Errorf("renderer: initialization previously failed")
	}
	core.LogInfo("renderer initialized: %q %dx%d, %d frame buffers",
		config.AppName, config.Width, config.Height, presenter.BackBufferCount())
	return nil
}

func newRenderer(dev device.Device, presenter device.Presenter, config Config) (*Renderer, error) {
	dev.SetMessageCallback(logDeviceMessage)

	viewCapacity := config.ViewCapacity
	if viewCapacity == 0 {
		viewCapacity = defaultViewCapacity
	}

	r := &Renderer{dev: dev, presenter: presenter, vsync: !config.DisableVSync}

	var err error
	if r.gfxQueue, err = gpu.NewCommandQueue(dev, "gfx_queue"); err != nil {
		return nil, err
	}
	if r.copyQueue, err = gpu.NewCommandQueue(dev, "copy_queue"); err != nil {
		r.gfxQueue.Shutdown()
		return nil, err
	}

	release := func() {
		r.gfxQueue.Shutdown()
		r.copyQueue.Shutdown()
		if r.views != nil {
			r.views.Release()
		}
		if r.rtvHeap != nil {
			r.rtvHeap.Release()
		}
	}

	if r.views, err = gpu.NewCbvSrvUavHeap(dev, viewCapacity, "resource_views"); err != nil {
		release()
		return nil, err
	}

	bufferCount := presenter.BackBufferCount()
	if config.FrameBufferCount != 0 && config.FrameBufferCount != bufferCount {
		core.LogWarn("configured frame_buffer_count %d ignored, presenter has %d back buffers",
			config.FrameBufferCount, bufferCount)
	}
	if r.rtvHeap, err = gpu.NewRtvHeap(dev, uint32(bufferCount), "render_target_views"); err != nil {
		release()
		return nil, err
	}
	if r.dsvHeap, err = gpu.NewDsvHeap(dev, 1, "depth_stencil_views"); err != nil {
		release()
		return nil, err
	}

	r.backBufferRtvs = make([]gpu.Rtv, bufferCount)
	for i := 0; i < bufferCount; i++ {
		r.backBufferRtvs[i] = r.rtvHeap.CreateRtv(presenter.BackBuffer(i))
	}

	r.frameFenceValues = make([]gpu.FenceValue, bufferCount)
	r.frameIndex = presenter.CurrentBackBufferIndex()
	return r, nil
}

func logDeviceMessage(severity device.Severity, id uint32, message string) {
	switch severity {
	case device.SeverityError:
		core.LogError("device [%d]: %s", id, message)
	case device.SeverityWarning:
		core.LogWarn("device [%d]: %s", id, message)
	default:
		core.LogDebug("device [%d]: %s", id, message)
	}
}

func Device() device.Device        { return renderer.dev }
func GfxQueue() *gpu.CommandQueue  { return renderer.gfxQueue }
func CopyQueue() *gpu.CommandQueue { return renderer.copyQueue }
func Views() *gpu.CbvSrvUavHeap    { return renderer.views }
func FrameCount() uint64           { return renderer.frameCount }
func CurrentBackBufferIndex() int  { return renderer.frameIndex }

// PresentFrame runs one iteration of the frame loop: record through
// the callback, submit, present and block until the incoming back
// buffer's previous use has drained.
func PresentFrame(record FrameRecorder) error {
	return renderer.presentFrame(record)
}

func (r *Renderer) presentFrame(record FrameRecorder) error {
	ctx, err := r.gfxQueue.RequestContext()
	if err != nil {
		return err
	}
	list := ctx.CommandList()

	backBuffer := r.presenter.BackBuffer(r.frameIndex)
	rtv := r.backBufferRtvs[r.frameIndex]

	list.ResourceBarrier([]device.Barrier{
		gpu.TransitionBarrier(backBuffer, device.ResourceStatePresent, device.ResourceStateRenderTarget),
	})
	list.ClearRenderTargetView(rtv.CPUHandle(), [4]float32{0, 0, 0, 1})

	if record != nil {
		if err := record(ctx, backBuffer, rtv); err != nil {
			core.LogError(err.Error())
			r.gfxQueue.Discard(ctx)
			return err
		}
	}

	list.ResourceBarrier([]device.Barrier{
		gpu.TransitionBarrier(backBuffer, device.ResourceStateRenderTarget, device.ResourceStatePresent),
	})

	fenceValue, err := r.gfxQueue.Execute(ctx)
	if err != nil {
		return err
	}

	if err := r.presenter.Present(r.vsync); err != nil {
		core.LogError(err.Error())
		return err
	}

	// Pace against the frame that last used the incoming back buffer.
	r.frameFenceValues[r.frameIndex] = fenceValue
	r.frameIndex = r.presenter.CurrentBackBufferIndex()
	if err := r.gfxQueue.Wait(r.frameFenceValues[r.frameIndex]); err != nil {
		return err
	}

	r.frameCount++
	return nil
}

// Flush drains both queues.
func Flush() error {
	if err := renderer.gfxQueue.Flush(); err != nil {
		return err
	}
	return renderer.copyQueue.Flush()
}

// Shutdown flushes and releases everything the renderer owns. Safe to
// call more than once.
func Shutdown() error {
	return renderer.doShutdown()
}

func (r *Renderer) doShutdown() error {
	if r.shutdown {
		return nil
	}
	r.shutdown = true

	r.gfxQueue.Shutdown()
	r.copyQueue.Shutdown()
	r.views.Release()
	r.rtvHeap.Release()
	r.dsvHeap.Release()
	r.presenter.Release()

	core.LogInfo("renderer shut down after %d frames", r.frameCount)
	return nil
}

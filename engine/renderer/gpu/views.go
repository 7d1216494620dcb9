package gpu

import (
	"fmt"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

// Typed view handles. Cbv/Srv/Uav carry the table index shaders use
// for bindless access; Rtv/Dsv carry the CPU-side slot handle. Handles
// are stable for the lifetime of the heap that issued them.

// Cbv is a constant-buffer view handle.
type Cbv struct {
	handle uint32
}

func (v Cbv) Handle() uint32 { return v.handle }

// Srv is a shader-resource view handle.
type Srv struct {
	handle uint32
}

func (v Srv) Handle() uint32 { return v.handle }

// Uav is an unordered-access view handle.
type Uav struct {
	handle uint32
}

func (v Uav) Handle() uint32 { return v.handle }

// Rtv is a render-target view handle.
type Rtv struct {
	cpuHandle device.CPUHandle
}

func (v Rtv) CPUHandle() device.CPUHandle { return v.cpuHandle }

// Dsv is a depth-stencil view handle.
type Dsv struct {
	cpuHandle device.CPUHandle
}

func (v Dsv) CPUHandle() device.CPUHandle { return v.cpuHandle }

// viewHeap is the shared bump-allocation core: slots are handed out in
// call order and never freed. Running past capacity is a programming
// error, not a runtime condition.
type viewHeap struct {
	heap      device.DescriptorHeap
	label     string
	viewCount uint32
	capacity  uint32
}

func newViewHeap(dev device.Device, kind device.DescriptorHeapKind, capacity uint32, label string) (viewHeap, error) {
	if capacity == 0 {
		panic(fmt.Sprintf("descriptor heap %q: capacity must be positive", label))
	}
	heap, err := dev.CreateDescriptorHeap(kind, capacity, label)
	if err != nil {
		core.LogError(err.Error())
		return viewHeap{}, err
	}
	return viewHeap{heap: heap, label: label, capacity: capacity}, nil
}

func (h *viewHeap) nextSlot() uint32 {
	if h.viewCount >= h.capacity {
		panic(fmt.Sprintf("descriptor heap %q: capacity %d exceeded", h.label, h.capacity))
	}
	slot := h.viewCount
	h.viewCount++
	return slot
}

func (h *viewHeap) ViewCount() uint32 {
	return h.viewCount
}

func (h *viewHeap) Heap() device.DescriptorHeap {
	return h.heap
}

func (h *viewHeap) Release() {
	h.heap.Release()
}

// CbvSrvUavHeap is the shader-visible resource table.
type CbvSrvUavHeap struct {
	viewHeap
}

func NewCbvSrvUavHeap(dev device.Device, capacity uint32, label string) (*CbvSrvUavHeap, error) {
	vh, err := newViewHeap(dev, device.DescriptorHeapCbvSrvUav, capacity, label)
	if err != nil {
		return nil, err
	}
	return &CbvSrvUavHeap{viewHeap: vh}, nil
}

func (h *CbvSrvUavHeap) CreateCbv(desc device.ConstantBufferViewDesc) Cbv {
	slot := h.nextSlot()
	h.heap.WriteConstantBufferView(slot, desc)
	return Cbv{handle: slot}
}

// CreateSrv writes a shader-resource view. resource is nil for
// acceleration-structure views: their location comes from the GPU
// address in the desc.
func (h *CbvSrvUavHeap) CreateSrv(resource device.Buffer, desc device.ShaderResourceViewDesc) Srv {
	slot := h.nextSlot()
	h.heap.WriteShaderResourceView(slot, resource, desc)
	return Srv{handle: slot}
}

func (h *CbvSrvUavHeap) CreateUav(resource device.Buffer, desc device.UnorderedAccessViewDesc) Uav {
	slot := h.nextSlot()
	h.heap.WriteUnorderedAccessView(slot, resource, desc)
	return Uav{handle: slot}
}

// RtvHeap holds render-target views.
type RtvHeap struct {
	viewHeap
}

func NewRtvHeap(dev device.Device, capacity uint32, label string) (*RtvHeap, error) {
	vh, err := newViewHeap(dev, device.DescriptorHeapRtv, capacity, label)
	if err != nil {
		return nil, err
	}
	return &RtvHeap{viewHeap: vh}, nil
}

func (h *RtvHeap) CreateRtv(resource device.Buffer) Rtv {
	slot := h.nextSlot()
	h.heap.WriteRenderTargetView(slot, resource)
	return Rtv{cpuHandle: h.heap.CPUHandleAt(slot)}
}

// DsvHeap holds depth-stencil views.
type DsvHeap struct {
	viewHeap
}

func NewDsvHeap(dev device.Device, capacity uint32, label string) (*DsvHeap, error) {
	vh, err := newViewHeap(dev, device.DescriptorHeapDsv, capacity, label)
	if err != nil {
		return nil, err
	}
	return &DsvHeap{viewHeap: vh}, nil
}

func (h *DsvHeap) CreateDsv(resource device.Buffer) Dsv {
	slot := h.nextSlot()
	h.heap.WriteDepthStencilView(slot, resource)
	return Dsv{cpuHandle: h.heap.CPUHandleAt(slot)}
}

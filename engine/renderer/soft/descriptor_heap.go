package soft

import (
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

const descriptorIncrement = 32

type slotKind int

const (
	slotEmpty slotKind = iota
	slotCbv
	slotSrv
	slotUav
	slotRtv
	slotDsv
)

type slot struct {
	kind slotKind

	cbv device.ConstantBufferViewDesc
	srv device.ShaderResourceViewDesc
	uav device.UnorderedAccessViewDesc

	resource device.Buffer
}

type descriptorHeap struct {
	dev      *Device
	kind     device.DescriptorHeapKind
	capacity uint32
	label    string
	base     uint64
	slots    []slot
}

func (h *descriptorHeap) Kind() device.DescriptorHeapKind {
	return h.kind
}

func (h *descriptorHeap) Capacity() uint32 {
	return h.capacity
}

func (h *descriptorHeap) CPUHandleAt(index uint32) device.CPUHandle {
	return device.CPUHandle{Ptr: h.base + uint64(index)*descriptorIncrement}
}

func (h *descriptorHeap) WriteConstantBufferView(index uint32, desc device.ConstantBufferViewDesc) {
	if !h.check(index) {
		return
	}
	h.slots[index] = slot{kind: slotCbv, cbv: desc}
}

func (h *descriptorHeap) WriteShaderResourceView(index uint32, resource device.Buffer, desc device.ShaderResourceViewDesc) {
	if !h.check(index) {
		return
	}
	h.slots[index] = slot{kind: slotSrv, srv: desc, resource: resource}
}

func (h *descriptorHeap) WriteUnorderedAccessView(index uint32, resource device.Buffer, desc device.UnorderedAccessViewDesc) {
	if !h.check(index) {
		return
	}
	h.slots[index] = slot{kind: slotUav, uav: desc, resource: resource}
}

func (h *descriptorHeap) WriteRenderTargetView(index uint32, resource device.Buffer) {
	if !h.check(index) {
		return
	}
	h.slots[index] = slot{kind: slotRtv, resource: resource}
}

func (h *descriptorHeap) WriteDepthStencilView(index uint32, resource device.Buffer) {
	if !h.check(index) {
		return
	}
	h.slots[index] = slot{kind: slotDsv, resource: resource}
}

func (h *descriptorHeap) Release() {}

func (h *descriptorHeap) check(index uint32) bool {
	if index >= h.capacity {
		h.dev.emit(device.SeverityError, MsgHeapIndexOutOfRange,
			"descriptor heap %q: index %d out of range (capacity %d)", h.label, index, h.capacity)
		return false
	}
	return true
}

// SlotSRV exposes the shader-resource view written at index for test
// inspection.
func (h *descriptorHeap) SlotSRV(index uint32) (device.ShaderResourceViewDesc, bool) {
	if index >= h.capacity || h.slots[index].kind != slotSrv {
		return device.ShaderResourceViewDesc{}, false
	}
	return h.slots[index].srv, true
}

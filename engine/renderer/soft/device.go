// Package soft implements the device contract entirely in memory. It
// models the observable behavior the renderer core depends on: a GPU
// timeline advanced through fence signals, unique virtual addresses
// per allocation, prebuild sizing that grows with input size, and a
// validation layer that reports misuse through the message callback.
//
// Fence completion is immediate by default (a GPU that never falls
// behind). Tests call HoldCompletion to model in-flight work and
// CompleteTo to retire it.
package soft

import (
	"fmt"
	"sync"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/math"
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

// Validation message ids, in the spirit of a debug layer.
const (
	MsgUnclosedListSubmitted uint32 = 1001
	MsgZeroGeometryBuild     uint32 = 1002
	MsgWriteToDefaultHeap    uint32 = 1003
	MsgHeapIndexOutOfRange   uint32 = 1004
	MsgUseAfterRelease       uint32 = 1005
)

const addressAlignment = 256

type Device struct {
	mu sync.Mutex

	nextAddress uint64
	fences      []*fence

	hold bool

	callback device.MessageCallback
}

func New() *Device {
	return &Device{
		// Never hand out address zero: zero means "no buffer" in
		// build descriptors.
		nextAddress: 0x10000,
	}
}

func (d *Device) CreateQueue(label string) (device.SubmitQueue, error) {
	return &queue{dev: d, label: label}, nil
}

func (d *Device) CreateFence(initial uint64) (device.Fence, error) {
	f := newFence(initial)
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) CreateCommandAllocator(label string) (device.CommandAllocator, error) {
	if label == "" {
		label = core.GenerateLabel("command_allocator")
	}
	return &allocator{label: label}, nil
}

func (d *Device) CreateCommandList(alloc device.CommandAllocator, label string) (device.CommandList, error) {
	a, ok := alloc.(*allocator)
	if !ok {
		return nil, fmt.Errorf("allocator %v was not created by this device", alloc)
	}
	if label == "" {
		label = core.GenerateLabel("command_list")
	}
	// Lists are born recording, matching native command-list creation.
	return &commandList{dev: d, alloc: a, label: label, state: listStateRecording}, nil
}

func (d *Device) CreateBuffer(desc device.BufferDesc) (device.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: zero-sized allocation", desc.Label)
	}
	label := desc.Label
	if label == "" {
		label = core.GenerateLabel("buffer")
	}

	b := &buffer{
		dev:     d,
		desc:    desc,
		label:   label,
		address: d.allocateAddress(desc.Size),
	}
	if desc.Heap == device.HeapTypeUpload {
		b.data = make([]byte, desc.Size)
	}
	return b, nil
}

func (d *Device) CreateDescriptorHeap(kind device.DescriptorHeapKind, capacity uint32, label string) (device.DescriptorHeap, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("descriptor heap %q: zero capacity", label)
	}
	return &descriptorHeap{
		dev:      d,
		kind:     kind,
		capacity: capacity,
		label:    label,
		base:     d.allocateAddress(uint64(capacity) * descriptorIncrement),
		slots:    make([]slot, capacity),
	}, nil
}

// AccelerationStructurePrebuildInfo sizes buffers deterministically and
// monotonically in the input count, so growth paths behave like a real
// driver's.
func (d *Device) AccelerationStructurePrebuildInfo(inputs device.BuildInputs) device.PrebuildInfo {
	var n uint64
	if inputs.Kind == device.StructureBottomLevel {
		n = uint64(len(inputs.Geometries))
		return device.PrebuildInfo{
			ResultDataMaxSize:     256 + 1024*n,
			ScratchDataSize:       256 + 512*n,
			UpdateScratchDataSize: 128 + 256*n,
		}
	}
	n = uint64(inputs.InstanceCount)
	return device.PrebuildInfo{
		ResultDataMaxSize:     256 + 64*n,
		ScratchDataSize:       256 + 32*n,
		UpdateScratchDataSize: 128 + 16*n,
	}
}

func (d *Device) SetMessageCallback(cb device.MessageCallback) {
	d.mu.Lock()
	d.callback = cb
	d.mu.Unlock()
}

// HoldCompletion stops fence signals from retiring immediately; the
// simulated GPU now lags until CompleteTo or ReleaseCompletion.
func (d *Device) HoldCompletion() {
	d.mu.Lock()
	d.hold = true
	d.mu.Unlock()
}

// CompleteTo retires all signaled work up to value on every fence.
func (d *Device) CompleteTo(value uint64) {
	d.mu.Lock()
	fences := append([]*fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.completeTo(value)
	}
}

// ReleaseCompletion retires everything signaled so far and restores
// immediate completion.
func (d *Device) ReleaseCompletion() {
	d.mu.Lock()
	d.hold = false
	fences := append([]*fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.completeAll()
	}
}

// MarkLost simulates device removal: pending and future waits fail.
func (d *Device) MarkLost() {
	d.mu.Lock()
	fences := append([]*fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.markLost()
	}
}

func (d *Device) allocateAddress(size uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.nextAddress
	d.nextAddress += math.AlignUp(size, uint64(addressAlignment))
	return addr
}

func (d *Device) emit(severity device.Severity, id uint32, format string, args ...interface{}) {
	d.mu.Lock()
	cb := d.callback
	d.mu.Unlock()
	if cb != nil {
		cb(severity, id, fmt.Sprintf(format, args...))
	}
}

func (d *Device) holding() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hold
}

type queue struct {
	dev   *Device
	label string

	executed int
}

// Execute validates and accepts a closed command list. Build commands
// recorded on the list were already checked at record time; execution
// itself is a no-op on the simulated timeline.
func (q *queue) Execute(list device.CommandList) error {
	cl, ok := list.(*commandList)
	if !ok {
		return fmt.Errorf("queue %q: command list was not created by this device", q.label)
	}
	if cl.state != listStateClosed {
		q.dev.emit(device.SeverityError, MsgUnclosedListSubmitted,
			"queue %q: command list %q submitted without Close", q.label, cl.label)
		return fmt.Errorf("queue %q: command list %q is not closed", q.label, cl.label)
	}
	cl.state = listStateSubmitted
	q.executed++
	return nil
}

func (q *queue) Signal(f device.Fence, value uint64) error {
	sf, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("queue %q: fence was not created by this device", q.label)
	}
	sf.signal(value, !q.dev.holding())
	return nil
}

func (q *queue) Release() {}

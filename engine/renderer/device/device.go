package device

// Device is the native GPU handle every component receives by
// reference. It creates queues, synchronization and memory objects and
// answers acceleration-structure sizing queries. The owner of the
// Device must outlive every component holding the reference.
type Device interface {
	CreateQueue(label string) (SubmitQueue, error)
	CreateFence(initial uint64) (Fence, error)
	CreateCommandAllocator(label string) (CommandAllocator, error)
	CreateCommandList(allocator CommandAllocator, label string) (CommandList, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateDescriptorHeap(kind DescriptorHeapKind, capacity uint32, label string) (DescriptorHeap, error)

	// AccelerationStructurePrebuildInfo reports the result/scratch
	// sizes required to build the structure described by inputs.
	AccelerationStructurePrebuildInfo(inputs BuildInputs) PrebuildInfo

	// SetMessageCallback registers the validation-layer sink. Logging
	// only, never control flow.
	SetMessageCallback(cb MessageCallback)
}

// SubmitQueue is the device-side execution port commands are submitted
// to. Fence signals submitted here complete in submission order.
type SubmitQueue interface {
	Execute(list CommandList) error
	Signal(fence Fence, value uint64) error
	Release()
}

// Fence is a monotonically increasing counter shared between CPU and
// GPU. A value is completed once the device-reported counter reaches
// it.
type Fence interface {
	CompletedValue() uint64
	// Wait blocks the calling thread until the completed value reaches
	// value. No timeout: a device that never signals is considered
	// lost, and an error here is unrecoverable.
	Wait(value uint64) error
	Release()
}

// CommandAllocator is the backing memory command lists record into. It
// must not be reset while the GPU may still be reading from it.
type CommandAllocator interface {
	Reset() error
	Release()
}

// CommandList records GPU commands. A closed list can be reset against
// a fresh allocator as soon as it has been submitted; the allocator is
// the fenced resource, not the list.
type CommandList interface {
	Reset(allocator CommandAllocator) error
	Close() error

	ResourceBarrier(barriers []Barrier)
	BuildAccelerationStructure(desc BuildDesc)
	CopyBufferRegion(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)
	ClearRenderTargetView(rtv CPUHandle, color [4]float32)

	Release()
}

// Buffer is a committed GPU resource. Write is only valid on
// upload-heap buffers.
type Buffer interface {
	GPUVirtualAddress() uint64
	Size() uint64
	Write(offset uint64, data []byte) error
	Label() string
	Release()
}

// DescriptorHeap is the fixed-capacity backing table view descriptions
// are written into. Slot bookkeeping lives in the gpu package; the
// device only materializes views at a given index.
type DescriptorHeap interface {
	Kind() DescriptorHeapKind
	Capacity() uint32
	CPUHandleAt(index uint32) CPUHandle

	WriteConstantBufferView(index uint32, desc ConstantBufferViewDesc)
	WriteShaderResourceView(index uint32, resource Buffer, desc ShaderResourceViewDesc)
	WriteUnorderedAccessView(index uint32, resource Buffer, desc UnorderedAccessViewDesc)
	WriteRenderTargetView(index uint32, resource Buffer)
	WriteDepthStencilView(index uint32, resource Buffer)

	Release()
}

// Presenter abstracts the swap chain: the renderer only needs the
// rotating back-buffer index and a present call.
type Presenter interface {
	BackBufferCount() int
	CurrentBackBufferIndex() int
	BackBuffer(index int) Buffer
	Present(vsync bool) error
	Release()
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// MessageCallback receives validation messages from the device debug
// layer.
type MessageCallback func(severity Severity, id uint32, text string)

// CPUHandle addresses a single descriptor slot for CPU-side use
// (render-target and depth-stencil binding).
type CPUHandle struct {
	Ptr uint64
}

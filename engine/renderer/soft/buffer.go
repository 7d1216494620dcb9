package soft

import (
	"fmt"

	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

type buffer struct {
	dev      *Device
	desc     device.BufferDesc
	label    string
	address  uint64
	data     []byte // upload heap only
	released bool
}

func (b *buffer) GPUVirtualAddress() uint64 {
	return b.address
}

func (b *buffer) Size() uint64 {
	return b.desc.Size
}

func (b *buffer) Write(offset uint64, data []byte) error {
	if b.released {
		b.dev.emit(device.SeverityError, MsgUseAfterRelease, "buffer %q written after release", b.label)
		return fmt.Errorf("buffer %q: write: %w", b.label, core.ErrReleased)
	}
	if b.desc.Heap != device.HeapTypeUpload {
		b.dev.emit(device.SeverityError, MsgWriteToDefaultHeap,
			"buffer %q is not CPU-mappable (heap %d)", b.label, b.desc.Heap)
		return fmt.Errorf("buffer %q: not an upload-heap resource", b.label)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("buffer %q: write of %d bytes at %d exceeds size %d",
			b.label, len(data), offset, b.desc.Size)
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) Label() string {
	return b.label
}

func (b *buffer) Release() {
	b.released = true
}

// Contents exposes upload-heap bytes for test inspection.
func (b *buffer) Contents() []byte {
	return b.data
}

package gpu

import (
	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

// CreateBuffer allocates a committed buffer, logging the failure site
// so diagnostics name the resource that could not be built.
func CreateBuffer(dev device.Device, size uint64, heap device.HeapType, flags device.ResourceFlags, state device.ResourceState, label string) (device.Buffer, error) {
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Size:         size,
		Heap:         heap,
		Flags:        flags,
		InitialState: state,
		Label:        label,
	})
	if err != nil {
		core.LogError("failed to create buffer %q: %s", label, err.Error())
		return nil, err
	}
	return buf, nil
}

// CreateBufferWithData allocates an upload-heap buffer holding data.
func CreateBufferWithData(dev device.Device, flags device.ResourceFlags, state device.ResourceState, data []byte, label string) (device.Buffer, error) {
	buf, err := CreateBuffer(dev, uint64(len(data)), device.HeapTypeUpload, flags, state, label)
	if err != nil {
		return nil, err
	}
	if err := buf.Write(0, data); err != nil {
		core.LogError(err.Error())
		buf.Release()
		return nil, err
	}
	return buf, nil
}

package soft

import (
	"fmt"

	"github.com/hiroki-sone/prism/engine/renderer/device"
)

type presenter struct {
	dev     *Device
	buffers []device.Buffer
	index   int
}

// CreatePresenter stands in for the swap chain: a rotating set of
// back buffers and a present call that advances the index.
func (d *Device) CreatePresenter(bufferCount int, width, height uint32) (device.Presenter, error) {
	if bufferCount < 2 {
		return nil, fmt.Errorf("presenter: need at least 2 back buffers, got %d", bufferCount)
	}
	p := &presenter{dev: d}
	for i := 0; i < bufferCount; i++ {
		buf, err := d.CreateBuffer(device.BufferDesc{
			Size:         uint64(width) * uint64(height) * 4,
			Heap:         device.HeapTypeDefault,
			InitialState: device.ResourceStatePresent,
			Label:        fmt.Sprintf("back_buffer[%d]", i),
		})
		if err != nil {
			return nil, err
		}
		p.buffers = append(p.buffers, buf)
	}
	return p, nil
}

func (p *presenter) BackBufferCount() int {
	return len(p.buffers)
}

func (p *presenter) CurrentBackBufferIndex() int {
	return p.index
}

func (p *presenter) BackBuffer(index int) device.Buffer {
	return p.buffers[index]
}

func (p *presenter) Present(vsync bool) error {
	p.index = (p.index + 1) % len(p.buffers)
	return nil
}

func (p *presenter) Release() {
	for _, b := range p.buffers {
		b.Release()
	}
}

package gpu

import "github.com/hiroki-sone/prism/engine/renderer/device"

// TransitionBarrier moves a resource between states.
func TransitionBarrier(resource device.Buffer, before, after device.ResourceState) device.Barrier {
	return device.Barrier{
		Type:        device.BarrierTransition,
		Resource:    resource,
		StateBefore: before,
		StateAfter:  after,
	}
}

// UAVBarrier orders unordered-access writes to resource against any
// subsequent read. Acceleration-structure builds require one before
// the result buffer is consumed.
func UAVBarrier(resource device.Buffer) device.Barrier {
	return device.Barrier{
		Type:     device.BarrierUAV,
		Resource: resource,
	}
}

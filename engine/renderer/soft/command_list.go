package soft

import (
	"fmt"

	"github.com/hiroki-sone/prism/engine/renderer/device"
)

type listState int

const (
	listStateRecording listState = iota
	listStateClosed
	listStateSubmitted
)

type allocator struct {
	label    string
	resets   int
	released bool
}

func (a *allocator) Reset() error {
	if a.released {
		return fmt.Errorf("allocator %q: reset after release", a.label)
	}
	a.resets++
	return nil
}

func (a *allocator) Release() {
	a.released = true
}

type opKind int

const (
	opResourceBarrier opKind = iota
	opBuildAccelerationStructure
	opCopyBufferRegion
	opClearRenderTargetView
)

// recordedOp keeps everything a recorded command referenced, so tests
// can assert on barrier placement and build descriptors.
type recordedOp struct {
	kind opKind

	barriers []device.Barrier
	build    device.BuildDesc

	copyDst       device.Buffer
	copyDstOffset uint64
	copySrc       device.Buffer
	copySrcOffset uint64
	copySize      uint64

	clearTarget device.CPUHandle
	clearColor  [4]float32
}

type commandList struct {
	dev   *Device
	alloc *allocator
	label string
	state listState
	ops   []recordedOp
}

func (cl *commandList) Reset(alloc device.CommandAllocator) error {
	a, ok := alloc.(*allocator)
	if !ok {
		return fmt.Errorf("command list %q: allocator was not created by this device", cl.label)
	}
	if cl.state == listStateRecording {
		return fmt.Errorf("command list %q: reset while recording", cl.label)
	}
	cl.alloc = a
	cl.state = listStateRecording
	cl.ops = cl.ops[:0]
	return nil
}

func (cl *commandList) Close() error {
	if cl.state != listStateRecording {
		return fmt.Errorf("command list %q: close outside recording", cl.label)
	}
	cl.state = listStateClosed
	return nil
}

func (cl *commandList) ResourceBarrier(barriers []device.Barrier) {
	cl.record(recordedOp{kind: opResourceBarrier, barriers: append([]device.Barrier(nil), barriers...)})
}

func (cl *commandList) BuildAccelerationStructure(desc device.BuildDesc) {
	if desc.Inputs.Kind == device.StructureBottomLevel && len(desc.Inputs.Geometries) == 0 {
		cl.dev.emit(device.SeverityError, MsgZeroGeometryBuild,
			"command list %q: bottom-level build with zero geometries", cl.label)
	}
	cl.record(recordedOp{kind: opBuildAccelerationStructure, build: desc})
}

func (cl *commandList) CopyBufferRegion(dst device.Buffer, dstOffset uint64, src device.Buffer, srcOffset, size uint64) {
	cl.record(recordedOp{
		kind:          opCopyBufferRegion,
		copyDst:       dst,
		copyDstOffset: dstOffset,
		copySrc:       src,
		copySrcOffset: srcOffset,
		copySize:      size,
	})
}

func (cl *commandList) ClearRenderTargetView(rtv device.CPUHandle, color [4]float32) {
	cl.record(recordedOp{kind: opClearRenderTargetView, clearTarget: rtv, clearColor: color})
}

func (cl *commandList) Release() {}

func (cl *commandList) record(op recordedOp) {
	if cl.state != listStateRecording {
		cl.dev.emit(device.SeverityWarning, MsgUnclosedListSubmitted,
			"command list %q: command recorded outside recording state", cl.label)
		return
	}
	cl.ops = append(cl.ops, op)
}

// Builds returns the acceleration-structure builds recorded since the
// last reset, oldest first.
func (cl *commandList) Builds() []device.BuildDesc {
	var out []device.BuildDesc
	for _, op := range cl.ops {
		if op.kind == opBuildAccelerationStructure {
			out = append(out, op.build)
		}
	}
	return out
}

// Barriers returns every barrier recorded since the last reset.
func (cl *commandList) Barriers() []device.Barrier {
	var out []device.Barrier
	for _, op := range cl.ops {
		if op.kind == opResourceBarrier {
			out = append(out, op.barriers...)
		}
	}
	return out
}

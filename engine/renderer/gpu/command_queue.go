package gpu

import (
	"fmt"

	"github.com/hiroki-sone/prism/engine/containers"
	"github.com/hiroki-sone/prism/engine/core"
	"github.com/hiroki-sone/prism/engine/renderer/device"
)

// FenceValue is a point on the queue's timeline. Values are issued
// strictly increasing and never reused.
type FenceValue uint64

// CommandContext is an exclusively-owned allocator/command-list pair,
// valid for one recording/submission cycle. Ownership returns to the
// queue on Execute; the context must not be touched afterwards.
type CommandContext struct {
	list      device.CommandList
	allocator device.CommandAllocator
}

func (c *CommandContext) CommandList() device.CommandList {
	return c.list
}

// pooledAllocator tags an allocator with the fence value of the
// submission that last recorded through it. It must not be reset until
// that value has completed: the GPU may still be reading its commands.
type pooledAllocator struct {
	allocator  device.CommandAllocator
	fenceValue FenceValue
}

// CommandQueue multiplexes CPU-side recording against GPU-side
// execution. Allocators are recycled once their tagged fence value
// completes; command lists are recycled immediately on submission,
// since resetting a list does not disturb commands already submitted.
type CommandQueue struct {
	dev   device.Device
	queue device.SubmitQueue
	label string

	allocators   *containers.RingQueue[pooledAllocator]
	commandLists *containers.RingQueue[device.CommandList]

	fence      device.Fence
	fenceValue FenceValue

	created int
	leased  int

	shutdown bool
}

func NewCommandQueue(dev device.Device, label string) (*CommandQueue, error) {
	queue, err := dev.CreateQueue(label)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	fence, err := dev.CreateFence(0)
	if err != nil {
		queue.Release()
		core.LogError(err.Error())
		return nil, err
	}
	return &CommandQueue{
		dev:          dev,
		queue:        queue,
		label:        label,
		allocators:   containers.NewRingQueue[pooledAllocator](8),
		commandLists: containers.NewRingQueue[device.CommandList](8),
		fence:        fence,
	}, nil
}

// RequestContext returns a ready-to-record context without blocking.
// The oldest pooled allocator is reused if its fence has completed;
// otherwise a fresh one is created. Command lists are pooled
// independently of fence state.
func (q *CommandQueue) RequestContext() (*CommandContext, error) {
	var allocator device.CommandAllocator

	if pa, ok := q.allocators.Peek(); ok && q.IsFenceCompleted(pa.fenceValue) {
		q.allocators.Dequeue()
		if err := pa.allocator.Reset(); err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		allocator = pa.allocator
	} else {
		a, err := q.dev.CreateCommandAllocator(fmt.Sprintf("%s::allocator[%d]", q.label, q.created))
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		q.created++
		allocator = a
	}

	var list device.CommandList
	if l, ok := q.commandLists.Dequeue(); ok {
		if err := l.Reset(allocator); err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		list = l
	} else {
		l, err := q.dev.CreateCommandList(allocator, q.label+"::list")
		if err != nil {
			core.LogError(err.Error())
			return nil, err
		}
		list = l
	}

	q.leased++
	return &CommandContext{list: list, allocator: allocator}, nil
}

// Execute closes and submits the context, reclaims the command list,
// tags the allocator with a freshly signaled fence value and returns
// that value. Submission failure is fatal to the frame and propagates
// to the caller.
func (q *CommandQueue) Execute(ctx *CommandContext) (FenceValue, error) {
	if err := ctx.list.Close(); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	if err := q.queue.Execute(ctx.list); err != nil {
		core.LogError(err.Error())
		return 0, err
	}

	// The list can be reset against another allocator right away.
	q.commandLists.Enqueue(ctx.list)

	fenceValue := q.Signal()

	q.allocators.Enqueue(pooledAllocator{
		allocator:  ctx.allocator,
		fenceValue: fenceValue,
	})
	q.leased--

	return fenceValue, nil
}

// Discard returns an unsubmitted context to the pools. Recording
// failures come through here: nothing from the context reached the
// GPU, so the allocator needs no fence tag and is immediately
// reusable.
func (q *CommandQueue) Discard(ctx *CommandContext) {
	if err := ctx.list.Close(); err != nil {
		core.LogError(err.Error())
		ctx.list.Release()
	} else {
		q.commandLists.Enqueue(ctx.list)
	}
	q.allocators.Enqueue(pooledAllocator{allocator: ctx.allocator})
	q.leased--
}

// Signal advances the timeline by exactly one and submits the signal.
func (q *CommandQueue) Signal() FenceValue {
	q.fenceValue++
	if err := q.queue.Signal(q.fence, uint64(q.fenceValue)); err != nil {
		// A queue that cannot signal has lost the device; there is no
		// recovery path.
		core.LogFatal("queue %q: fence signal failed: %s", q.label, err.Error())
	}
	return q.fenceValue
}

func (q *CommandQueue) IsFenceCompleted(value FenceValue) bool {
	return q.fence.CompletedValue() >= uint64(value)
}

// Wait blocks the calling thread until value completes. This is the
// only blocking point in the core. An error here means device loss.
func (q *CommandQueue) Wait(value FenceValue) error {
	if q.IsFenceCompleted(value) {
		return nil
	}
	return q.fence.Wait(uint64(value))
}

// Flush signals and waits, guaranteeing no work is in flight.
func (q *CommandQueue) Flush() error {
	return q.Wait(q.Signal())
}

// Shutdown flushes and releases the queue's device objects. Safe to
// call more than once; resources are released exactly once.
func (q *CommandQueue) Shutdown() {
	if q.shutdown {
		return
	}
	q.shutdown = true

	if err := q.Flush(); err != nil {
		core.LogFatal("queue %q: flush on shutdown failed: %s", q.label, err.Error())
	}

	for {
		pa, ok := q.allocators.Dequeue()
		if !ok {
			break
		}
		pa.allocator.Release()
	}
	for {
		l, ok := q.commandLists.Dequeue()
		if !ok {
			break
		}
		l.Release()
	}

	q.fence.Release()
	q.queue.Release()
}

// LeasedAllocatorCount reports contexts currently checked out.
func (q *CommandQueue) LeasedAllocatorCount() int {
	return q.leased
}

// PooledAllocatorCount reports allocators parked in the pool, whether
// or not their fence values have completed.
func (q *CommandQueue) PooledAllocatorCount() int {
	return q.allocators.Len()
}

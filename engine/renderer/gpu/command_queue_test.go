package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroki-sone/prism/engine/renderer/soft"
)

func newTestQueue(t *testing.T) (*soft.Device, *CommandQueue) {
	t.Helper()
	dev := soft.New()
	q, err := NewCommandQueue(dev, "test_queue")
	require.NoError(t, err)
	t.Cleanup(q.Shutdown)
	return dev, q
}

func TestSignalAdvancesByOne(t *testing.T) {
	_, q := newTestQueue(t)

	first := q.Signal()
	second := q.Signal()
	third := q.Signal()

	assert.Equal(t, first+1, second)
	assert.Equal(t, second+1, third)
}

func TestExecuteReturnsCompletableFence(t *testing.T) {
	_, q := newTestQueue(t)

	ctx, err := q.RequestContext()
	require.NoError(t, err)

	value, err := q.Execute(ctx)
	require.NoError(t, err)

	assert.True(t, q.IsFenceCompleted(value))
	require.NoError(t, q.Wait(value))
	assert.Equal(t, 0, q.LeasedAllocatorCount())
}

func TestAllocatorNotReusedWhileFencePending(t *testing.T) {
	dev, q := newTestQueue(t)

	// First cycle completes immediately, parking one allocator whose
	// fence value is done.
	ctx, err := q.RequestContext()
	require.NoError(t, err)
	_, err = q.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.PooledAllocatorCount())

	// With completion held, the parked allocator's next submission
	// stays in flight, so a subsequent request must create a fresh one
	// instead of resetting it.
	dev.HoldCompletion()
	defer dev.ReleaseCompletion()

	ctx, err = q.RequestContext()
	require.NoError(t, err)
	assert.Equal(t, 0, q.PooledAllocatorCount())
	inFlight, err := q.Execute(ctx)
	require.NoError(t, err)
	require.False(t, q.IsFenceCompleted(inFlight))

	ctx, err = q.RequestContext()
	require.NoError(t, err)
	assert.Equal(t, 1, q.PooledAllocatorCount(), "pending allocator must stay parked")

	dev.CompleteTo(uint64(inFlight))
	_, err = q.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, q.PooledAllocatorCount())
}

func TestAllocatorPoolIsBounded(t *testing.T) {
	_, q := newTestQueue(t)

	// Serial request/execute/wait cycles recycle a single allocator.
	for i := 0; i < 16; i++ {
		ctx, err := q.RequestContext()
		require.NoError(t, err)
		value, err := q.Execute(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Wait(value))
	}

	assert.Equal(t, 0, q.LeasedAllocatorCount())
	assert.Equal(t, 1, q.PooledAllocatorCount())
}

func TestDiscardedContextIsReclaimed(t *testing.T) {
	_, q := newTestQueue(t)

	ctx, err := q.RequestContext()
	require.NoError(t, err)

	q.Discard(ctx)
	assert.Equal(t, 0, q.LeasedAllocatorCount())
	assert.Equal(t, 1, q.PooledAllocatorCount())

	// A discarded allocator carries no pending work, so the next
	// request reuses it without waiting.
	ctx, err = q.RequestContext()
	require.NoError(t, err)
	assert.Equal(t, 0, q.PooledAllocatorCount())
	_, err = q.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, q.LeasedAllocatorCount())
}

func TestFlushCompletesOutstandingWork(t *testing.T) {
	dev, q := newTestQueue(t)

	dev.HoldCompletion()
	ctx, err := q.RequestContext()
	require.NoError(t, err)
	value, err := q.Execute(ctx)
	require.NoError(t, err)
	require.False(t, q.IsFenceCompleted(value))

	done := make(chan error, 1)
	go func() {
		done <- q.Flush()
	}()

	dev.ReleaseCompletion()
	require.NoError(t, <-done)
	assert.True(t, q.IsFenceCompleted(value))
}

func TestWaitFailsOnDeviceLoss(t *testing.T) {
	dev := soft.New()
	q, err := NewCommandQueue(dev, "lost_queue")
	require.NoError(t, err)

	dev.HoldCompletion()
	ctx, err := q.RequestContext()
	require.NoError(t, err)
	value, err := q.Execute(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- q.Wait(value)
	}()

	dev.MarkLost()
	assert.Error(t, <-done)
}

func TestShutdownIsIdempotent(t *testing.T) {
	_, q := newTestQueue(t)

	ctx, err := q.RequestContext()
	require.NoError(t, err)
	_, err = q.Execute(ctx)
	require.NoError(t, err)

	q.Shutdown()
	q.Shutdown()
	assert.Equal(t, 0, q.PooledAllocatorCount())
}

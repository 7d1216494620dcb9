package soft

import (
	"fmt"
	"sync"

	"github.com/hiroki-sone/prism/engine/core"
)

// fence mirrors a timeline fence: a signaled value queued on the GPU
// and a completed value the CPU polls or blocks on.
type fence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	signaled  uint64
	completed uint64
	lost      bool
}

func newFence(initial uint64) *fence {
	f := &fence{signaled: initial, completed: initial}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.completed < value {
		if f.lost {
			return fmt.Errorf("waiting for fence value %d: %w", value, core.ErrDeviceLost)
		}
		f.cond.Wait()
	}
	return nil
}

func (f *fence) Release() {}

func (f *fence) signal(value uint64, complete bool) {
	f.mu.Lock()
	if value > f.signaled {
		f.signaled = value
	}
	if complete && value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fence) completeTo(value uint64) {
	f.mu.Lock()
	if value > f.signaled {
		value = f.signaled
	}
	if value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fence) completeAll() {
	f.mu.Lock()
	f.completed = f.signaled
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fence) markLost() {
	f.mu.Lock()
	f.lost = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

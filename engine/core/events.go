package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// The device stopped responding; Data carries the error.
	EVENT_CODE_DEVICE_LOST SystemEventCode = 0x02

	// A frame reached the presenter; Data is the frame count.
	EVENT_CODE_FRAME_PRESENTED SystemEventCode = 0x03

	// Presentation surface changed size; Data is a [2]uint32.
	EVENT_CODE_RESIZED SystemEventCode = 0x04

	// Configuration was reloaded from disk.
	EVENT_CODE_CONFIG_RELOADED SystemEventCode = 0x05

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type FnOnEvent func(context EventContext)

type eventSystemState struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]FnOnEvent
	pending    chan EventContext
	done       chan struct{}
}

var onceEvent sync.Once
var eventState *eventSystemState

func EventSystemInitialize() bool {
	onceEvent.Do(func() {
		eventState = &eventSystemState{
			registered: make(map[SystemEventCode][]FnOnEvent),
			pending:    make(chan EventContext, 256),
			done:       make(chan struct{}),
		}
	})
	return eventState != nil
}

func EventSystemShutdown() error {
	if eventState == nil {
		return nil
	}
	close(eventState.done)
	return nil
}

// EventRegister subscribes cb to code. Callbacks run on the event
// goroutine, not the firing one.
func EventRegister(code SystemEventCode, cb FnOnEvent) {
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered[code] = append(eventState.registered[code], cb)
}

// EventFire queues the event for dispatch. Never blocks: if the queue
// is full the event is dropped.
func EventFire(context EventContext) bool {
	if eventState == nil {
		return false
	}
	select {
	case eventState.pending <- context:
		return true
	default:
		LogWarn("event queue full, dropping event %#x", int(context.Type))
		return false
	}
}

// ProcessEvents dispatches queued events until shutdown. Run it on its
// own goroutine.
func ProcessEvents() {
	for {
		select {
		case <-eventState.done:
			return
		case context := <-eventState.pending:
			eventState.mu.RLock()
			callbacks := eventState.registered[context.Type]
			eventState.mu.RUnlock()
			for _, cb := range callbacks {
				cb(context)
			}
		}
	}
}

package core

// EventContext carries the payload of a fired event. Which field is set
// depends on the code.
type EventContext struct {
	Key    KeyCode
	Width  uint32
	Height uint32
	Path   string
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. Uses EventContext.Key.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. Uses EventContext.Key.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Framebuffer resized from the OS. Uses EventContext.Width and Height.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// A compiled shader changed on disk. Uses EventContext.Path.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously on the calling goroutine.
type EventBus struct {
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

// Register listens for events with the provided code. Registering the same
// listener twice for a code returns false.
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener for the code. Returns false if it was not registered.
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends the event to listeners in registration order. If a handler
// returns true the event is considered handled and is not passed on.
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	for _, e := range b.registered[code] {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

func (b *EventBus) Shutdown() {
	clear(b.registered)
}

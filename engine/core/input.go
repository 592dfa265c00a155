package core

// Key code definitions
type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
	KEY_LEFT   KeyCode = 0x25
	KEY_UP     KeyCode = 0x26
	KEY_RIGHT  KeyCode = 0x27
	KEY_DOWN   KeyCode = 0x28
	KEY_A      KeyCode = 0x41
	KEY_D      KeyCode = 0x44
	KEY_E      KeyCode = 0x45
	KEY_Q      KeyCode = 0x51
	KEY_S      KeyCode = 0x53
	KEY_W      KeyCode = 0x57

	KEYS_MAX_KEYS KeyCode = 0xFF
)

type keyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// Input tracks the keyboard state for the current and the previous frame.
type Input struct {
	current  keyboardState
	previous keyboardState
	events   *EventBus
}

// NewInput creates an input tracker. events may be nil.
func NewInput(events *EventBus) *Input {
	return &Input{events: events}
}

// Update copies current states to previous states. Call once per frame.
func (in *Input) Update() {
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	return in.current.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.current.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	return in.previous.Keys[key]
}

func (in *Input) WasKeyUp(key KeyCode) bool {
	return !in.previous.Keys[key]
}

// ProcessKey records a key transition and fires a key event when the state
// actually changed.
func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS || in.current.Keys[key] == pressed {
		return
	}
	in.current.Keys[key] = pressed

	if in.events == nil {
		return
	}
	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	in.events.Fire(code, in, EventContext{Key: key})
}

// Package eventmodel defines the closed set of input-event variants
// exchanged between host and agent, and the wire codec used to carry
// them. The variant set mirrors the original implementation's
// core::events::Event enum (see original_source/src/core/events.rs):
// MouseClick was dropped on the wire in favor of separate press/release
// pairs, which is all the distilled protocol ever specifies.
package eventmodel

// MouseButton enumerates the closed set of mouse buttons the system
// understands. Extending this set is a wire-compatibility change.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// Key enumerates the closed set of keyboard keys the system
// understands: 26 letters, 8 modifiers, 5 specials. Unknown physical
// keys are dropped at the InputBackend boundary rather than added here
// (Open Question Q4).
type Key string

const (
	KeyA Key = "a"
	KeyB Key = "b"
	KeyC Key = "c"
	KeyD Key = "d"
	KeyE Key = "e"
	KeyF Key = "f"
	KeyG Key = "g"
	KeyH Key = "h"
	KeyI Key = "i"
	KeyJ Key = "j"
	KeyK Key = "k"
	KeyL Key = "l"
	KeyM Key = "m"
	KeyN Key = "n"
	KeyO Key = "o"
	KeyP Key = "p"
	KeyQ Key = "q"
	KeyR Key = "r"
	KeyS Key = "s"
	KeyT Key = "t"
	KeyU Key = "u"
	KeyV Key = "v"
	KeyW Key = "w"
	KeyX Key = "x"
	KeyY Key = "y"
	KeyZ Key = "z"

	KeyControlLeft  Key = "control_left"
	KeyControlRight Key = "control_right"
	KeyShiftLeft    Key = "shift_left"
	KeyShiftRight   Key = "shift_right"
	KeyAltLeft      Key = "alt_left"
	KeyAltRight     Key = "alt_right"
	KeyMetaLeft     Key = "meta_left"
	KeyMetaRight    Key = "meta_right"

	KeyEscape    Key = "escape"
	KeyReturn    Key = "return"
	KeySpace     Key = "space"
	KeyBackspace Key = "backspace"
	KeyTab       Key = "tab"
)

// Kind tags which variant an Event carries.
type Kind uint8

const (
	KindMouseMove Kind = iota + 1
	KindMouseButtonPress
	KindMouseButtonRelease
	KindMouseScroll
	KindKeyPress
	KindKeyRelease
	KindFocusGrant
	KindFocusRelease
	KindHeartbeat
)

// Event is the tagged union carried over the wire. Exactly one of the
// payload fields is meaningful, selected by Kind; this flat-struct
// encoding (rather than an interface hierarchy) keeps the MessagePack
// shape simple and matches how the codec needs to dispatch on decode.
type Event struct {
	Kind Kind `msgpack:"k"`

	X int32 `msgpack:"x,omitempty"`
	Y int32 `msgpack:"y,omitempty"`

	Button MouseButton `msgpack:"b,omitempty"`

	DX int64 `msgpack:"dx,omitempty"`
	DY int64 `msgpack:"dy,omitempty"`

	Key Key `msgpack:"key,omitempty"`

	Target string `msgpack:"target,omitempty"`
}

// MouseMove builds a MouseMove event with absolute coordinates in the
// sender's own coordinate space.
func MouseMove(x, y int32) Event {
	return Event{Kind: KindMouseMove, X: x, Y: y}
}

// MouseButtonPress builds a MouseButtonPress event.
func MouseButtonPress(button MouseButton) Event {
	return Event{Kind: KindMouseButtonPress, Button: button}
}

// MouseButtonRelease builds a MouseButtonRelease event.
func MouseButtonRelease(button MouseButton) Event {
	return Event{Kind: KindMouseButtonRelease, Button: button}
}

// MouseScroll builds a MouseScroll event.
func MouseScroll(dx, dy int64) Event {
	return Event{Kind: KindMouseScroll, DX: dx, DY: dy}
}

// KeyPress builds a KeyPress event.
func KeyPress(key Key) Event {
	return Event{Kind: KindKeyPress, Key: key}
}

// KeyRelease builds a KeyRelease event.
func KeyRelease(key Key) Event {
	return Event{Kind: KindKeyRelease, Key: key}
}

// FocusGrant builds a FocusGrant event: host tells agent to take input
// and place its cursor at (x, y) in the host's coordinate space.
func FocusGrant(target string, x, y int32) Event {
	return Event{Kind: KindFocusGrant, Target: target, X: x, Y: y}
}

// FocusReleaseEvent builds a FocusRelease event: agent tells host it is
// giving focus back.
func FocusReleaseEvent() Event {
	return Event{Kind: KindFocusRelease}
}

// IsInjectable reports whether an event is one InputBackend.InjectEvent
// accepts. FocusGrant, FocusRelease, and Heartbeat are control-plane or
// transport-internal and must be dropped rather than injected (§4.9).
func (e Event) IsInjectable() bool {
	switch e.Kind {
	case KindMouseMove, KindMouseButtonPress, KindMouseButtonRelease,
		KindMouseScroll, KindKeyPress, KindKeyRelease:
		return true
	default:
		return false
	}
}

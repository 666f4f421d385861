package inputbackend

import "github.com/multishiva/multishiva/api/pkg/eventmodel"

// evdev key codes from linux/input-event-codes.h, carried over from
// the teacher's vk_evdev.go VK table (same code values, reindexed to
// multishiva's own Key enum instead of Windows VK codes).
const (
	evKeyEsc        = 1
	evKey1          = 2
	evKeyQ          = 16
	evKeyW          = 17
	evKeyE          = 18
	evKeyR          = 19
	evKeyT          = 20
	evKeyY          = 21
	evKeyU          = 22
	evKeyI          = 23
	evKeyO          = 24
	evKeyP          = 25
	evKeyEnter      = 28
	evKeyLeftCtrl   = 29
	evKeyA          = 30
	evKeyS          = 31
	evKeyD          = 32
	evKeyF          = 33
	evKeyG          = 34
	evKeyH          = 35
	evKeyJ          = 36
	evKeyK          = 37
	evKeyL          = 38
	evKeyLeftShift  = 42
	evKeyZ          = 44
	evKeyX          = 45
	evKeyC          = 46
	evKeyV          = 47
	evKeyB          = 48
	evKeyN          = 49
	evKeyM          = 50
	evKeyRightShift = 54
	evKeyLeftAlt    = 56
	evKeySpace      = 57
	evKeyRightCtrl  = 97
	evKeyRightAlt   = 100
	evKeyLeftMeta   = 125
	evKeyRightMeta  = 126
	evKeyBackspace  = 14
	evKeyTab        = 15

	evBtnLeft   = 0x110
	evBtnRight  = 0x111
	evBtnMiddle = 0x112

	evRelX      = 0x00
	evRelY      = 0x01
	evRelWheel  = 0x08
	evRelHWheel = 0x06

	evTypeKey = 0x01
	evTypeRel = 0x02
	evTypeSyn = 0x00
)

// keyToEvdev maps multishiva's closed Key set to Linux evdev keycodes.
var keyToEvdev = map[eventmodel.Key]int{
	eventmodel.KeyA: evKeyA, eventmodel.KeyB: evKeyB, eventmodel.KeyC: evKeyC,
	eventmodel.KeyD: evKeyD, eventmodel.KeyE: evKeyE, eventmodel.KeyF: evKeyF,
	eventmodel.KeyG: evKeyG, eventmodel.KeyH: evKeyH, eventmodel.KeyI: evKeyI,
	eventmodel.KeyJ: evKeyJ, eventmodel.KeyK: evKeyK, eventmodel.KeyL: evKeyL,
	eventmodel.KeyM: evKeyM, eventmodel.KeyN: evKeyN, eventmodel.KeyO: evKeyO,
	eventmodel.KeyP: evKeyP, eventmodel.KeyQ: evKeyQ, eventmodel.KeyR: evKeyR,
	eventmodel.KeyS: evKeyS, eventmodel.KeyT: evKeyT, eventmodel.KeyU: evKeyU,
	eventmodel.KeyV: evKeyV, eventmodel.KeyW: evKeyW, eventmodel.KeyX: evKeyX,
	eventmodel.KeyY: evKeyY, eventmodel.KeyZ: evKeyZ,

	eventmodel.KeyControlLeft:  evKeyLeftCtrl,
	eventmodel.KeyControlRight: evKeyRightCtrl,
	eventmodel.KeyShiftLeft:    evKeyLeftShift,
	eventmodel.KeyShiftRight:   evKeyRightShift,
	eventmodel.KeyAltLeft:      evKeyLeftAlt,
	eventmodel.KeyAltRight:     evKeyRightAlt,
	eventmodel.KeyMetaLeft:     evKeyLeftMeta,
	eventmodel.KeyMetaRight:    evKeyRightMeta,

	eventmodel.KeyEscape:    evKeyEsc,
	eventmodel.KeyReturn:    evKeyEnter,
	eventmodel.KeySpace:     evKeySpace,
	eventmodel.KeyBackspace: evKeyBackspace,
	eventmodel.KeyTab:       evKeyTab,
}

// evdevToKey is the reverse mapping, used by capture to turn a raw
// EV_KEY code into a wire Key. Unknown codes (anything not in this
// table) are dropped at capture time rather than forwarded (§4.9,
// Open Question Q4).
var evdevToKey = func() map[int]eventmodel.Key {
	m := make(map[int]eventmodel.Key, len(keyToEvdev))
	for k, v := range keyToEvdev {
		m[v] = k
	}
	return m
}()

// EvdevCode returns the evdev keycode for a Key, or 0 if unmapped.
func EvdevCode(k eventmodel.Key) int {
	return keyToEvdev[k]
}

// KeyFromEvdev returns the Key for an evdev keycode, or ("", false) if
// the code is outside multishiva's closed key set.
func KeyFromEvdev(code int) (eventmodel.Key, bool) {
	k, ok := evdevToKey[code]
	return k, ok
}

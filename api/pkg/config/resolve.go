package config

import (
	"fmt"
	"strings"

	"github.com/multishiva/multishiva/api/pkg/eventmodel"
	"github.com/multishiva/multishiva/api/pkg/topology"
)

// Topology converts Edges into the map topology.New expects.
func (e Edges) Topology() *topology.Topology {
	return topology.New(map[topology.Edge]string{
		topology.EdgeLeft:   e.Left,
		topology.EdgeRight:  e.Right,
		topology.EdgeTop:    e.Top,
		topology.EdgeBottom: e.Bottom,
	})
}

// keyByName maps every eventmodel.Key's wire name back to itself, used
// by ParseChord to validate chord members against the closed key set.
var keyByName = map[string]eventmodel.Key{
	"a": eventmodel.KeyA, "b": eventmodel.KeyB, "c": eventmodel.KeyC,
	"d": eventmodel.KeyD, "e": eventmodel.KeyE, "f": eventmodel.KeyF,
	"g": eventmodel.KeyG, "h": eventmodel.KeyH, "i": eventmodel.KeyI,
	"j": eventmodel.KeyJ, "k": eventmodel.KeyK, "l": eventmodel.KeyL,
	"m": eventmodel.KeyM, "n": eventmodel.KeyN, "o": eventmodel.KeyO,
	"p": eventmodel.KeyP, "q": eventmodel.KeyQ, "r": eventmodel.KeyR,
	"s": eventmodel.KeyS, "t": eventmodel.KeyT, "u": eventmodel.KeyU,
	"v": eventmodel.KeyV, "w": eventmodel.KeyW, "x": eventmodel.KeyX,
	"y": eventmodel.KeyY, "z": eventmodel.KeyZ,

	"control_left": eventmodel.KeyControlLeft, "control_right": eventmodel.KeyControlRight,
	"shift_left": eventmodel.KeyShiftLeft, "shift_right": eventmodel.KeyShiftRight,
	"alt_left": eventmodel.KeyAltLeft, "alt_right": eventmodel.KeyAltRight,
	"meta_left": eventmodel.KeyMetaLeft, "meta_right": eventmodel.KeyMetaRight,

	"escape": eventmodel.KeyEscape, "return": eventmodel.KeyReturn,
	"space": eventmodel.KeySpace, "backspace": eventmodel.KeyBackspace,
	"tab": eventmodel.KeyTab,
}

// ParseChord parses a "+"-joined chord string such as
// "control_left+shift_left+escape" into the canonical Key set the
// kill-switch detector watches (§6: "parsed externally into a set of
// canonical Key values"). An empty string returns a nil, empty chord,
// which disables kill-switch detection.
func ParseChord(chord string) ([]eventmodel.Key, error) {
	chord = strings.TrimSpace(chord)
	if chord == "" {
		return nil, nil
	}

	parts := strings.Split(chord, "+")
	keys := make([]eventmodel.Key, 0, len(parts))
	for _, p := range parts {
		name := strings.ToLower(strings.TrimSpace(p))
		key, ok := keyByName[name]
		if !ok {
			return nil, fmt.Errorf("config: unknown key %q in kill-switch chord", name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

//go:build !linux

package inputbackend

import (
	"errors"

	"github.com/rs/zerolog"
)

// NewLinuxBackend is unavailable on non-Linux platforms: evdev capture
// and the uinput/Wayland injectors it wires up (§4.9's Linux reference
// implementation) have no equivalent here. It keeps the call site in
// cmd/multishiva buildable on every GOOS; the caller's own runtime
// GOOS check produces the user-facing error before this would ever be
// reached.
func NewLinuxBackend(logger zerolog.Logger, screenWidth, screenHeight int32) (Backend, error) {
	return nil, errors.New("inputbackend: only linux is supported (evdev capture + uinput/wayland injection)")
}

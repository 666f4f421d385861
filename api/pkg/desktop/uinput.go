//go:build linux

// Package desktop adapts virtual keyboard/mouse injection libraries
// to multishiva's own evdev-keycode vocabulary. Grounded in the
// teacher's api/pkg/desktop uinput/Wayland injectors, which were built
// for injecting input driven by a remote-desktop streaming frontend;
// here the same two libraries (bendahl/uinput,
// bnema/wayland-virtual-input-go) are adapted to inject multishiva's
// own closed eventmodel.Key/MouseButton set instead of Windows VK
// codes from a browser client.
package desktop

import (
	"fmt"
	"sync"

	"github.com/bendahl/uinput"
	"github.com/rs/zerolog"
)

// VirtualInput provides uinput-based keyboard and mouse input
// injection, used when the Wayland virtual-input protocols in
// wayland_input.go are unavailable (X11 sessions, wlroots compositors
// that don't implement zwlr_virtual_pointer_v1/zwp_virtual_keyboard_v1).
type VirtualInput struct {
	keyboard uinput.Keyboard
	mouse    uinput.Mouse
	logger   zerolog.Logger
	mu       sync.Mutex
	closed   bool

	screenWidth  int
	screenHeight int
	currentX     float64
	currentY     float64
	positioned   bool
}

// NewVirtualInput creates virtual keyboard and mouse devices via
// uinput. Requires /dev/uinput access (a privileged container or
// appropriate device permissions).
func NewVirtualInput(logger zerolog.Logger, screenWidth, screenHeight int) (*VirtualInput, error) {
	keyboard, err := uinput.CreateKeyboard("/dev/uinput", []byte("multishiva-keyboard"))
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}

	mouse, err := uinput.CreateMouse("/dev/uinput", []byte("multishiva-mouse"))
	if err != nil {
		keyboard.Close()
		return nil, fmt.Errorf("create virtual mouse: %w", err)
	}

	logger.Info().Msg("desktop: uinput virtual input devices created")
	return &VirtualInput{
		keyboard:     keyboard,
		mouse:        mouse,
		logger:       logger,
		screenWidth:  screenWidth,
		screenHeight: screenHeight,
		currentX:     float64(screenWidth) / 2,
		currentY:     float64(screenHeight) / 2,
	}, nil
}

// Close releases the virtual input devices.
func (v *VirtualInput) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true

	var firstErr error
	if err := v.keyboard.Close(); err != nil {
		firstErr = fmt.Errorf("close keyboard: %w", err)
	}
	if err := v.mouse.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close mouse: %w", err)
	}

	v.logger.Info().Msg("desktop: uinput virtual input devices closed")
	return firstErr
}

// KeyDownEvdev sends a key press event with a Linux evdev keycode.
func (v *VirtualInput) KeyDownEvdev(evdevCode int) error {
	if evdevCode == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.keyboard.KeyDown(evdevCode)
}

// KeyUpEvdev sends a key release event with a Linux evdev keycode.
func (v *VirtualInput) KeyUpEvdev(evdevCode int) error {
	if evdevCode == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.keyboard.KeyUp(evdevCode)
}

// MouseMove moves the mouse by relative amounts.
func (v *VirtualInput) MouseMove(dx, dy int32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.mouse.Move(dx, dy)
}

// MouseMoveAbsolute moves the mouse to an absolute position expressed
// as normalized (0..1) coordinates against screenWidth/screenHeight.
// uinput's virtual mouse has no absolute-positioning mode, so this
// tracks a local position and converts to the relative delta needed
// to reach the target, the same strategy wayland_input.go uses for
// the same reason.
func (v *VirtualInput) MouseMoveAbsolute(x, y float64, screenWidth, screenHeight int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}

	targetX := x * float64(screenWidth)
	targetY := y * float64(screenHeight)

	var dx, dy float64
	if !v.positioned {
		dx = targetX - float64(screenWidth)/2
		dy = targetY - float64(screenHeight)/2
		v.positioned = true
	} else {
		dx = targetX - v.currentX
		dy = targetY - v.currentY
	}
	v.currentX, v.currentY = targetX, targetY

	if dx == 0 && dy == 0 {
		return nil
	}
	return v.mouse.Move(int32(dx), int32(dy))
}

// MouseButtonDown presses a mouse button (1=left, 2=middle, 3=right).
func (v *VirtualInput) MouseButtonDown(button int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	switch button {
	case 1:
		return v.mouse.LeftPress()
	case 2:
		return v.mouse.MiddlePress()
	case 3:
		return v.mouse.RightPress()
	default:
		return nil
	}
}

// MouseButtonUp releases a mouse button.
func (v *VirtualInput) MouseButtonUp(button int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	switch button {
	case 1:
		return v.mouse.LeftRelease()
	case 2:
		return v.mouse.MiddleRelease()
	case 3:
		return v.mouse.RightRelease()
	default:
		return nil
	}
}

// MouseWheel sends a scroll event. deltaY positive scrolls up, deltaX
// positive scrolls right.
func (v *VirtualInput) MouseWheel(deltaX, deltaY float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	if deltaY != 0 {
		// Wheel's first argument selects the horizontal axis; the sign
		// of the delta carries the direction.
		if err := v.mouse.Wheel(false, int32(deltaY)); err != nil {
			return err
		}
	}
	if deltaX != 0 {
		// This backend forwards vertical scroll only; horizontal
		// deltas are dropped.
		v.logger.Debug().Float64("delta_x", deltaX).Msg("desktop: horizontal scroll not supported by uinput backend")
	}
	return nil
}

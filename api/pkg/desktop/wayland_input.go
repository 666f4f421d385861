//go:build linux

package desktop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
	"github.com/rs/zerolog"
)

// WaylandInput provides Wayland-native virtual input for wlroots/GNOME
// compositors that implement zwlr_virtual_pointer_v1 and
// zwp_virtual_keyboard_v1. No /dev/uinput access or elevated
// capability is required.
type WaylandInput struct {
	pointerManager  *virtual_pointer.VirtualPointerManager
	pointer         *virtual_pointer.VirtualPointer
	keyboardManager *virtual_keyboard.VirtualKeyboardManager
	keyboard        *virtual_keyboard.VirtualKeyboard
	logger          zerolog.Logger
	mu              sync.Mutex
	closed          bool

	screenWidth  int
	screenHeight int

	// Wayland's virtual pointer only supports relative movement, so
	// MouseMoveAbsolute tracks the position it believes the cursor is
	// at and injects the delta needed to reach each new target.
	currentX            float64
	currentY            float64
	positionInitialized bool
}

// NewWaylandInput connects to the Wayland compositor and creates
// virtual pointer and keyboard devices.
func NewWaylandInput(logger zerolog.Logger, screenWidth, screenHeight int) (*WaylandInput, error) {
	ctx := context.Background()

	pointerManager, err := virtual_pointer.NewVirtualPointerManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("create virtual pointer manager: %w", err)
	}

	pointer, err := pointerManager.CreatePointer()
	if err != nil {
		pointerManager.Close()
		return nil, fmt.Errorf("create virtual pointer: %w", err)
	}

	keyboardManager, err := virtual_keyboard.NewVirtualKeyboardManager(ctx)
	if err != nil {
		pointer.Close()
		pointerManager.Close()
		return nil, fmt.Errorf("create virtual keyboard manager: %w", err)
	}

	keyboard, err := keyboardManager.CreateKeyboard()
	if err != nil {
		keyboardManager.Close()
		pointer.Close()
		pointerManager.Close()
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}

	logger.Info().Int("screen_width", screenWidth).Int("screen_height", screenHeight).
		Msg("desktop: wayland virtual input created")

	return &WaylandInput{
		pointerManager:  pointerManager,
		pointer:         pointer,
		keyboardManager: keyboardManager,
		keyboard:        keyboard,
		logger:          logger,
		screenWidth:     screenWidth,
		screenHeight:    screenHeight,
		currentX:        float64(screenWidth) / 2,
		currentY:        float64(screenHeight) / 2,
	}, nil
}

// Close releases all virtual input devices.
func (w *WaylandInput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.keyboard != nil {
		record(w.keyboard.Close())
	}
	if w.keyboardManager != nil {
		record(w.keyboardManager.Close())
	}
	if w.pointer != nil {
		record(w.pointer.Close())
	}
	if w.pointerManager != nil {
		record(w.pointerManager.Close())
	}

	w.logger.Info().Msg("desktop: wayland virtual input closed")
	return firstErr
}

// KeyDownEvdev sends a key press event with a Linux evdev keycode.
func (w *WaylandInput) KeyDownEvdev(evdevCode int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.keyboard == nil {
		return nil
	}
	return w.keyboard.Key(time.Now(), uint32(evdevCode), virtual_keyboard.KeyStatePressed)
}

// KeyUpEvdev sends a key release event with a Linux evdev keycode.
func (w *WaylandInput) KeyUpEvdev(evdevCode int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.keyboard == nil {
		return nil
	}
	return w.keyboard.Key(time.Now(), uint32(evdevCode), virtual_keyboard.KeyStateReleased)
}

// MouseMove moves the mouse by relative amounts.
func (w *WaylandInput) MouseMove(dx, dy int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	w.currentX += float64(dx)
	w.currentY += float64(dy)
	w.clampLocked()

	w.pointer.MoveRelative(float64(dx), float64(dy))
	return nil
}

// MouseMoveAbsolute moves the mouse to an absolute position expressed
// as normalized (0..1) coordinates against screenWidth/screenHeight.
func (w *WaylandInput) MouseMoveAbsolute(x, y float64, screenWidth, screenHeight int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	targetX := x * float64(screenWidth)
	targetY := y * float64(screenHeight)

	var dx, dy float64
	if !w.positionInitialized {
		dx = targetX - float64(screenWidth)/2
		dy = targetY - float64(screenHeight)/2
		w.positionInitialized = true
	} else {
		dx = targetX - w.currentX
		dy = targetY - w.currentY
	}
	w.currentX, w.currentY = targetX, targetY

	if dx != 0 || dy != 0 {
		w.pointer.MoveRelative(dx, dy)
	}
	return nil
}

func (w *WaylandInput) clampLocked() {
	if w.currentX < 0 {
		w.currentX = 0
	}
	if w.currentX >= float64(w.screenWidth) {
		w.currentX = float64(w.screenWidth) - 1
	}
	if w.currentY < 0 {
		w.currentY = 0
	}
	if w.currentY >= float64(w.screenHeight) {
		w.currentY = float64(w.screenHeight) - 1
	}
}

// MouseButtonDown presses a mouse button (1=left, 2=middle, 3=right).
func (w *WaylandInput) MouseButtonDown(button int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	btn, ok := waylandButton(button)
	if !ok {
		return nil
	}
	w.pointer.Button(time.Now(), btn, virtual_pointer.BUTTON_STATE_PRESSED)
	w.pointer.Frame()
	return nil
}

// MouseButtonUp releases a mouse button.
func (w *WaylandInput) MouseButtonUp(button int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	btn, ok := waylandButton(button)
	if !ok {
		return nil
	}
	w.pointer.Button(time.Now(), btn, virtual_pointer.BUTTON_STATE_RELEASED)
	w.pointer.Frame()
	return nil
}

func waylandButton(button int) (uint32, bool) {
	switch button {
	case 1:
		return virtual_pointer.BTN_LEFT, true
	case 2:
		return virtual_pointer.BTN_MIDDLE, true
	case 3:
		return virtual_pointer.BTN_RIGHT, true
	default:
		return 0, false
	}
}

// MouseWheel sends a scroll event.
func (w *WaylandInput) MouseWheel(deltaX, deltaY float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.pointer == nil {
		return nil
	}

	if deltaY != 0 {
		w.pointer.ScrollVertical(deltaY)
	}
	if deltaX != 0 {
		w.pointer.ScrollHorizontal(deltaX)
	}
	w.pointer.Frame()
	return nil
}

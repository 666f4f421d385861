// Package inputbackend adapts the host OS's input capture and
// injection facilities to the closed eventmodel.Event vocabulary
// (§4.9). The Linux implementation is grounded in
// original_source/src/core/input_evdev.rs for capture and in the
// teacher's api/pkg/desktop uinput/Wayland injectors for injection;
// both were written for a different product (streaming a remote
// desktop) and are adapted here to emit and consume multishiva's own
// event types instead.
package inputbackend

import (
	"context"

	"github.com/multishiva/multishiva/api/pkg/eventmodel"
)

// ScreenSize is a display's pixel dimensions.
type ScreenSize struct {
	Width  int32
	Height int32
}

// Backend is the seam HostLoop and AgentLoop use to talk to the local
// machine: HostLoop captures from it and polls ScreenSize/CursorPosition
// to run edge detection; AgentLoop injects into it while focus is
// remote (§4.7, §4.8).
type Backend interface {
	// StartCapture begins delivering locally-generated input events to
	// emit. It must return promptly; capture runs in the background
	// until ctx is canceled or StopCapture is called. emit must never
	// block for long — a full channel means the caller applies
	// backpressure itself (§5).
	StartCapture(ctx context.Context, emit func(eventmodel.Event)) error

	// StopCapture halts capture started by StartCapture. Safe to call
	// even if capture was never started.
	StopCapture()

	// InjectEvent applies a remote-originated event locally. Only
	// events for which Event.IsInjectable() is true are ever passed.
	InjectEvent(ev eventmodel.Event) error

	// ScreenSize returns the local display's current pixel dimensions.
	// HostLoop calls this on every capture tick rather than caching it
	// once, since REDESIGN FLAG Q3 requires supporting displays whose
	// size is not fixed at startup (e.g. a monitor hot-plug).
	ScreenSize() (ScreenSize, error)

	// CursorPosition returns the local cursor's current absolute
	// position.
	CursorPosition() (x, y int32, err error)

	// GrabDevices exclusively grabs input devices so local input stops
	// reaching other applications while focus is remote (EVIOCGRAB on
	// Linux). UngrabDevices reverses it.
	GrabDevices() error
	UngrabDevices() error

	// CheckPermissions reports whether the process has what it needs
	// to capture and inject (e.g. membership in the "input" group).
	CheckPermissions() bool

	// SetKillSwitch configures the chord (all keys simultaneously
	// held) that forces focus back to Local regardless of FocusState
	// (§4.6). The returned channel receives a value each time the full
	// chord transitions from not-held to held; detection happens
	// independently of whatever FocusState currently routes events to
	// (§4.9: "detected by InputBackend independently"). An empty chord
	// disables kill-switch detection and the channel is never signaled.
	SetKillSwitch(chord []eventmodel.Key) <-chan struct{}

	// Close releases all resources; the Backend is unusable afterward.
	Close() error
}

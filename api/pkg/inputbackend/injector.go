//go:build linux

package inputbackend

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/multishiva/multishiva/api/pkg/desktop"
	"github.com/multishiva/multishiva/api/pkg/eventmodel"
)

// Injector applies a decoded eventmodel.Event to the local OS. Two
// concrete implementations exist, selected at startup by probing
// availability (§4.9): the Wayland virtual-input protocols first,
// falling back to /dev/uinput, matching the teacher's own dual-path
// design in api/pkg/desktop for the same compositor-support reason.
type Injector interface {
	Inject(ev eventmodel.Event) error
	Close() error
}

// rawBackend narrows desktop.WaylandInput and desktop.VirtualInput down
// to the calls Injector needs, so the single genericInjector wrapper
// below serves both with one Inject implementation.
type rawBackend interface {
	KeyDownEvdev(code int) error
	KeyUpEvdev(code int) error
	MouseMoveAbsolute(x, y float64, screenWidth, screenHeight int) error
	MouseButtonDown(button int) error
	MouseButtonUp(button int) error
	MouseWheel(dx, dy float64) error
	Close() error
}

// NewInjector probes for a Wayland virtual-input compositor first
// (no elevated privilege required) and falls back to uinput. Both
// paths only support relative pointer motion, so absolute MouseMove
// events are translated against a locally tracked position inside
// each backend (§4.9).
func NewInjector(logger zerolog.Logger, screenWidth, screenHeight int32) (Injector, error) {
	if wl, err := desktop.NewWaylandInput(logger, int(screenWidth), int(screenHeight)); err == nil {
		return &genericInjector{backend: wl, screenWidth: screenWidth, screenHeight: screenHeight, logger: logger}, nil
	} else {
		logger.Debug().Err(err).Msg("inputbackend: wayland virtual input unavailable, falling back to uinput")
	}

	ui, err := desktop.NewVirtualInput(logger, int(screenWidth), int(screenHeight))
	if err != nil {
		return nil, fmt.Errorf("inputbackend: no injection backend available: %w", err)
	}
	return &genericInjector{backend: ui, screenWidth: screenWidth, screenHeight: screenHeight, logger: logger}, nil
}

// genericInjector adapts any rawBackend (Wayland or uinput) to
// Injector by translating eventmodel's closed vocabulary into the
// backend's evdev-keycode / normalized-coordinate calls.
type genericInjector struct {
	backend      rawBackend
	screenWidth  int32
	screenHeight int32
	logger       zerolog.Logger
}

func (g *genericInjector) Inject(ev eventmodel.Event) error {
	switch ev.Kind {
	case eventmodel.KindMouseMove:
		if g.screenWidth <= 0 || g.screenHeight <= 0 {
			return nil
		}
		x := float64(ev.X) / float64(g.screenWidth)
		y := float64(ev.Y) / float64(g.screenHeight)
		return g.backend.MouseMoveAbsolute(x, y, int(g.screenWidth), int(g.screenHeight))

	case eventmodel.KindMouseButtonPress:
		return g.backend.MouseButtonDown(buttonCode(ev.Button))
	case eventmodel.KindMouseButtonRelease:
		return g.backend.MouseButtonUp(buttonCode(ev.Button))

	case eventmodel.KindMouseScroll:
		return g.backend.MouseWheel(float64(ev.DX), float64(ev.DY))

	case eventmodel.KindKeyPress:
		code := EvdevCode(ev.Key)
		if code == 0 {
			g.logger.Debug().Str("key", string(ev.Key)).Msg("inputbackend: dropping unmapped key on inject")
			return nil
		}
		return g.backend.KeyDownEvdev(code)
	case eventmodel.KindKeyRelease:
		code := EvdevCode(ev.Key)
		if code == 0 {
			return nil
		}
		return g.backend.KeyUpEvdev(code)

	default:
		// FocusGrant, FocusRelease, Heartbeat are not injectable
		// (§4.9) and are dropped defensively; callers are expected to
		// have already filtered with Event.IsInjectable().
		return nil
	}
}

func (g *genericInjector) Close() error {
	return g.backend.Close()
}

func buttonCode(b eventmodel.MouseButton) int {
	switch b {
	case eventmodel.ButtonLeft:
		return 1
	case eventmodel.ButtonMiddle:
		return 2
	case eventmodel.ButtonRight:
		return 3
	default:
		return 0
	}
}

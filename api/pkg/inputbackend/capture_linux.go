//go:build linux

package inputbackend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/multishiva/multishiva/api/pkg/eventmodel"
	"github.com/multishiva/multishiva/api/pkg/kverr"
)

// evioGrab is the Linux EVIOCGRAB ioctl (linux/input.h:
// _IOW('E', 0x90, int)). golang.org/x/sys/unix does not export evdev
// ioctl numbers, so it is reproduced here as a constant.
const evioGrab = 0x40044590

// inputEvent mirrors struct input_event from linux/input.h for a
// 64-bit kernel: two timeval fields (as two 8-byte words on amd64/
// arm64) followed by type, code, value.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = int(unsafe.Sizeof(inputEvent{}))

// evdevDevice is one open /dev/input/eventN handle.
type evdevDevice struct {
	path    string
	file    *os.File
	grabbed bool
}

// LinuxBackend captures from raw evdev device nodes and injects via
// the adapted desktop injectors. Grounded in
// original_source/src/core/input_evdev.rs's device-detection and
// per-device read-loop shape, translated from evdev-rs + tokio tasks
// to golang.org/x/sys/unix reads + goroutines.
type LinuxBackend struct {
	injector Injector
	logger   zerolog.Logger

	mu      sync.Mutex
	devices []*evdevDevice

	capturing atomic.Bool
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	mousePosMu   sync.Mutex
	mouseX       int32
	mouseY       int32
	screenWidth  int32
	screenHeight int32

	killMu    sync.Mutex
	heldKeys  map[eventmodel.Key]bool
	killChord []eventmodel.Key
	killCh    chan struct{}
}

// NewLinuxBackend detects capturable input devices and wires up the
// injector chosen by NewInjector. screenWidth/screenHeight set the
// capture loop's clamp bounds and are what ScreenSize reports for the
// backend's whole life; a later resolution change is not detected.
func NewLinuxBackend(logger zerolog.Logger, screenWidth, screenHeight int32) (*LinuxBackend, error) {
	injector, err := NewInjector(logger, screenWidth, screenHeight)
	if err != nil {
		return nil, kverr.New(kverr.DeviceError, "inputbackend.NewLinuxBackend", err)
	}

	b := &LinuxBackend{
		injector:     injector,
		logger:       logger,
		screenWidth:  screenWidth,
		screenHeight: screenHeight,
		mouseX:       screenWidth / 2,
		mouseY:       screenHeight / 2,
		heldKeys:     make(map[eventmodel.Key]bool),
	}

	logger.Warn().Int32("width", screenWidth).Int32("height", screenHeight).
		Msg("inputbackend: raw evdev has no display-server query; ScreenSize() will keep reporting these seeded dimensions for the life of the process — edge detection will be wrong if the real display differs or is later resized")

	return b, nil
}

func detectInputDevices() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, fmt.Errorf("read /dev/input: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		path := filepath.Join("/dev/input", e.Name())

		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			continue
		}

		bits := make([]byte, (unix.EV_MAX+7)/8)
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(),
			uintptr(unix.EVIOCGBIT(0, len(bits))), uintptr(unsafe.Pointer(&bits[0])))
		f.Close()
		if errno != 0 {
			continue
		}
		hasKey := bits[unix.EV_KEY/8]&(1<<(unix.EV_KEY%8)) != 0
		hasRel := bits[unix.EV_REL/8]&(1<<(unix.EV_REL%8)) != 0
		if hasKey || hasRel {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// StartCapture opens every detected device and spawns a read-loop
// goroutine per device that decodes raw input_events into
// eventmodel.Events and hands them to emit. Devices are not grabbed
// here; GrabDevices does that.
func (b *LinuxBackend) StartCapture(ctx context.Context, emit func(eventmodel.Event)) error {
	if b.capturing.Load() {
		return nil
	}

	paths, err := detectInputDevices()
	if err != nil {
		return kverr.New(kverr.DeviceError, "inputbackend.StartCapture", err)
	}
	if len(paths) == 0 {
		return kverr.New(kverr.PermissionDenied, "inputbackend.StartCapture",
			errors.New("no input devices detected; add the user to the 'input' group"))
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.capturing.Store(true)

	b.mu.Lock()
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDWR, 0)
		if err != nil {
			continue
		}
		dev := &evdevDevice{path: p, file: f}
		b.devices = append(b.devices, dev)

		b.wg.Add(1)
		go b.readLoop(ctx, dev, emit)
	}
	b.mu.Unlock()

	return nil
}

func (b *LinuxBackend) readLoop(ctx context.Context, dev *evdevDevice, emit func(eventmodel.Event)) {
	defer b.wg.Done()

	buf := make([]byte, inputEventSize)
	for {
		if ctx.Err() != nil {
			return
		}

		dev.file.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := dev.file.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return
		}
		if n < inputEventSize {
			continue
		}

		ev := decodeInputEvent(buf)
		if converted, ok := b.convert(ev); ok {
			emit(converted)
		}
	}
}

func decodeInputEvent(buf []byte) inputEvent {
	return *(*inputEvent)(unsafe.Pointer(&buf[0]))
}

// convert mirrors original_source's convert_evdev_event: accumulate
// relative motion into an absolute position clamped to the current
// screen, translate button/key codes, and pass scroll deltas through.
func (b *LinuxBackend) convert(ev inputEvent) (eventmodel.Event, bool) {
	switch ev.Type {
	case evTypeRel:
		b.mousePosMu.Lock()
		defer b.mousePosMu.Unlock()
		switch ev.Code {
		case evRelX:
			b.mouseX = clamp32(b.mouseX+ev.Value, 0, b.screenWidth-1)
			return eventmodel.MouseMove(b.mouseX, b.mouseY), true
		case evRelY:
			b.mouseY = clamp32(b.mouseY+ev.Value, 0, b.screenHeight-1)
			return eventmodel.MouseMove(b.mouseX, b.mouseY), true
		case evRelWheel:
			return eventmodel.MouseScroll(0, int64(ev.Value)), true
		case evRelHWheel:
			return eventmodel.MouseScroll(int64(ev.Value), 0), true
		}
	case evTypeKey:
		pressed := ev.Value != 0
		switch int(ev.Code) {
		case evBtnLeft:
			return buttonEvent(eventmodel.ButtonLeft, pressed), true
		case evBtnRight:
			return buttonEvent(eventmodel.ButtonRight, pressed), true
		case evBtnMiddle:
			return buttonEvent(eventmodel.ButtonMiddle, pressed), true
		default:
			if key, ok := KeyFromEvdev(int(ev.Code)); ok {
				b.trackKillSwitch(key, pressed)
				if pressed {
					return eventmodel.KeyPress(key), true
				}
				return eventmodel.KeyRelease(key), true
			}
			b.logger.Debug().Uint16("code", ev.Code).Msg("inputbackend: dropping key outside the canonical set")
		}
	}
	return eventmodel.Event{}, false
}

// trackKillSwitch maintains the set of currently held keys and signals
// killCh the moment the configured chord becomes fully held. Detection
// runs on every capture tick regardless of FocusState, independent of
// whether the event is currently being routed locally or forwarded to
// a remote peer (§4.9).
func (b *LinuxBackend) trackKillSwitch(key eventmodel.Key, pressed bool) {
	b.killMu.Lock()
	defer b.killMu.Unlock()

	chordHeld := func() bool {
		if len(b.killChord) == 0 {
			return false
		}
		for _, k := range b.killChord {
			if !b.heldKeys[k] {
				return false
			}
		}
		return true
	}
	wasHeld := chordHeld()

	if pressed {
		b.heldKeys[key] = true
	} else {
		delete(b.heldKeys, key)
	}

	if b.killCh == nil || wasHeld || !chordHeld() {
		return
	}
	select {
	case b.killCh <- struct{}{}:
	default:
	}
}

// SetKillSwitch configures the chord watched by trackKillSwitch.
func (b *LinuxBackend) SetKillSwitch(chord []eventmodel.Key) <-chan struct{} {
	b.killMu.Lock()
	defer b.killMu.Unlock()
	b.killChord = append([]eventmodel.Key(nil), chord...)
	if b.killCh == nil {
		b.killCh = make(chan struct{}, 1)
	}
	return b.killCh
}

func buttonEvent(b eventmodel.MouseButton, pressed bool) eventmodel.Event {
	if pressed {
		return eventmodel.MouseButtonPress(b)
	}
	return eventmodel.MouseButtonRelease(b)
}

func clamp32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StopCapture cancels every read-loop goroutine and closes the device
// handles.
func (b *LinuxBackend) StopCapture() {
	if !b.capturing.CompareAndSwap(true, false) {
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	b.mu.Lock()
	for _, dev := range b.devices {
		dev.file.Close()
	}
	b.devices = nil
	b.mu.Unlock()
}

// GrabDevices issues EVIOCGRAB(1) on every open device so local input
// stops reaching other applications while focus is remote.
func (b *LinuxBackend) GrabDevices() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dev := range b.devices {
		if err := ioctlGrab(dev.file.Fd(), 1); err != nil {
			return kverr.New(kverr.DeviceError, "inputbackend.GrabDevices", err)
		}
		dev.grabbed = true
	}
	return nil
}

// UngrabDevices reverses GrabDevices.
func (b *LinuxBackend) UngrabDevices() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, dev := range b.devices {
		if !dev.grabbed {
			continue
		}
		if err := ioctlGrab(dev.file.Fd(), 0); err != nil {
			return kverr.New(kverr.DeviceError, "inputbackend.UngrabDevices", err)
		}
		dev.grabbed = false
	}
	return nil
}

func ioctlGrab(fd uintptr, value int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(evioGrab), uintptr(value))
	if errno != 0 {
		return errno
	}
	return nil
}

// ScreenSize returns the dimensions the backend was constructed with.
// Raw evdev offers no display-server query, so the value never changes
// for the life of the backend.
func (b *LinuxBackend) ScreenSize() (ScreenSize, error) {
	b.mousePosMu.Lock()
	defer b.mousePosMu.Unlock()
	return ScreenSize{Width: b.screenWidth, Height: b.screenHeight}, nil
}

// CursorPosition returns the last position reconstructed from relative
// motion events.
func (b *LinuxBackend) CursorPosition() (int32, int32, error) {
	b.mousePosMu.Lock()
	defer b.mousePosMu.Unlock()
	return b.mouseX, b.mouseY, nil
}

// InjectEvent forwards to the configured Injector.
func (b *LinuxBackend) InjectEvent(ev eventmodel.Event) error {
	return b.injector.Inject(ev)
}

// CheckPermissions reports whether any input device was detected.
func (b *LinuxBackend) CheckPermissions() bool {
	paths, err := detectInputDevices()
	return err == nil && len(paths) > 0
}

// Close stops capture and releases the injector.
func (b *LinuxBackend) Close() error {
	b.StopCapture()
	return b.injector.Close()
}

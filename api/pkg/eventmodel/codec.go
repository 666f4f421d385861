package eventmodel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameBytes bounds the declared length of a single frame. Event
// frames are small; a frame declaring more than this is a protocol
// error, not a larger valid message.
const MaxFrameBytes = 32 * 1024

// frameLengthSize is the width of the length prefix: 4 bytes,
// big-endian, unsigned.
const frameLengthSize = 4

// ErrHeartbeat is returned by ReadFrame when the frame read was a
// zero-length heartbeat pulse rather than an event payload.
var ErrHeartbeat = errors.New("eventmodel: heartbeat frame")

// DecodeError wraps a failure to interpret a frame payload as a valid
// Event: unknown tag, malformed msgpack, or any other decode failure.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("eventmodel: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes an Event to MessagePack. This cannot fail for any
// value produced by this package's constructors.
func Encode(ev Event) ([]byte, error) {
	b, err := msgpack.Marshal(&ev)
	if err != nil {
		return nil, fmt.Errorf("eventmodel: encode: %w", err)
	}
	return b, nil
}

// Decode interprets a frame payload as an Event, rejecting tags
// outside the closed Kind set.
func Decode(b []byte) (Event, error) {
	var ev Event
	if err := msgpack.Unmarshal(b, &ev); err != nil {
		return Event{}, &DecodeError{Err: err}
	}
	if ev.Kind < KindMouseMove || ev.Kind > KindHeartbeat {
		return Event{}, &DecodeError{Err: fmt.Errorf("unknown event kind %d", ev.Kind)}
	}
	return ev, nil
}

// Frame prepends the 4-byte big-endian length prefix to an encoded
// payload.
func Frame(payload []byte) []byte {
	out := make([]byte, frameLengthSize+len(payload))
	binary.BigEndian.PutUint32(out[:frameLengthSize], uint32(len(payload)))
	copy(out[frameLengthSize:], payload)
	return out
}

// HeartbeatFrame is the reserved zero-length frame.
func HeartbeatFrame() []byte {
	return Frame(nil)
}

// WriteEvent frames and writes one Event to w.
func WriteEvent(w io.Writer, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	_, err = w.Write(Frame(payload))
	return err
}

// WriteHeartbeat writes a zero-length heartbeat frame to w.
func WriteHeartbeat(w io.Writer) error {
	_, err := w.Write(HeartbeatFrame())
	return err
}

// deadlineSetter is satisfied by net.Conn; kept as a narrow interface
// so ReadFrame can be exercised against an in-memory pipe in tests.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// ReadFrame reads one length-prefixed frame from r, applying deadline
// as the read deadline when r supports it. A zero-length frame returns
// ErrHeartbeat with no Event. A declared length exceeding MaxFrameBytes
// is a ProtocolError-class failure reported as a plain error; callers
// should terminate the connection on any non-nil, non-ErrHeartbeat
// error.
func ReadFrame(r io.Reader, deadline time.Duration) (Event, error) {
	if ds, ok := r.(deadlineSetter); ok && deadline > 0 {
		if err := ds.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return Event{}, fmt.Errorf("eventmodel: set read deadline: %w", err)
		}
	}

	var lenBuf [frameLengthSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Event{}, fmt.Errorf("eventmodel: read length: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return Event{}, ErrHeartbeat
	}
	if n > MaxFrameBytes {
		return Event{}, fmt.Errorf("eventmodel: declared frame length %d exceeds max %d", n, MaxFrameBytes)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Event{}, fmt.Errorf("eventmodel: read payload: %w", err)
	}

	return Decode(payload)
}

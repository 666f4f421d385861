package hostloop

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multishiva/multishiva/api/pkg/config"
	"github.com/multishiva/multishiva/api/pkg/discovery"
	"github.com/multishiva/multishiva/api/pkg/eventmodel"
	"github.com/multishiva/multishiva/api/pkg/fingerprint"
	"github.com/multishiva/multishiva/api/pkg/inputbackend"
	"github.com/multishiva/multishiva/api/pkg/transport"
)

type fakeBackend struct {
	screenW, screenH int32
	grabbed          bool
	ungrabbed        int
	killCh           chan struct{}
	killChord        []eventmodel.Key
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{screenW: 1920, screenH: 1080}
}

func (f *fakeBackend) StartCapture(ctx context.Context, emit func(eventmodel.Event)) error { return nil }
func (f *fakeBackend) StopCapture()                                                        {}
func (f *fakeBackend) InjectEvent(ev eventmodel.Event) error                                { return nil }
func (f *fakeBackend) ScreenSize() (inputbackend.ScreenSize, error) {
	return inputbackend.ScreenSize{Width: f.screenW, Height: f.screenH}, nil
}
func (f *fakeBackend) CursorPosition() (int32, int32, error) { return 0, 0, nil }
func (f *fakeBackend) GrabDevices() error                    { f.grabbed = true; return nil }
func (f *fakeBackend) UngrabDevices() error                  { f.ungrabbed++; f.grabbed = false; return nil }
func (f *fakeBackend) CheckPermissions() bool                { return true }
func (f *fakeBackend) SetKillSwitch(chord []eventmodel.Key) <-chan struct{} {
	f.killChord = chord
	f.killCh = make(chan struct{}, 1)
	return f.killCh
}
func (f *fakeBackend) Close() error { return nil }

func newTestLoop(t *testing.T) (*HostLoop, *fakeBackend) {
	t.Helper()
	dir := t.TempDir()
	fps, err := fingerprint.Load(dir+"/fingerprints.json", zerolog.Nop())
	require.NoError(t, err)

	cfg := config.Config{
		SelfName: "host-1",
		Mode:     config.ModeHost,
		Port:     1,
		PSK:      "secret",
		Edges:    config.Edges{Right: "agent-1"},
		Behavior: config.Behavior{EdgeThresholdPx: 10},
	}

	backend := newFakeBackend()
	pd := discovery.New(cfg.SelfName, zerolog.Nop())
	h := New(cfg, backend, fps, pd, zerolog.Nop())
	return h, backend
}

func TestOnLocalEvent_EdgeCrossingGrantsAndSends(t *testing.T) {
	h, backend := newTestLoop(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	c := transport.New(context.Background(), serverConn, "agent-1", zerolog.Nop())
	defer c.Close()
	h.peers["agent-1"] = c

	received := make(chan eventmodel.Event, 1)
	go func() {
		ev, err := eventmodel.ReadFrame(clientConn, time.Second)
		if err == nil {
			received <- ev
		}
		io.Copy(io.Discard, clientConn)
	}()

	h.onLocalEvent(eventmodel.MouseMove(1915, 500))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, "agent-1", snap.Peer)
	assert.True(t, backend.grabbed)

	select {
	case ev := <-received:
		assert.Equal(t, eventmodel.KindFocusGrant, ev.Kind)
		assert.Equal(t, "agent-1", ev.Target)
		assert.Equal(t, int32(10), ev.X)
		assert.Equal(t, int32(500), ev.Y)
	case <-time.After(time.Second):
		t.Fatal("FocusGrant never arrived on the peer side")
	}
}

func TestOnLocalEvent_ForwardsWhileRemote(t *testing.T) {
	h, backend := newTestLoop(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	c := transport.New(context.Background(), serverConn, "agent-1", zerolog.Nop())
	defer c.Close()
	h.peers["agent-1"] = c
	require.True(t, h.ctrl.TryGrant("agent-1", 0, 0))

	clientConn.SetReadDeadline(time.Now().Add(time.Second))
	received := make(chan eventmodel.Event, 1)
	go func() {
		ev, err := eventmodel.ReadFrame(clientConn, time.Second)
		if err == nil {
			received <- ev
		}
	}()

	h.onLocalEvent(eventmodel.KeyPress(eventmodel.KeyA))

	select {
	case ev := <-received:
		assert.Equal(t, eventmodel.KindKeyPress, ev.Kind)
		assert.Equal(t, eventmodel.KeyA, ev.Key)
	case <-time.After(time.Second):
		t.Fatal("forwarded event never arrived on the peer side")
	}
	assert.False(t, backend.grabbed, "remote events must not re-trigger edge-crossing grab logic")
}

func TestConsumeInbound_FocusReleaseReturnsToLocal(t *testing.T) {
	h, backend := newTestLoop(t)

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()
	c := transport.New(context.Background(), serverConn, "agent-1", zerolog.Nop())
	defer c.Close()
	h.peers["agent-1"] = c
	require.True(t, h.ctrl.TryGrant("agent-1", 0, 0))

	go h.consumeInbound(c)

	require.NoError(t, eventmodel.WriteEvent(clientConn, eventmodel.FocusReleaseEvent()))

	require.Eventually(t, func() bool {
		return h.ctrl.IsLocal()
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, backend.ungrabbed)
}

func TestForceLocal_UngrabsWhenRemote(t *testing.T) {
	h, backend := newTestLoop(t)
	require.True(t, h.ctrl.TryGrant("agent-1", 0, 0))
	backend.grabbed = true

	h.forceLocal()

	assert.True(t, h.ctrl.IsLocal())
	assert.Equal(t, 1, backend.ungrabbed)
}

func TestForceLocal_NoopWhenAlreadyLocal(t *testing.T) {
	h, backend := newTestLoop(t)

	h.forceLocal()

	assert.Equal(t, 0, backend.ungrabbed)
}

func TestOnLocalEvent_EdgeCrossingTowardUnconnectedPeerRevertsToLocal(t *testing.T) {
	h, backend := newTestLoop(t)
	// "agent-1" is configured on the Right edge but never registered in
	// h.peers, modeling a neighbor that is topologically configured but
	// not yet (or no longer) connected.

	h.onLocalEvent(eventmodel.MouseMove(1915, 500))

	assert.True(t, h.ctrl.IsLocal(), "a crossing toward an unconnected peer must not leave the controller stuck in Remote")
	assert.False(t, backend.grabbed)

	// Local capture must keep being processed normally afterward — not
	// black-holed into a nil peer connection.
	h.onLocalEvent(eventmodel.MouseMove(1915, 500))
	assert.True(t, h.ctrl.IsLocal())
}

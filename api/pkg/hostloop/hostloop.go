// Package hostloop wires InputBackend, Topology, FocusController,
// Handshake, Transport, FingerprintStore, and PeerDirectory into the
// HOST-side algorithm described in §4.7: capture local input, detect
// edge crossings against Topology, hand focus to a neighbor over
// Transport, and demultiplex inbound FocusRelease events back to
// Local. Grounded in the teacher's connection-acceptance and
// per-connection goroutine-pair shape (api/pkg/connman,
// api/pkg/revdial-client's accept loop), adapted from a multi-tenant
// HTTP-reverse-dial server to a direct TCP listener running the
// PSK handshake from §4.4.
package hostloop

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/multishiva/multishiva/api/pkg/config"
	"github.com/multishiva/multishiva/api/pkg/discovery"
	"github.com/multishiva/multishiva/api/pkg/eventmodel"
	"github.com/multishiva/multishiva/api/pkg/fingerprint"
	"github.com/multishiva/multishiva/api/pkg/focus"
	"github.com/multishiva/multishiva/api/pkg/handshake"
	"github.com/multishiva/multishiva/api/pkg/inputbackend"
	"github.com/multishiva/multishiva/api/pkg/kverr"
	"github.com/multishiva/multishiva/api/pkg/topology"
	"github.com/multishiva/multishiva/api/pkg/transport"
)

// HostLoop owns the listening socket, the set of live connections, and
// the single-owner FocusController that decides where captured input
// goes (§5: "the peer table in the HostLoop ... is likewise under a
// single exclusive owner").
type HostLoop struct {
	cfg     config.Config
	backend inputbackend.Backend
	topo    *topology.Topology
	ctrl    *focus.Controller
	fps     *fingerprint.Store
	dir     *discovery.PeerDirectory
	logger  zerolog.Logger

	mu    sync.Mutex
	peers map[string]*transport.Connection

	listener net.Listener
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New constructs a HostLoop from already-built dependencies; building
// those (config load, backend selection, store path resolution) is the
// excluded, platform-specific wiring layer (cmd/multishiva).
func New(cfg config.Config, backend inputbackend.Backend, fps *fingerprint.Store, dir *discovery.PeerDirectory, logger zerolog.Logger) *HostLoop {
	return &HostLoop{
		cfg:     cfg,
		backend: backend,
		topo:    cfg.Edges.Topology(),
		ctrl:    focus.New(time.Duration(cfg.Behavior.FrictionMs)*time.Millisecond, logger),
		fps:     fps,
		dir:     dir,
		logger:  logger,
		peers:   make(map[string]*transport.Connection),
	}
}

// Run brings up capture, the listening socket, and mDNS registration,
// then blocks until ctx is canceled. On return every resource has been
// released (§4.7 step 5).
func (h *HostLoop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	defer cancel()

	if !h.backend.CheckPermissions() {
		return kverr.New(kverr.PermissionDenied, "hostloop.Run",
			fmt.Errorf("input backend lacks permission to capture/inject"))
	}

	if chord, err := config.ParseChord(h.cfg.Hotkeys.KillSwitch); err != nil {
		return kverr.New(kverr.ConfigInvalid, "hostloop.Run", err)
	} else if len(chord) > 0 {
		killCh := h.backend.SetKillSwitch(chord)
		h.wg.Add(1)
		go h.watchKillSwitch(ctx, killCh)
	}

	ln, err := listenDualStack(h.cfg.Port)
	if err != nil {
		return kverr.New(kverr.Bind, "hostloop.Run", err)
	}
	h.listener = ln

	if err := h.dir.Register(int(h.cfg.Port), fingerprint.HashPSK(h.cfg.PSK)); err != nil {
		ln.Close()
		return kverr.New(kverr.Bind, "hostloop.Run", err)
	}

	if err := h.backend.StartCapture(ctx, h.onLocalEvent); err != nil {
		h.dir.Unregister()
		ln.Close()
		return kverr.New(kverr.DeviceError, "hostloop.Run", err)
	}

	h.wg.Add(1)
	go h.acceptLoop(ctx)

	<-ctx.Done()
	return h.shutdown()
}

// Shutdown requests an orderly stop; Run returns once it completes.
func (h *HostLoop) Shutdown() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *HostLoop) shutdown() error {
	h.backend.StopCapture()
	if h.listener != nil {
		h.listener.Close()
	}
	h.dir.Unregister()

	h.mu.Lock()
	conns := make([]*transport.Connection, 0, len(h.peers))
	for _, c := range h.peers {
		conns = append(conns, c)
	}
	h.peers = make(map[string]*transport.Connection)
	h.mu.Unlock()

	var result error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	h.wg.Wait()
	return result
}

func (h *HostLoop) watchKillSwitch(ctx context.Context, killCh <-chan struct{}) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-killCh:
			h.forceLocal()
		}
	}
}

func (h *HostLoop) forceLocal() {
	snap := h.ctrl.Snapshot()
	h.ctrl.KillSwitch()
	if snap.State == focus.Remote {
		if err := h.backend.UngrabDevices(); err != nil {
			h.logger.Warn().Err(err).Msg("hostloop: ungrab on kill-switch failed")
		}
	}
}

func (h *HostLoop) acceptLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Error().Err(err).Msg("hostloop: accept failed")
			continue
		}
		go h.handleConn(ctx, conn)
	}
}

func (h *HostLoop) handleConn(ctx context.Context, conn net.Conn) {
	result, err := handshake.RunResponder(conn, h.cfg.PSK, h.logger)
	if err != nil {
		h.logger.Warn().Err(err).Msg("hostloop: handshake rejected")
		conn.Close()
		return
	}

	if _, err := handshake.VerifyPeer(h.fps, result.PeerName, h.cfg.PSK); err != nil {
		h.logger.Error().Err(err).Str("peer", result.PeerName).Msg("hostloop: fingerprint mismatch, refusing peer")
		conn.Close()
		return
	}

	c := transport.New(ctx, conn, result.PeerName, h.logger)

	h.mu.Lock()
	if old, exists := h.peers[result.PeerName]; exists {
		old.Close()
	}
	h.peers[result.PeerName] = c
	h.mu.Unlock()

	h.logger.Info().Str("peer", result.PeerName).Msg("hostloop: peer connected")

	go h.consumeInbound(c)

	<-c.Done()

	h.mu.Lock()
	if h.peers[result.PeerName] == c {
		delete(h.peers, result.PeerName)
	}
	h.mu.Unlock()

	snap := h.ctrl.Snapshot()
	if snap.State == focus.Remote && snap.Peer == result.PeerName {
		h.logger.Warn().Str("peer", result.PeerName).Msg("hostloop: focused peer disconnected, returning to local")
		h.ctrl.Release(result.PeerName)
		if err := h.backend.UngrabDevices(); err != nil {
			h.logger.Warn().Err(err).Msg("hostloop: ungrab on disconnect failed")
		}
	}
}

// consumeInbound handles events received from one connected peer.
// Per §4.7 step 4, only FocusRelease carries meaning here; everything
// else is ignored (the agent-to-host channel is control-only).
func (h *HostLoop) consumeInbound(c *transport.Connection) {
	for {
		select {
		case <-c.Done():
			return
		case ev := <-c.Inbound():
			if ev.Kind != eventmodel.KindFocusRelease {
				continue
			}
			h.ctrl.Release(c.PeerName)
			if err := h.backend.UngrabDevices(); err != nil {
				h.logger.Warn().Err(err).Msg("hostloop: ungrab on focus release failed")
			}
		}
	}
}

// onLocalEvent is InputBackend's capture callback (§4.7 step 3). It
// must never block: Connection.Send already applies oldest-drop
// backpressure, and every other branch here is pure computation.
func (h *HostLoop) onLocalEvent(ev eventmodel.Event) {
	snap := h.ctrl.Snapshot()

	if snap.State == focus.Remote {
		h.mu.Lock()
		c := h.peers[snap.Peer]
		h.mu.Unlock()
		if c != nil {
			c.Send(ev)
		}
		return
	}

	if ev.Kind != eventmodel.KindMouseMove {
		return
	}

	size, err := h.backend.ScreenSize()
	if err != nil {
		return
	}

	threshold := int32(h.cfg.Behavior.EdgeThresholdPx)
	peer, ex, ey, granted := h.ctrl.EdgeCrossingGrant(h.topo, ev.X, ev.Y, size.Width, size.Height, threshold)
	if !granted {
		return
	}

	h.mu.Lock()
	c := h.peers[peer]
	h.mu.Unlock()
	if c == nil {
		// EdgeCrossingGrant already committed the controller to
		// REMOTE(peer): with no connection to carry FocusGrant or ever
		// deliver a FocusRelease, every subsequent captured event would
		// be forwarded into a nil connection and silently dropped, with
		// no path back to Local short of the kill-switch. Roll the
		// transition back so capture keeps being processed locally.
		h.logger.Warn().Str("peer", peer).Msg("hostloop: edge crossing toward unconnected peer, reverting to local")
		h.ctrl.Release(peer)
		return
	}

	c.Send(eventmodel.FocusGrant(peer, ex, ey))
	if err := h.backend.GrabDevices(); err != nil {
		h.logger.Warn().Err(err).Msg("hostloop: grab devices failed")
	}
}


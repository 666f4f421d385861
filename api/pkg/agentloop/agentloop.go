// Package agentloop wires the AGENT side of §4.8: resolve the host
// (configured address or mDNS discovery), dial and handshake with it,
// then translate the host's absolute-coordinate MouseMove stream into
// local relative deltas for injection, and watch local capture for the
// cursor reaching the edge opposite the one it arrived through to hand
// focus back.
// Grounded in the teacher's connect-serve-reconnect client shape
// (api/pkg/connman), adapted from a multi-tenant reverse-dial client to
// a single direct TCP dial against the resolved host address.
package agentloop

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/multishiva/multishiva/api/pkg/config"
	"github.com/multishiva/multishiva/api/pkg/connman"
	"github.com/multishiva/multishiva/api/pkg/discovery"
	"github.com/multishiva/multishiva/api/pkg/eventmodel"
	"github.com/multishiva/multishiva/api/pkg/fingerprint"
	"github.com/multishiva/multishiva/api/pkg/handshake"
	"github.com/multishiva/multishiva/api/pkg/inputbackend"
	"github.com/multishiva/multishiva/api/pkg/kverr"
	"github.com/multishiva/multishiva/api/pkg/topology"
	"github.com/multishiva/multishiva/api/pkg/transport"
)

const (
	dialTimeout       = 10 * time.Second
	discoveryWindow   = 5 * time.Second
	discoveryPoll     = 500 * time.Millisecond
	maxReconnectTries = 10
)

// AgentLoop owns the agent's dial-handshake-inject lifecycle against
// exactly one remote peer: the host.
type AgentLoop struct {
	cfg     config.Config
	backend inputbackend.Backend
	fps     *fingerprint.Store
	dir     *discovery.PeerDirectory
	logger  zerolog.Logger

	reconnect *connman.Manager

	mu   sync.Mutex
	conn *transport.Connection

	// hostEdge is the edge through which focus entered, recorded from
	// the most recent FocusGrant so the return crossing can be detected
	// against the opposite edge (§4.8 step 5).
	hostEdge topology.Edge

	hasFocus     bool
	currentX     float64
	currentY     float64
	lastHostX    int32
	lastHostY    int32
	screenWidth  int32
	screenHeight int32
}

// New constructs an AgentLoop from already-built dependencies.
func New(cfg config.Config, backend inputbackend.Backend, fps *fingerprint.Store, dir *discovery.PeerDirectory, logger zerolog.Logger) *AgentLoop {
	return &AgentLoop{
		cfg:       cfg,
		backend:   backend,
		fps:       fps,
		dir:       dir,
		logger:    logger,
		reconnect: connman.New(logger),
		hostEdge:  topology.EdgeLeft,
	}
}

// Run resolves the host, connects, and serves until ctx is canceled or
// an unrecoverable error occurs. Each connection lifetime is followed
// by an attempted reconnect gated on behavior.reconnect_delay_ms
// (Open Question Q1: a zero delay disables in-process reconnect and
// Run returns instead).
func (a *AgentLoop) Run(ctx context.Context) error {
	defer a.reconnect.Stop()

	if !a.backend.CheckPermissions() {
		return kverr.New(kverr.PermissionDenied, "agentloop.Run",
			fmt.Errorf("input backend lacks permission to capture/inject"))
	}

	size, err := a.backend.ScreenSize()
	if err != nil {
		return kverr.New(kverr.DeviceError, "agentloop.Run", err)
	}
	a.screenWidth, a.screenHeight = size.Width, size.Height
	a.currentX, a.currentY = float64(size.Width)/2, float64(size.Height)/2

	if err := a.backend.StartCapture(ctx, a.onLocalEvent); err != nil {
		return kverr.New(kverr.DeviceError, "agentloop.Run", err)
	}
	defer a.backend.StopCapture()

	addr, err := a.resolveHost(ctx)
	if err != nil {
		return err
	}

	conn, peerName, err := a.dialAndHandshake(ctx, addr)
	if err != nil {
		return err
	}

	for {
		c := transport.New(ctx, conn, peerName, a.logger)
		a.setConn(c)
		a.serveConnection(ctx, c)
		a.setConn(nil)

		if ctx.Err() != nil {
			return nil
		}

		a.reconnect.OnDisconnect()
		delay := time.Duration(a.cfg.Behavior.ReconnectDelayMs) * time.Millisecond
		if delay <= 0 {
			a.logger.Warn().Msg("agentloop: host disconnected, reconnect disabled (reconnect_delay_ms=0)")
			return kverr.New(kverr.PeerDisconnected, "agentloop.Run", fmt.Errorf("host disconnected"))
		}

		a.logger.Warn().Dur("delay", delay).Msg("agentloop: host disconnected, attempting reconnect")
		reconn, err := a.reconnect.Reconnect(ctx, func(dialCtx context.Context) (net.Conn, error) {
			c, _, err := a.dialAndHandshake(dialCtx, addr)
			return c, err
		}, delay, maxReconnectTries)
		if err != nil {
			return kverr.New(kverr.PeerDisconnected, "agentloop.Run", fmt.Errorf("reconnect exhausted: %w", err))
		}

		conn = reconn
	}
}

func (a *AgentLoop) setConn(c *transport.Connection) {
	a.mu.Lock()
	a.conn = c
	a.mu.Unlock()
}

func (a *AgentLoop) activeConn() *transport.Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn
}

// resolveHost implements §4.8 step 1.
func (a *AgentLoop) resolveHost(ctx context.Context) (string, error) {
	if a.cfg.HostAddress != "" {
		return a.cfg.HostAddress, nil
	}

	if err := a.dir.Browse(ctx); err != nil {
		return "", kverr.New(kverr.DiscoveryEmpty, "agentloop.resolveHost", err)
	}

	deadline := time.Now().Add(discoveryWindow)
	for time.Now().Before(deadline) {
		for _, peer := range a.dir.List() {
			return peer.FullAddress(), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(discoveryPoll):
		}
	}

	return "", kverr.New(kverr.DiscoveryEmpty, "agentloop.resolveHost",
		fmt.Errorf("no host found via mDNS within %s", discoveryWindow))
}

// dialAndHandshake implements §4.8 step 2.
func (a *AgentLoop) dialAndHandshake(ctx context.Context, addr string) (net.Conn, string, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, "", kverr.New(kverr.Connect, "agentloop.dialAndHandshake", err)
	}

	if err := handshake.RunInitiator(conn, a.cfg.SelfName, a.cfg.PSK, a.logger); err != nil {
		conn.Close()
		return nil, "", err
	}

	peerName := hostPeerName(addr)
	if _, err := handshake.VerifyPeer(a.fps, peerName, a.cfg.PSK); err != nil {
		conn.Close()
		return nil, "", err
	}

	return conn, peerName, nil
}

// serveConnection runs one connection's inbound-event loop until it
// ends, implementing §4.8 steps 4-5.
func (a *AgentLoop) serveConnection(ctx context.Context, c *transport.Connection) {
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case ev := <-c.Inbound():
			a.handleHostEvent(ev)
		}
	}
}

func (a *AgentLoop) handleHostEvent(ev eventmodel.Event) {
	switch ev.Kind {
	case eventmodel.KindFocusGrant:
		a.hasFocus = true
		a.currentX = clampF(float64(ev.X), 0, float64(a.screenWidth-1))
		a.currentY = clampF(float64(ev.Y), 0, float64(a.screenHeight-1))
		a.lastHostX, a.lastHostY = ev.X, ev.Y
		a.hostEdge = entryEdge(ev.X, ev.Y, a.screenWidth, a.screenHeight)
		a.inject(eventmodel.MouseMove(int32(a.currentX), int32(a.currentY)))

	case eventmodel.KindMouseMove:
		if !a.hasFocus {
			return
		}
		dx := ev.X - a.lastHostX
		dy := ev.Y - a.lastHostY
		a.lastHostX, a.lastHostY = ev.X, ev.Y
		a.currentX = clampF(a.currentX+float64(dx), 0, float64(a.screenWidth-1))
		a.currentY = clampF(a.currentY+float64(dy), 0, float64(a.screenHeight-1))
		a.inject(eventmodel.MouseMove(int32(a.currentX), int32(a.currentY)))

	case eventmodel.KindMouseButtonPress, eventmodel.KindMouseButtonRelease,
		eventmodel.KindMouseScroll, eventmodel.KindKeyPress, eventmodel.KindKeyRelease:
		if a.hasFocus {
			a.inject(ev)
		}

	case eventmodel.KindFocusRelease, eventmodel.KindHeartbeat:
		// FocusRelease only ever flows agent->host; Heartbeat is
		// consumed by transport itself. Neither reaches here in
		// practice, but the switch stays exhaustive for clarity.
	}
}

func (a *AgentLoop) inject(ev eventmodel.Event) {
	if err := a.backend.InjectEvent(ev); err != nil {
		a.logger.Warn().Err(err).Msg("agentloop: inject failed")
	}
}

// onLocalEvent is InputBackend's capture callback while the agent
// watches for the return-edge crossing (§4.8 step 5). It must never
// block.
func (a *AgentLoop) onLocalEvent(ev eventmodel.Event) {
	if !a.hasFocus || ev.Kind != eventmodel.KindMouseMove {
		return
	}

	returnEdge := topology.Opposite(a.hostEdge)
	threshold := int32(a.cfg.Behavior.EdgeThresholdPx)
	if !crossesEdge(returnEdge, ev.X, ev.Y, a.screenWidth, a.screenHeight, threshold) {
		return
	}

	a.hasFocus = false
	if c := a.activeConn(); c != nil {
		c.Send(eventmodel.FocusReleaseEvent())
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// entryEdge infers which edge of the agent's screen a FocusGrant
// placed the cursor near, from the host's projected coordinates
// (§4.6's opposite-edge projection lands within threshold of one
// edge).
func entryEdge(x, y, width, height int32) topology.Edge {
	const assumedThreshold = 10
	if x <= assumedThreshold {
		return topology.EdgeLeft
	}
	if x >= width-assumedThreshold {
		return topology.EdgeRight
	}
	if y <= assumedThreshold {
		return topology.EdgeTop
	}
	if y >= height-assumedThreshold {
		return topology.EdgeBottom
	}
	return topology.EdgeLeft
}

func crossesEdge(edge topology.Edge, x, y, width, height, threshold int32) bool {
	switch edge {
	case topology.EdgeLeft:
		return x < threshold
	case topology.EdgeRight:
		return x >= width-threshold
	case topology.EdgeTop:
		return y < threshold
	case topology.EdgeBottom:
		return y >= height-threshold
	default:
		return false
	}
}

func hostPeerName(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Package focus implements the FocusController state machine described
// in §4.6: a single-owner record of whether input is LOCAL or
// REMOTE(peer, entry point), debounced by a friction timer and
// overridable by a kill-switch hotkey. Grounded in
// original_source/src/core/focus.rs.
package focus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/multishiva/multishiva/api/pkg/topology"
)

// State is where input focus currently lives.
type State int

const (
	// Local means input stays on this machine; it is both the initial
	// state and the state after a kill-switch override.
	Local State = iota
	// Remote means input has been handed to a named peer.
	Remote
)

func (s State) String() string {
	if s == Remote {
		return "remote"
	}
	return "local"
}

// Snapshot is an immutable read of the controller's current state.
type Snapshot struct {
	State   State
	Peer    string
	EntryX  int32
	EntryY  int32
	History []string
}

// Controller owns the focus state machine. All mutation happens
// through its exported methods, which take an internal mutex — it is
// the single owner referenced by §5's concurrency model, callable from
// the capture goroutine, the inbound-event goroutine, and the
// kill-switch listener without external synchronization.
type Controller struct {
	mu sync.Mutex

	state  State
	peer   string
	entryX int32
	entryY int32

	// history lists, in order, every peer focus was granted to. Returns
	// to Local (Release, KillSwitch) are not recorded, and the local
	// machine's own name never appears: the Controller holds no name
	// for it.
	history []string

	// bandPeer/bandSince track continuous dwell in an edge-proximity
	// band, per §4.6: "the controller must observe the cursor remaining
	// within the same edge-proximity band continuously for friction_ms
	// before committing the transition; any movement away resets the
	// timer." bandSince is read with time.Since, which uses the
	// monotonic component of time.Time, satisfying §4.6's "measure
	// friction against a monotonic clock" requirement.
	bandPeer  string
	bandSince time.Time

	frictionWindow time.Duration

	logger zerolog.Logger
}

// New constructs a Controller starting in Local state. frictionWindow
// is the minimum continuous dwell time in an edge-proximity band
// before a crossing commits (§4.6); zero makes every crossing commit
// immediately.
func New(frictionWindow time.Duration, logger zerolog.Logger) *Controller {
	return &Controller{
		state:          Local,
		frictionWindow: frictionWindow,
		logger:         logger,
	}
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := make([]string, len(c.history))
	copy(hist, c.history)
	return Snapshot{State: c.state, Peer: c.peer, EntryX: c.entryX, EntryY: c.entryY, History: hist}
}

// IsLocal reports whether focus is currently Local.
func (c *Controller) IsLocal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Local
}

// TryGrant unconditionally moves focus from Local to Remote(peer) at
// the given entry point. It is idempotent: granting the same peer
// again while already REMOTE(peer) is a no-op success, matching the
// edge case in §4.6 where repeated capture ticks near the border must
// not retrigger grabs. Friction's dwell requirement is enforced by
// EdgeCrossingGrant before it calls this; callers driving the state
// machine directly (e.g. from a received command) bypass dwell
// entirely, since there is no continuous cursor position to measure it
// against.
func (c *Controller) TryGrant(peer string, entryX, entryY int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grantLocked(peer, entryX, entryY)
}

func (c *Controller) grantLocked(peer string, entryX, entryY int32) bool {
	if c.state == Remote && c.peer == peer {
		return true
	}

	c.state = Remote
	c.peer = peer
	c.entryX = entryX
	c.entryY = entryY
	c.history = append(c.history, peer)

	c.logger.Info().Str("peer", peer).Int32("entry_x", entryX).Int32("entry_y", entryY).
		Msg("focus: granted to peer")
	return true
}

// Release moves focus back to Local, e.g. on a FocusRelease event from
// the currently-focused peer or a local disconnect. It is a no-op if
// focus is already Local, or if fromPeer does not match the currently
// focused peer (a stale release from a peer that lost focus earlier).
func (c *Controller) Release(fromPeer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Remote || c.peer != fromPeer {
		return
	}

	c.logger.Info().Str("peer", fromPeer).Msg("focus: released to local")
	c.state = Local
	c.peer = ""
	c.entryX, c.entryY = 0, 0
	c.bandPeer = ""
}

// KillSwitch forces focus back to Local unconditionally, bypassing the
// friction window — the operator-triggered escape hatch of §4.6.
func (c *Controller) KillSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Local {
		return
	}
	c.logger.Warn().Str("peer", c.peer).Msg("focus: kill-switch override")
	c.state = Local
	c.peer = ""
	c.entryX, c.entryY = 0, 0
	c.bandPeer = ""
}

// EdgeCrossingGrant is the per-capture-tick entry point HostLoop calls
// while Local (§4.7 step 3-5): it combines topology's edge detection
// with the §4.6 friction algorithm and, once satisfied, commits the
// transition via TryGrant.
//
// Each call is one observation of the cursor's position. If the
// position falls in the same neighbor's edge-proximity band as the
// previous call, the dwell clock keeps running from when that band was
// first entered; any other outcome (no band, or a different neighbor's
// band) resets the clock to now. The transition only commits once the
// cursor has been continuously in-band for at least frictionWindow;
// zero commits on the first observation.
func (c *Controller) EdgeCrossingGrant(topo *topology.Topology, x, y, screenWidth, screenHeight, threshold int32) (peer string, entryX, entryY int32, granted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	edge, name, ok := topo.DetectEdge(x, y, screenWidth, screenHeight, threshold)
	if !ok {
		c.bandPeer = ""
		return "", 0, 0, false
	}

	if name != c.bandPeer {
		c.bandPeer = name
		c.bandSince = time.Now()
	}

	ex, ey := topology.EntryPoint(edge, x, y, screenWidth, screenHeight, threshold)

	if c.frictionWindow > 0 && time.Since(c.bandSince) < c.frictionWindow {
		c.logger.Debug().Str("peer", name).Dur("elapsed", time.Since(c.bandSince)).
			Msg("focus: dwelling in edge band, friction not yet satisfied")
		return "", 0, 0, false
	}

	if !c.grantLocked(name, ex, ey) {
		return "", 0, 0, false
	}
	c.bandPeer = ""
	return name, ex, ey, true
}

package focus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multishiva/multishiva/api/pkg/topology"
)

func TestTryGrantAndRelease(t *testing.T) {
	c := New(0, zerolog.Nop())
	require.True(t, c.IsLocal())

	ok := c.TryGrant("agentA", 10, 540)
	require.True(t, ok)

	snap := c.Snapshot()
	assert.Equal(t, Remote, snap.State)
	assert.Equal(t, "agentA", snap.Peer)
	assert.Equal(t, int32(10), snap.EntryX)
	assert.Equal(t, []string{"agentA"}, snap.History)

	c.Release("agentA")
	assert.True(t, c.IsLocal())
}

func TestReleaseIgnoresStalePeer(t *testing.T) {
	c := New(0, zerolog.Nop())
	c.TryGrant("agentA", 0, 0)

	c.Release("agentB")
	assert.False(t, c.IsLocal())
	assert.Equal(t, "agentA", c.Snapshot().Peer)
}

func TestTryGrantIdempotentForSamePeer(t *testing.T) {
	c := New(time.Hour, zerolog.Nop())
	require.True(t, c.TryGrant("agentA", 1, 1))
	// TryGrant bypasses dwell entirely (only EdgeCrossingGrant enforces
	// it), but re-granting the already-focused peer is still a no-op
	// success rather than re-emitting a transition.
	assert.True(t, c.TryGrant("agentA", 2, 2))
	assert.Equal(t, int32(1), c.Snapshot().EntryX)
}

func TestEdgeCrossingGrantBlockedUntilDwellSatisfied(t *testing.T) {
	topo := topology.New(map[topology.Edge]string{topology.EdgeRight: "agentA"})
	c := New(50*time.Millisecond, zerolog.Nop())

	_, _, _, granted := c.EdgeCrossingGrant(topo, 1915, 540, 1920, 1080, 10)
	require.False(t, granted, "first observation must not commit before the dwell window elapses")
	assert.True(t, c.IsLocal())

	time.Sleep(60 * time.Millisecond)

	peer, x, y, granted := c.EdgeCrossingGrant(topo, 1915, 540, 1920, 1080, 10)
	require.True(t, granted, "continuous dwell past the friction window must commit")
	assert.Equal(t, "agentA", peer)
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(540), y)
}

func TestEdgeCrossingGrantResetsDwellOnMovementAwayFromBand(t *testing.T) {
	topo := topology.New(map[topology.Edge]string{topology.EdgeRight: "agentA"})
	c := New(50*time.Millisecond, zerolog.Nop())

	_, _, _, granted := c.EdgeCrossingGrant(topo, 1915, 540, 1920, 1080, 10)
	require.False(t, granted)

	time.Sleep(60 * time.Millisecond)

	// Cursor moves out of the band before the dwell window is checked
	// again: the timer must reset rather than carry over elapsed time.
	_, _, _, granted = c.EdgeCrossingGrant(topo, 960, 540, 1920, 1080, 10)
	require.False(t, granted)
	assert.True(t, c.IsLocal())

	_, _, _, granted = c.EdgeCrossingGrant(topo, 1915, 540, 1920, 1080, 10)
	require.False(t, granted, "re-entering the band must restart the dwell clock")
	assert.True(t, c.IsLocal())
}

func TestEdgeCrossingGrantZeroFrictionCommitsImmediately(t *testing.T) {
	topo := topology.New(map[topology.Edge]string{topology.EdgeRight: "agentA"})
	c := New(0, zerolog.Nop())

	peer, _, _, granted := c.EdgeCrossingGrant(topo, 1915, 540, 1920, 1080, 10)
	require.True(t, granted)
	assert.Equal(t, "agentA", peer)
}

func TestKillSwitchOverridesFriction(t *testing.T) {
	c := New(time.Hour, zerolog.Nop())
	c.TryGrant("agentA", 0, 0)

	c.KillSwitch()
	assert.True(t, c.IsLocal())
}

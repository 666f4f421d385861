package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEdge(t *testing.T) {
	topo := New(map[Edge]string{
		EdgeRight: "agentA",
		EdgeLeft:  "agentB",
	})

	tests := []struct {
		name       string
		x, y       int32
		wantEdge   Edge
		wantPeer   string
		wantFound  bool
	}{
		{"right edge", 1915, 540, EdgeRight, "agentA", true},
		{"left edge", 5, 540, EdgeLeft, "agentB", true},
		{"middle", 960, 540, "", "", false},
		{"top edge not configured", 960, 2, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, peer, found := topo.DetectEdge(tt.x, tt.y, 1920, 1080, 10)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantEdge, edge)
				assert.Equal(t, tt.wantPeer, peer)
			}
		})
	}
}

func TestDetectEdgeHorizontalBeforeVertical(t *testing.T) {
	// A corner near top-right: Right and Top both qualify; Right must win.
	topo := New(map[Edge]string{
		EdgeRight: "agentA",
		EdgeTop:   "agentC",
	})

	edge, peer, found := topo.DetectEdge(1918, 2, 1920, 1080, 10)
	assert.True(t, found)
	assert.Equal(t, EdgeRight, edge)
	assert.Equal(t, "agentA", peer)
}

func TestDetectEdgeRequiresConfiguredNeighbor(t *testing.T) {
	topo := New(map[Edge]string{EdgeRight: "agentA"})

	// Cursor is in the bottom band, but no Bottom neighbor is configured.
	_, _, found := topo.DetectEdge(10, 1079, 1920, 1080, 10)
	assert.False(t, found)
}

func TestEntryPointMatchesS1(t *testing.T) {
	x, y := EntryPoint(EdgeRight, 1915, 540, 1920, 1080, 10)
	assert.Equal(t, int32(10), x)
	assert.Equal(t, int32(540), y)
}

func TestOppositeIsInvolutive(t *testing.T) {
	for _, e := range []Edge{EdgeLeft, EdgeRight, EdgeTop, EdgeBottom} {
		assert.Equal(t, e, Opposite(Opposite(e)))
	}
}

package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeFiltersSelfAndTracksPeers(t *testing.T) {
	d := New("host", zerolog.Nop())

	entries := make(chan *zeroconf.ServiceEntry, 4)
	done := make(chan struct{})
	go func() {
		d.consume(entries)
		close(done)
	}()

	self := &zeroconf.ServiceEntry{}
	self.Instance = "host"
	self.Port = 45289
	self.AddrIPv4 = []net.IP{net.ParseIP("127.0.0.1")}
	entries <- self

	peer := &zeroconf.ServiceEntry{}
	peer.Instance = "agentA"
	peer.Port = 45289
	peer.TTL = 120 // a live resolution; TTL 0 would be a goodbye packet
	peer.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.50")}
	peer.Text = []string{"psk_hash=deadbeef"}
	entries <- peer

	close(entries)
	<-done

	assert.False(t, d.Has("host"))

	rec, ok := d.Get("agentA")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.50:45289", rec.FullAddress())
	assert.Equal(t, "deadbeef", rec.PSKHash)
}

func TestPeerRecordFullAddress(t *testing.T) {
	rec := PeerRecord{Name: "agentA", Address: net.ParseIP("192.168.1.50"), Port: 45289}
	assert.Equal(t, "192.168.1.50:45289", rec.FullAddress())
}

func TestClearEmptiesDirectory(t *testing.T) {
	d := New("host", zerolog.Nop())
	d.mu.Lock()
	d.peers["agentA"] = PeerRecord{Name: "agentA"}
	d.mu.Unlock()

	require.True(t, d.Has("agentA"))
	d.Clear()
	assert.False(t, d.Has("agentA"))
}

// Package discovery implements PeerDirectory: mDNS-based zero-config
// discovery of other multishiva instances, via
// github.com/grandcat/zeroconf. Grounded in
// original_source/src/core/discovery.rs, adapted from the Rust
// mdns_sd crate's register+browse shape to zeroconf's equivalent
// Register/Resolver API.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service type multishiva instances register
// and browse under (RFC 6763 DNS-SD naming).
const ServiceType = "_multishiva._tcp.local."

// PeerRecord is what PeerDirectory knows about one discovered instance.
type PeerRecord struct {
	Name    string
	Address net.IP
	Port    int
	PSKHash string
}

// FullAddress returns "ip:port" suitable for net.Dial.
func (p PeerRecord) FullAddress() string {
	return fmt.Sprintf("%s:%d", p.Address, p.Port)
}

// PeerDirectory registers this instance's presence and tracks peers
// discovered via mDNS browsing. Self-registration is filtered out of
// the tracked peer set by instance name (§4.10's supplemented
// requirement: a host must never treat its own broadcast as a peer).
type PeerDirectory struct {
	selfName string
	logger   zerolog.Logger

	server *zeroconf.Server

	mu    sync.Mutex
	peers map[string]PeerRecord
}

// New constructs an unstarted PeerDirectory for selfName.
func New(selfName string, logger zerolog.Logger) *PeerDirectory {
	return &PeerDirectory{
		selfName: selfName,
		logger:   logger,
		peers:    make(map[string]PeerRecord),
	}
}

// Register advertises this instance on the network. pskHash is carried
// as a TXT record so peers can display it for out-of-band fingerprint
// confirmation; it is never used as a substitute for the handshake
// itself.
func (d *PeerDirectory) Register(port int, pskHash string) error {
	text := []string{"role=multishiva"}
	if pskHash != "" {
		text = append(text, "psk_hash="+pskHash)
	}

	server, err := zeroconf.Register(d.selfName, ServiceType, "local.", port, text, nil)
	if err != nil {
		return fmt.Errorf("discovery: register mDNS service: %w", err)
	}
	d.server = server
	d.logger.Info().Str("name", d.selfName).Int("port", port).Msg("discovery: registered")
	return nil
}

// Unregister withdraws this instance's advertisement, if any.
func (d *PeerDirectory) Unregister() {
	if d.server != nil {
		d.server.Shutdown()
		d.server = nil
	}
}

// Browse starts resolving peers in the background until ctx is
// canceled. It returns once the resolver is running; discovered peers
// accumulate asynchronously and are visible through Get/List/Has.
func (d *PeerDirectory) Browse(ctx context.Context) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	go d.consume(entries)

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return fmt.Errorf("discovery: start browsing: %w", err)
	}

	d.logger.Info().Msg("discovery: browsing for peers")
	return nil
}

func (d *PeerDirectory) consume(entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		if entry.Instance == d.selfName {
			continue
		}

		// A goodbye packet (TTL 0) is mDNS's removal signal; drop the
		// record rather than treating it as a resolution (§4.10:
		// "Removal events delete the matching record").
		if entry.TTL == 0 {
			d.mu.Lock()
			delete(d.peers, entry.Instance)
			d.mu.Unlock()
			d.logger.Info().Str("peer", entry.Instance).Msg("discovery: peer removed")
			continue
		}

		addr := firstAddr(entry)
		if addr == nil {
			continue
		}

		rec := PeerRecord{Name: entry.Instance, Address: addr, Port: entry.Port}
		for _, kv := range entry.Text {
			if v, ok := strings.CutPrefix(kv, "psk_hash="); ok {
				rec.PSKHash = v
			}
		}

		d.mu.Lock()
		d.peers[rec.Name] = rec
		d.mu.Unlock()

		d.logger.Info().Str("peer", rec.Name).Str("addr", rec.FullAddress()).Msg("discovery: peer resolved")
	}
}

func firstAddr(entry *zeroconf.ServiceEntry) net.IP {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0]
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0]
	}
	return nil
}

// Get returns the record for a named peer, if discovered.
func (d *PeerDirectory) Get(name string) (PeerRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.peers[name]
	return rec, ok
}

// Has reports whether a named peer is currently known.
func (d *PeerDirectory) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// List returns a snapshot of every currently known peer.
func (d *PeerDirectory) List() []PeerRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]PeerRecord, 0, len(d.peers))
	for _, rec := range d.peers {
		out = append(out, rec)
	}
	return out
}

// Clear discards every discovered peer. Browsing, if running, will
// repopulate the directory as peers re-announce.
func (d *PeerDirectory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = make(map[string]PeerRecord)
}

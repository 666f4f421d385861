// Package connman tracks AgentLoop's single outbound connection to the
// host and drives its reconnect-with-backoff bookkeeping (resolves
// Open Question Q1). Grounded in the teacher's multi-tenant
// api/pkg/connman, which fronted many device connections behind
// revdial.Dialer so a server could reverse-dial back through an
// inbound tunnel; multishiva's AgentLoop instead dials the host
// directly over a plain net.Conn, so this adaptation drops the
// revdial/HTTP-reverse-dial layer entirely and narrows the map keyed
// by device ID down to the one named peer ("host"). It also drops the
// teacher's grace-period-blocked-dialers machinery: that existed to
// let many concurrent device callers wait out a single device's brief
// drop, but AgentLoop has exactly one caller and already drives its
// own retry loop through Reconnect, so there is nothing left to queue
// behind a blocking Current().
package connman

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNoConnection is returned by Reconnect when a zero or negative
	// delay disables in-process reconnect (§4.8's Open Question Q1).
	ErrNoConnection = errors.New("connman: no connection")
	// ErrReconnectTimeout is returned by Reconnect when maxAttempts is
	// exhausted without a successful dial.
	ErrReconnectTimeout = errors.New("connman: reconnect timeout")
)

// Manager tracks AgentLoop's connection to the host: whether it is
// currently connected, and the logic for redialing after a drop.
type Manager struct {
	logger zerolog.Logger

	lock      sync.RWMutex
	conn      net.Conn
	connected bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Manager.
func New(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Stop unblocks any in-progress Reconnect call, returning
// ErrNoConnection to its caller.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Set registers conn as the current connection to the host.
func (m *Manager) Set(conn net.Conn) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.conn = conn
	m.connected = true
}

// OnDisconnect marks the host as disconnected.
func (m *Manager) OnDisconnect() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.connected = false
	m.conn = nil
}

// Connected reports whether a live connection is currently registered.
func (m *Manager) Connected() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.connected
}

// DialFunc dials a fresh connection to the host.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Reconnect retries dial at delay intervals, bounded by maxAttempts
// (0 means unbounded), until it succeeds, ctx is canceled, or Stop is
// called. A zero or negative delay means no in-process reconnect at
// all — §4.8 leaves that case to an external supervisor — so Reconnect
// returns ErrNoConnection immediately. On success the new conn is
// registered via Set and returned.
func (m *Manager) Reconnect(ctx context.Context, dial DialFunc, delay time.Duration, maxAttempts int) (net.Conn, error) {
	if delay <= 0 {
		return nil, ErrNoConnection
	}

	for attempt := 1; maxAttempts <= 0 || attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.stopCh:
			return nil, ErrNoConnection
		case <-time.After(delay):
		}

		conn, err := dial(ctx)
		if err != nil {
			m.logger.Debug().Err(err).Int("attempt", attempt).Msg("connman: reconnect attempt failed")
			continue
		}

		m.logger.Info().Int("attempt", attempt).Msg("connman: reconnected to host")
		m.Set(conn)
		return conn, nil
	}

	return nil, ErrReconnectTimeout
}

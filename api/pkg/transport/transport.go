// Package transport runs the per-connection sender/receiver goroutine
// pair described in §4.5: frames drained from a bounded outbound
// channel interleaved with a heartbeat tick on the way out, and
// decoded frames delivered to a bounded inbound channel on the way in.
// Failure of either goroutine cancels both via the connection's
// context.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/multishiva/multishiva/api/pkg/eventmodel"
	"github.com/multishiva/multishiva/api/pkg/kverr"
)

const (
	// HeartbeatInterval is how often the sender emits a zero-length
	// pulse when the outbound queue is otherwise idle.
	HeartbeatInterval = 5 * time.Second
	// ReadDeadline is the receiver's per-frame deadline; three missed
	// heartbeat intervals without any frame is a timeout.
	ReadDeadline = 15 * time.Second
	// QueueSize bounds both the inbound and outbound channels (§4.5:
	// "implementers should size to ~100 events").
	QueueSize = 100
)

// Connection owns one TCP connection's framed duplex event stream. The
// zero value is not usable; construct with New.
type Connection struct {
	PeerName string

	conn   net.Conn
	logger zerolog.Logger

	outbound chan eventmodel.Event
	inbound  chan eventmodel.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropCount uint64
	dropMu    sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// New wraps conn and starts the sender and receiver goroutines. The
// returned Connection's Inbound channel delivers decoded Events in the
// exact order the peer's sender enqueued them (P5); Send accepts
// Events to send, applying oldest-drop backpressure when full.
func New(ctx context.Context, conn net.Conn, peerName string, logger zerolog.Logger) *Connection {
	ctx, cancel := context.WithCancel(ctx)
	c := &Connection{
		PeerName: peerName,
		conn:     conn,
		logger:   logger.With().Str("peer", peerName).Logger(),
		outbound: make(chan eventmodel.Event, QueueSize),
		inbound:  make(chan eventmodel.Event, QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(2)
	go c.senderTask()
	go c.receiverTask()

	return c
}

// Inbound returns the channel of events received from the peer.
func (c *Connection) Inbound() <-chan eventmodel.Event { return c.inbound }

// Send enqueues an event for transmission. If the outbound queue is
// full, the oldest queued event is dropped rather than blocking the
// caller — critical for the capture callback, which must never block
// (§4.5, §5).
func (c *Connection) Send(ev eventmodel.Event) {
	select {
	case c.outbound <- ev:
		return
	default:
	}

	// Queue full: drop the oldest, then enqueue the new event.
	select {
	case <-c.outbound:
		c.dropMu.Lock()
		c.dropCount++
		n := c.dropCount
		c.dropMu.Unlock()
		c.logger.Warn().Uint64("total_dropped", n).Msg("transport: outbound queue full, dropped oldest event")
	default:
	}

	select {
	case c.outbound <- ev:
	default:
		// Another producer raced us to the freed slot; drop this one too
		// rather than block.
		c.dropMu.Lock()
		c.dropCount++
		c.dropMu.Unlock()
	}
}

// DroppedCount returns the number of outbound events dropped so far
// due to backpressure.
func (c *Connection) DroppedCount() uint64 {
	c.dropMu.Lock()
	defer c.dropMu.Unlock()
	return c.dropCount
}

// Done returns a channel closed once the connection's context is
// canceled: when either task exits, Close is called, or the parent
// context ends. The tasks may still be winding down at that point;
// Close waits for them.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Close cancels both tasks and closes the underlying connection. Safe
// to call more than once and from multiple goroutines.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.conn.Close()
		c.wg.Wait()
	})
	return c.closeErr
}

func (c *Connection) senderTask() {
	defer c.wg.Done()
	defer c.cancel()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.outbound:
			if err := eventmodel.WriteEvent(c.conn, ev); err != nil {
				c.logger.Error().Err(err).Msg("transport: write failed")
				return
			}
		case <-ticker.C:
			if err := eventmodel.WriteHeartbeat(c.conn); err != nil {
				c.logger.Error().Err(err).Msg("transport: heartbeat write failed")
				return
			}
		}
	}
}

func (c *Connection) receiverTask() {
	defer c.wg.Done()
	defer c.cancel()

	for {
		if c.ctx.Err() != nil {
			return
		}

		ev, err := eventmodel.ReadFrame(c.conn, ReadDeadline)
		if errors.Is(err, eventmodel.ErrHeartbeat) {
			continue
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.logger.Warn().Msg("transport: read deadline exceeded, peer disconnected")
			} else {
				c.logger.Error().Err(err).Msg("transport: read failed")
			}
			return
		}

		select {
		case c.inbound <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

// ErrProtocol wraps a malformed-frame failure in the kverr taxonomy,
// for callers that want to classify a Connection's terminal error.
func ErrProtocol(err error) error {
	return kverr.New(kverr.ProtocolError, "transport", fmt.Errorf("%w", err))
}

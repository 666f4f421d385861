package connman

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	closed    bool
	closeChan chan struct{}
	mu        sync.Mutex
}

func newMockConn() *mockConn {
	return &mockConn{closeChan: make(chan struct{})}
}

func (c *mockConn) Read(b []byte) (int, error) {
	<-c.closeChan
	return 0, net.ErrClosed
}

func (c *mockConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return len(b), nil
}

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeChan)
	}
	return nil
}

func (c *mockConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *mockConn) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (c *mockConn) SetDeadline(t time.Time) error      { return nil }
func (c *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func TestManager_NotConnectedInitially(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	assert.False(t, m.Connected())
}

func TestManager_Set(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	m.Set(newMockConn())
	assert.True(t, m.Connected())
}

func TestManager_OnDisconnect(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	m.Set(newMockConn())
	m.OnDisconnect()

	assert.False(t, m.Connected())
}

func TestManager_Reconnect_ZeroDelayDisabled(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	_, err := m.Reconnect(context.Background(), func(ctx context.Context) (net.Conn, error) {
		t.Fatal("dial should never be called with zero delay")
		return nil, nil
	}, 0, 0)
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestManager_Reconnect_SucceedsAfterRetries(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	var attempts int
	conn, err := m.Reconnect(context.Background(), func(ctx context.Context) (net.Conn, error) {
		attempts++
		if attempts < 3 {
			return nil, assert.AnError
		}
		return newMockConn(), nil
	}, 10*time.Millisecond, 5)

	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 3, attempts)
	assert.True(t, m.Connected())
}

func TestManager_Reconnect_BoundedAttempts(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	var attempts int
	_, err := m.Reconnect(context.Background(), func(ctx context.Context) (net.Conn, error) {
		attempts++
		return nil, assert.AnError
	}, 5*time.Millisecond, 3)

	assert.ErrorIs(t, err, ErrReconnectTimeout)
	assert.Equal(t, 3, attempts)
}

func TestManager_Reconnect_ContextCancellation(t *testing.T) {
	m := New(zerolog.Nop())
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Reconnect(ctx, func(ctx context.Context) (net.Conn, error) {
		return nil, assert.AnError
	}, 50*time.Millisecond, 0)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestManager_Stop_UnblocksReconnect(t *testing.T) {
	m := New(zerolog.Nop())

	result := make(chan error, 1)
	go func() {
		_, err := m.Reconnect(context.Background(), func(ctx context.Context) (net.Conn, error) {
			return nil, assert.AnError
		}, time.Hour, 0)
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	m.Stop()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrNoConnection)
	case <-time.After(time.Second):
		t.Fatal("Reconnect did not unblock after Stop")
	}
}

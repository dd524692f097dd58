package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"battle-loadtest/internal/transport"
)

// fakeConn は受信フレームを事前に積んでおけるテスト用の接続
type fakeConn struct {
	inbound chan []byte
	mu      sync.Mutex
	sent    [][]byte
	closed  atomic.Bool
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{inbound: make(chan []byte, 64)}
	for _, f := range frames {
		c.inbound <- []byte(f)
	}
	return c
}

func (c *fakeConn) Send(_ context.Context, frame []byte) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f, ok := <-c.inbound:
		if !ok {
			return nil, transport.ErrClosed
		}
		return f, nil
	case <-timer.C:
		return nil, transport.ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeDialer は failures 回失敗した後に conn を返す
type fakeDialer struct {
	failures int
	conn     transport.Conn
	calls    atomic.Int32
	panicOn  bool
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (transport.Conn, error) {
	n := int(d.calls.Add(1))
	if d.panicOn {
		panic("dialer exploded")
	}
	if n <= d.failures {
		return nil, errors.New("connection refused")
	}
	return d.conn, nil
}

func testConfig(d transport.Dialer) Config {
	return Config{
		Dialer:       d,
		PollInterval: 20 * time.Millisecond,
		BackoffBase:  time.Millisecond,
		DropPause:    2 * time.Millisecond,
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

var (
	// ErrClosed は接続が閉じられている場合に返される
	ErrClosed = errors.New("connection closed")
	// ErrReceiveTimeout は受信待ちがタイムアウトした場合に返される
	ErrReceiveTimeout = errors.New("receive timeout")
)

// Conn はメッセージ単位の双方向接続
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Dialer はエンドポイントへの接続を確立する
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketDialer は WebSocket 接続を確立する Dialer
type WebSocketDialer struct {
	Origin      string
	DialTimeout time.Duration
	BufferSize  int
}

// NewWebSocketDialer はデフォルト設定の WebSocketDialer を作成する
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		Origin:      "http://localhost/",
		DialTimeout: 10 * time.Second,
		BufferSize:  64,
	}
}

// Dial は WebSocket 接続を確立し、読み取りゴルーチンを起動する
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	cfg, err := websocket.NewConfig(endpoint, d.Origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config for %s: %w", endpoint, err)
	}

	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}

	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	return newWSConn(ws, d.BufferSize), nil
}

// wsConn は websocket.Conn を Conn に適合させる
type wsConn struct {
	ws     *websocket.Conn
	frames chan []byte
	done   chan struct{}

	sendMu    sync.Mutex
	closeOnce sync.Once
	mu        sync.Mutex
	readErr   error
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = 64
	}
	c := &wsConn{
		ws:     ws,
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
	go c.readPump()
	return c
}

// readPump はサーバーからのフレームを読み続ける
func (c *wsConn) readPump() {
	defer close(c.frames)

	for {
		var msg string
		if err := websocket.Message.Receive(c.ws, &msg); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		select {
		case c.frames <- []byte(msg):
		case <-c.done:
			return
		}
	}
}

// Send はテキストフレームを1つ送信する
func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := websocket.Message.Send(c.ws, string(frame)); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Receive は timeout までフレームを待つ
func (c *wsConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-c.frames:
		if !ok {
			return nil, c.closedErr()
		}
		return frame, nil
	case <-timer.C:
		return nil, ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *wsConn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

// Close は接続を閉じる。複数回呼んでもよい
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func newEchoServer(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
			if msg == "close" {
				return
			}
			if err := websocket.Message.Send(ws, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketSendReceive(t *testing.T) {
	url := newEchoServer(t)
	ctx := context.Background()

	conn, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, []byte(`{"type":"PING"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	frame, err := conn.Receive(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(frame) != `{"type":"PING"}` {
		t.Errorf("unexpected frame: %s", frame)
	}
}

func TestWebSocketReceiveTimeout(t *testing.T) {
	url := newEchoServer(t)
	ctx := context.Background()

	conn, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	start := time.Now()
	_, err = conn.Receive(ctx, 50*time.Millisecond)
	if !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("expected ErrReceiveTimeout, got %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Receive returned before the timeout")
	}
}

func TestWebSocketServerClose(t *testing.T) {
	url := newEchoServer(t)
	ctx := context.Background()

	conn, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, []byte("close")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_, err = conn.Receive(ctx, 2*time.Second)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after server close, got %v", err)
	}
}

func TestWebSocketCloseIdempotent(t *testing.T) {
	url := newEchoServer(t)
	ctx := context.Background()

	conn, err := NewWebSocketDialer().Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	_ = conn.Close()
	_ = conn.Close()

	if err := conn.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on send after close, got %v", err)
	}
	if _, err := conn.Receive(ctx, time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on receive after close, got %v", err)
	}
}

func TestWebSocketDialUnreachable(t *testing.T) {
	d := NewWebSocketDialer()
	d.DialTimeout = time.Second

	_, err := d.Dial(context.Background(), "ws://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected dial error for unreachable endpoint")
	}
}

func TestWebSocketDialInvalidURL(t *testing.T) {
	_, err := NewWebSocketDialer().Dial(context.Background(), "://bad")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

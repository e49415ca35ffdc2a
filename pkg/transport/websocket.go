package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the WebSocket transport.
type WSConfig struct {
	// URL is the ws:// or wss:// endpoint
	URL string
	// TLSConfig applies to wss:// connections
	TLSConfig *tls.Config
	// HandshakeTimeout bounds the WebSocket upgrade
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each Send
	WriteTimeout time.Duration
	// MaxFrameSize caps an inbound message
	MaxFrameSize int64
}

// DefaultWSConfig returns the standard WebSocket settings.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxFrameSize:     maxDatagramSize,
	}
}

// WSTransport moves frames as binary WebSocket messages. Useful where UDP is
// blocked and the unreliable-datagram model degrades to a reliable stream of
// whole frames.
type WSTransport struct {
	config WSConfig
	conn   *websocket.Conn

	writeMu sync.Mutex
	closed  bool
	mu      sync.Mutex
}

// DialWS connects to a WebSocket endpoint.
func DialWS(ctx context.Context, config WSConfig) (*WSTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: config.HandshakeTimeout,
		TLSClientConfig:  config.TLSConfig,
	}

	conn, _, err := dialer.DialContext(ctx, config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: WebSocket dial failed: %w", err)
	}

	if config.MaxFrameSize > 0 {
		conn.SetReadLimit(config.MaxFrameSize)
	}

	return &WSTransport{config: config, conn: conn}, nil
}

// AcceptWS upgrades an inbound HTTP request into a transport (server side).
func AcceptWS(w http.ResponseWriter, r *http.Request, config WSConfig) (*WSTransport, error) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: config.HandshakeTimeout,
		// The record layer authenticates everything; origin checks are
		// the host application's policy
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: WebSocket upgrade failed: %w", err)
	}

	if config.MaxFrameSize > 0 {
		conn.SetReadLimit(config.MaxFrameSize)
	}

	return &WSTransport{config: config, conn: conn}, nil
}

// Send transmits one frame as a binary message.
func (t *WSTransport) Send(ctx context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(t.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("transport: WebSocket send failed: %w", err)
	}
	return nil
}

// Receive blocks for the next binary message.
func (t *WSTransport) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
	} else {
		t.conn.SetReadDeadline(time.Time{})
	}

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("transport: WebSocket receive failed: %w", err)
		}

		if msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close frame and releases the connection.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	t.writeMu.Lock()
	t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	return t.conn.Close()
}

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// quicALPN is the application protocol identifier negotiated in the QUIC
// TLS handshake. The outer TLS layer only moves frames; end-to-end security
// comes from the record layer inside.
const quicALPN = "b4ae/1"

// QUICTransport moves frames as QUIC DATAGRAM frames (RFC 9221), preserving
// the unreliable-datagram model while traversing networks that drop bare UDP.
type QUICTransport struct {
	conn     quic.Connection
	listener *quic.Listener
}

func quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  30 * time.Second,
	}
}

// DialQUIC connects to a QUIC endpoint.
func DialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config) (*QUICTransport, error) {
	if tlsConfig == nil {
		return nil, fmt.Errorf("transport: QUIC requires a TLS configuration")
	}
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{quicALPN}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("transport: QUIC dial failed: %w", err)
	}

	return &QUICTransport{conn: conn}, nil
}

// ListenQUIC accepts a single peer connection on addr.
func ListenQUIC(ctx context.Context, addr string, tlsConfig *tls.Config) (*QUICTransport, error) {
	if tlsConfig == nil {
		return nil, fmt.Errorf("transport: QUIC requires a TLS configuration")
	}
	tlsConfig = tlsConfig.Clone()
	tlsConfig.NextProtos = []string{quicALPN}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to resolve address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to bind UDP socket: %w", err)
	}

	listener, err := quic.Listen(udpConn, tlsConfig, quicConfig())
	if err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("transport: QUIC listen failed: %w", err)
	}

	conn, err := listener.Accept(ctx)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("transport: QUIC accept failed: %w", err)
	}

	return &QUICTransport{conn: conn, listener: listener}, nil
}

// Send transmits one frame as a QUIC datagram.
func (t *QUICTransport) Send(_ context.Context, frame []byte) error {
	if err := t.conn.SendDatagram(frame); err != nil {
		return fmt.Errorf("transport: QUIC send failed: %w", err)
	}
	return nil
}

// Receive blocks for the next datagram.
func (t *QUICTransport) Receive(ctx context.Context) ([]byte, error) {
	frame, err := t.conn.ReceiveDatagram(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transport: QUIC receive failed: %w", err)
	}
	return frame, nil
}

// Close tears down the connection and listener.
func (t *QUICTransport) Close() error {
	err := t.conn.CloseWithError(0, "closed")
	if t.listener != nil {
		t.listener.Close()
	}
	return err
}

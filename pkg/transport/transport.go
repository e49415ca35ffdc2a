// Package transport supplies byte transports for B4AE frames. The core is
// transport-agnostic — it consumes and produces buffers — so everything in
// this package is a collaborator the demos and hosts wire up themselves.
//
// Frames are handshake envelopes or records; the transport moves each one
// as a single datagram or message and guarantees nothing about ordering or
// delivery. Authenticity and replay protection live in the record layer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrClosed indicates the transport was closed.
var ErrClosed = errors.New("transport: closed")

// Transport moves whole frames between two endpoints.
type Transport interface {
	// Send transmits one frame
	Send(ctx context.Context, frame []byte) error
	// Receive blocks for the next frame
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the underlying connection
	Close() error
}

// maxDatagramSize bounds a received frame. Handshake envelopes exceed
// typical MTUs and may arrive IP-fragmented, so this is sized for the
// largest handshake message rather than a record.
const maxDatagramSize = 64 * 1024

// UDPTransport sends each frame as one UDP datagram.
type UDPTransport struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

// DialUDP binds localAddr (empty for ephemeral) and targets remoteAddr.
func DialUDP(localAddr, remoteAddr string) (*UDPTransport, error) {
	var local *net.UDPAddr
	var err error

	if localAddr != "" {
		local, err = net.ResolveUDPAddr("udp", localAddr)
		if err != nil {
			return nil, fmt.Errorf("transport: failed to resolve local address: %w", err)
		}
	}

	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to resolve remote address: %w", err)
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to bind UDP socket: %w", err)
	}

	return &UDPTransport{conn: conn, peer: remote}, nil
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send transmits one frame to the peer.
func (t *UDPTransport) Send(ctx context.Context, frame []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
	} else {
		t.conn.SetWriteDeadline(time.Time{})
	}

	if _, err := t.conn.WriteToUDP(frame, t.peer); err != nil {
		return fmt.Errorf("transport: UDP send failed: %w", err)
	}
	return nil
}

// Receive blocks for the next datagram. Datagrams from other sources are
// dropped; the record layer authenticates the rest.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, error) {
	buf := make([]byte, maxDatagramSize)

	for {
		if deadline, ok := ctx.Deadline(); ok {
			if err := t.conn.SetReadDeadline(deadline); err != nil {
				return nil, fmt.Errorf("transport: %w", err)
			}
		} else {
			t.conn.SetReadDeadline(time.Time{})
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("transport: UDP receive failed: %w", err)
		}

		if addr.IP.Equal(t.peer.IP) && addr.Port == t.peer.Port {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			return frame, nil
		}
	}
}

// Close releases the socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

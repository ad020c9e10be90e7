package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
)

// maxDatagramSize is the largest UDP payload
const maxDatagramSize = 65535

// UDPTransport delivers each received datagram as one frame.
// Datagrams are handled inline, one at a time, so arrival order is kept.
type UDPTransport struct {
	conn net.PacketConn
	settings

	mu     sync.RWMutex
	closed bool
}

// ListenUDP creates a UDP transport bound to addr
func ListenUDP(addr string, opts ...Option) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return NewUDPTransport(conn, opts...), nil
}

// NewUDPTransport creates a UDP transport from an existing PacketConn.
// The transport owns the connection from then on.
func NewUDPTransport(conn net.PacketConn, opts ...Option) *UDPTransport {
	return &UDPTransport{
		conn:     conn,
		settings: newSettings(opts),
	}
}

// Serve implements Transport.Serve for UDP. Each datagram is echoed as a
// LinePrefix line before it is handed over.
func (t *UDPTransport) Serve(ctx context.Context, handler Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = t.Close()
	})
	defer stop()

	buffer := make([]byte, maxDatagramSize)

	for {
		n, _, err := t.conn.ReadFrom(buffer)
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()

			if closed || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			return err
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		t.echoLine(FormatLine(data))
		handler(data)
	}
}

// LocalAddr returns the local network address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close implements Transport.Close.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.conn.Close()
}

// String implements Transport.String
func (t *UDPTransport) String() string {
	return "udp://" + t.conn.LocalAddr().String()
}

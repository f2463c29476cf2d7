package a2s

import (
	"context"
	"errors"
	"net"
	"time"
)

// Transport abstracts the datagram socket a Client sends queries and receives responses over.
// Implementations must respect the context deadline and cancellation of each call.
type Transport interface {
	// Send transmits packet to dest.
	Send(ctx context.Context, packet []byte, dest net.Addr) error

	// Receive reads one datagram into buf and returns its length and source address.
	Receive(ctx context.Context, buf []byte) (int, net.Addr, error)

	// Close releases the socket.
	Close() error
}

// UDPTransport is a Transport over a net.PacketConn.
type UDPTransport struct {
	conn net.PacketConn
}

// ListenUDP binds an unconnected UDP socket on address, e.g. "0.0.0.0:0".
func ListenUDP(address string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, &NetworkError{Op: "listen", Err: err}
	}

	return NewUDPTransport(conn), nil
}

// NewUDPTransport wraps an existing packet connection. The transport takes ownership of conn.
func NewUDPTransport(conn net.PacketConn) *UDPTransport {
	return &UDPTransport{conn: conn}
}

// LocalAddr returns the local address of the socket.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send writes packet to dest, bounded by the context deadline.
func (t *UDPTransport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	stop, err := t.bind(ctx, t.conn.SetWriteDeadline)
	if err != nil {
		return &NetworkError{Op: "send", Addr: dest, Err: err}
	}
	defer stop()

	if _, err := t.conn.WriteTo(packet, dest); err != nil {
		return &NetworkError{Op: "send", Addr: dest, Err: t.classify(ctx, err)}
	}

	return nil
}

// Receive reads one datagram, bounded by the context deadline. Cancelling ctx unblocks a
// pending read.
func (t *UDPTransport) Receive(ctx context.Context, buf []byte) (int, net.Addr, error) {
	stop, err := t.bind(ctx, t.conn.SetReadDeadline)
	if err != nil {
		return 0, nil, &NetworkError{Op: "receive", Err: err}
	}
	defer stop()

	n, addr, err := t.conn.ReadFrom(buf)
	if err != nil {
		return 0, nil, &NetworkError{Op: "receive", Err: t.classify(ctx, err)}
	}

	return n, addr, nil
}

// Close closes the socket.
func (t *UDPTransport) Close() error {
	if err := t.conn.Close(); err != nil {
		return &NetworkError{Op: "close", Err: err}
	}
	return nil
}

// bind applies the context deadline to the socket and arranges for cancellation to expire it.
func (t *UDPTransport) bind(ctx context.Context, setDeadline func(time.Time) error) (func() bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, t.classify(ctx, err)
	}

	deadline, _ := ctx.Deadline()
	if err := setDeadline(deadline); err != nil {
		return nil, err
	}

	return context.AfterFunc(ctx, func() {
		_ = setDeadline(time.Unix(1, 0))
	}), nil
}

// classify maps deadline expiry to ErrTimeout and explicit cancellation to the context error.
func (t *UDPTransport) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrTimeout
	}

	return err
}

package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxFrameSize bounds a single message.
const MaxFrameSize = 16 << 20

const headerLen = 4

// TCPDialer connects to the job server over TCP
type TCPDialer struct {
	Addr    string
	Timeout time.Duration // per-operation I/O timeout, 0 for none
	dialer  net.Dialer
}

// NewTCPDialer creates a dialer for addr (host:port).
func NewTCPDialer(addr string, timeout time.Duration) *TCPDialer {
	return &TCPDialer{
		Addr:    addr,
		Timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

// Dial opens a framed connection.
func (d *TCPDialer) Dial(ctx context.Context) (Conn, error) {
	nc, err := d.dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Addr, err)
	}
	return NewFramedConn(nc, d.Timeout), nil
}

// FramedConn carries messages over a stream as a 4-byte big-endian length
// followed by the payload.
type FramedConn struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// NewFramedConn wraps an established stream connection.
func NewFramedConn(conn net.Conn, timeout time.Duration) *FramedConn {
	return &FramedConn{
		conn:    conn,
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}
}

// Send writes one frame.
func (c *FramedConn) Send(ctx context.Context, msg string) error {
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}
	stop, err := c.watch(ctx, c.conn.SetWriteDeadline)
	if err != nil {
		return err
	}
	defer stop()

	buf := make([]byte, headerLen+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[headerLen:], msg)
	if _, err := c.conn.Write(buf); err != nil {
		return c.ioErr(ctx, "send", err)
	}
	return nil
}

// Receive reads one frame.
func (c *FramedConn) Receive(ctx context.Context) (string, error) {
	stop, err := c.watch(ctx, c.conn.SetReadDeadline)
	if err != nil {
		return "", err
	}
	defer stop()

	var header [headerLen]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return "", c.ioErr(ctx, "receive", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return "", c.ioErr(ctx, "receive", err)
	}
	return string(payload), nil
}

// Close closes the underlying connection.
func (c *FramedConn) Close() error {
	return c.conn.Close()
}

// watch applies the earlier of the ctx deadline and the I/O timeout, and expires
// the deadline immediately if ctx is cancelled while the operation blocks.
func (c *FramedConn) watch(ctx context.Context, setDeadline func(time.Time) error) (func() bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var deadline time.Time
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := setDeadline(deadline); err != nil {
		return nil, err
	}
	return context.AfterFunc(ctx, func() {
		_ = setDeadline(time.Now())
	}), nil
}

func (c *FramedConn) ioErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if err == io.EOF {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

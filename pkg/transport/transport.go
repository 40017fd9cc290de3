// Package transport provides the message channels the worker talks to the job
// server over. A Conn carries whole messages; framing is the transport's concern.
package transport

import (
	"context"
	"errors"
)

// Errors
var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrClosed        = errors.New("connection closed")
)

// Conn is an established connection to the job server.
type Conn interface {
	// Send delivers one complete message.
	Send(ctx context.Context, msg string) error
	// Receive blocks until one complete message arrives.
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Dialer opens a fresh Conn for each job cycle.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

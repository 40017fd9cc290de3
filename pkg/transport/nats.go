package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSDialer reaches the job server through a NATS subject. Each Conn subscribes a
// private inbox: messages are published to Subject with the inbox as reply
// subject, and the server answers on the inbox.
type NATSDialer struct {
	URL     string
	Subject string
	Timeout time.Duration // per-receive timeout, 0 for none
	Options []nats.Option
}

// NewNATSDialer creates a dialer for the given server URL and subject.
func NewNATSDialer(url, subject string, timeout time.Duration, opts ...nats.Option) *NATSDialer {
	return &NATSDialer{
		URL:     url,
		Subject: subject,
		Timeout: timeout,
		Options: opts,
	}
}

// Dial connects to NATS and subscribes a fresh inbox.
func (d *NATSDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := append([]nats.Option{nats.Name("rangecrack-worker")}, d.Options...)
	if d.Timeout > 0 {
		opts = append(opts, nats.Timeout(d.Timeout))
	}
	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.URL, err)
	}
	inbox := nats.NewInbox()
	sub, err := nc.SubscribeSync(inbox)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", inbox, err)
	}
	return &natsConn{nc: nc, sub: sub, subject: d.Subject, inbox: inbox, timeout: d.Timeout}, nil
}

type natsConn struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	inbox   string
	timeout time.Duration
}

func (c *natsConn) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.nc.PublishRequest(c.subject, c.inbox, []byte(msg)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := c.nc.Flush(); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *natsConn) Receive(ctx context.Context) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	m, err := c.sub.NextMsgWithContext(ctx)
	if err != nil {
		if err == nats.ErrConnectionClosed || err == nats.ErrBadSubscription {
			return "", fmt.Errorf("receive: %w", ErrClosed)
		}
		return "", fmt.Errorf("receive: %w", err)
	}
	return string(m.Data), nil
}

func (c *natsConn) Close() error {
	_ = c.sub.Unsubscribe()
	c.nc.Close()
	return nil
}

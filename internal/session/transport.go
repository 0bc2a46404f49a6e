package session

import (
	"context"
	"fmt"

	"github.com/nerrad567/wemo-gateway/internal/channel"
)

// Inbound is one accepted connection. The loop reads a single envelope
// from it and closes it.
type Inbound interface {
	Receive() (channel.Envelope, error)
	Close() error
}

// Transport is what the session loop needs from the channel: a way to
// accept inbound connections and a way to deliver an ack to a peer port.
type Transport interface {
	Accept(ctx context.Context) (Inbound, error)
	Send(ctx context.Context, port int, env channel.Envelope) error
}

// ChannelTransport is the production Transport over package channel.
//
// Acks are delivered on a fresh authenticated connection per message,
// dialled at the configured ack host and the ack's destination port.
type ChannelTransport struct {
	listener *channel.Listener
	dial     channel.Config
}

// NewChannelTransport wraps a bound listener. dial supplies the ack host,
// shared key and timeouts; its Port is replaced per ack.
func NewChannelTransport(listener *channel.Listener, dial channel.Config) *ChannelTransport {
	return &ChannelTransport{listener: listener, dial: dial}
}

// Accept implements Transport.
func (t *ChannelTransport) Accept(ctx context.Context) (Inbound, error) {
	conn, err := t.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Send implements Transport.
func (t *ChannelTransport) Send(ctx context.Context, port int, env channel.Envelope) error {
	cfg := t.dial
	cfg.Port = port

	conn, err := channel.Dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect for ack: %w", err)
	}
	defer conn.Close()

	if err := conn.Send(env); err != nil {
		return fmt.Errorf("send ack: %w", err)
	}
	return nil
}

// Close closes the underlying listener.
func (t *ChannelTransport) Close() error {
	return t.listener.Close()
}

package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/channel"
	"github.com/nerrad567/wemo-gateway/internal/dispatch"
	"github.com/nerrad567/wemo-gateway/internal/message"
)

// acceptRetryDelay throttles the loop when Accept keeps failing for a
// reason other than a rejected peer.
const acceptRetryDelay = 100 * time.Millisecond

// Logger defines the logging interface used by the Loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loop is the gateway's single sequential message pump.
//
// Each iteration accepts one connection, reads one envelope, closes the
// connection, decodes and dispatches the message and, if an ack results,
// delivers it on a new outbound connection. No state survives an
// iteration except what the dispatcher keeps in its Gateway.
type Loop struct {
	transport  Transport
	dispatcher *dispatch.Dispatcher
	logger     Logger
}

// NewLoop creates a loop over transport and dispatcher.
func NewLoop(transport Transport, dispatcher *dispatch.Dispatcher) *Loop {
	return &Loop{
		transport:  transport,
		dispatcher: dispatcher,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// Run processes messages until a shutdown command has been handled.
//
// Failures to accept, read, decode or acknowledge are logged and the loop
// moves on. Run returns nil after shutdown, ctx.Err() if ctx is cancelled
// and channel.ErrClosed if the listener is closed underneath it.
func (l *Loop) Run(ctx context.Context) error {
	gw := l.dispatcher.Gateway()
	l.logger.Info("session loop started", "local_port", gw.LocalPort())

	for gw.Running() {
		if err := l.step(ctx); err != nil {
			l.logger.Info("session loop interrupted", "error", err)
			return err
		}
	}

	l.logger.Info("session loop stopped", "shutdown_at", gw.ShutdownAt())
	return nil
}

// step runs one iteration. It returns an error only when the loop must end.
func (l *Loop) step(ctx context.Context) error {
	conn, err := l.transport.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, channel.ErrClosed) {
			return err
		}
		l.logger.Warn("accept failed", "error", err)
		if !errors.Is(err, channel.ErrAuthFailed) {
			return sleepCtx(ctx, acceptRetryDelay)
		}
		return nil
	}

	env, err := conn.Receive()
	if cerr := conn.Close(); cerr != nil {
		l.logger.Debug("closing inbound connection", "error", cerr)
	}
	if err != nil {
		l.logger.Warn("receive failed", "error", err)
		return nil
	}

	msg, err := message.Decode(env.Body)
	msg.Ref = env.Ref
	if err != nil {
		l.logger.Warn("message has invalid port fields", "raw", string(env.Body), "ref", env.Ref, "error", err)
	}

	ack := l.dispatcher.Dispatch(ctx, msg)
	if ack != nil {
		l.deliver(ctx, ack)
	}
	return nil
}

// deliver sends ack to its destination port. Failures are logged only.
func (l *Loop) deliver(ctx context.Context, ack *message.Message) {
	port, err := strconv.Atoi(ack.Dest())
	if err != nil {
		l.logger.Warn("ack has no destination port", "ack", ack.String())
		return
	}

	env := channel.Envelope{Ref: ack.Ref, Body: ack.Bytes()}
	if err := l.transport.Send(ctx, port, env); err != nil {
		l.logger.Warn("ack delivery failed", "port", port, "ref", ack.Ref, "type", ack.Type, "error", err)
		return
	}
	l.logger.Debug("ack delivered", "port", port, "ref", ack.Ref, "type", ack.Type)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

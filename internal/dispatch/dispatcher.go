package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/nerrad567/wemo-gateway/internal/device"
	"github.com/nerrad567/wemo-gateway/internal/message"
)

// ErrorPayload is the ack payload reporting a failed command.
const ErrorPayload = "error"

// maxPayloadArgs is the most comma-separated arguments a payload carries
// (name, address, state).
const maxPayloadArgs = 3

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher turns one decoded message into zero or one acknowledgement.
type Dispatcher struct {
	gw        *Gateway
	logger    Logger
	observers multiObserver
	now       func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithObserver adds an observer notified after every accepted message.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher over gw.
func New(gw *Gateway, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gw:     gw,
		logger: noopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Gateway returns the state this dispatcher updates.
func (d *Dispatcher) Gateway() *Gateway {
	return d.gw
}

// Dispatch processes msg and returns the acknowledgement to send, or nil.
//
// Messages addressed to another port, messages whose reference number
// equals the dedup register and unknown type codes produce no ack and
// leave the register untouched. For every other message exactly one ack
// is built and the register is set to the message's reference number,
// whatever the command outcome. Device failures never escape: they are
// reported in the ack payload.
//
// Parameters:
//   - ctx: Bounds any device work
//   - msg: Decoded inbound message with Ref populated
//
// Returns:
//   - *message.Message: Ack to send back to msg's source, or nil
func (d *Dispatcher) Dispatch(ctx context.Context, msg *message.Message) *message.Message {
	d.logger.Debug("received message", "message", msg.String())

	if msg.Dest() != d.gw.LocalPort() {
		d.logger.Debug("message not addressed to this process", "dest", msg.Dest(), "local_port", d.gw.LocalPort())
		return nil
	}
	if d.gw.isDuplicate(msg.Ref) {
		d.logger.Debug("duplicate message dropped", "ref", msg.Ref)
		return nil
	}

	start := d.now()
	ev := Event{
		Ref:    msg.Ref,
		Type:   msg.Type,
		Source: msg.Source(),
		Time:   start,
	}

	var payload string
	switch msg.Type {
	case message.TypeHeartbeat:
		d.gw.recordHeartbeat(start)
		ev.Outcome = OutcomeOK

	case message.TypeDiscover:
		payload = d.discover(ctx, msg, &ev)

	case message.TypeSetState:
		payload = d.setState(ctx, msg, &ev)

	case message.TypeGetState:
		payload = d.getState(ctx, msg, &ev)

	case message.TypeShutdown:
		d.logger.Info("kill code received", "ref", msg.Ref, "source", msg.Source())
		d.gw.stop(start)
		ev.Outcome = OutcomeOK

	default:
		d.logger.Warn("unknown message type dropped", "type", msg.Type, "ref", msg.Ref)
		return nil
	}

	ack := message.NewAck(msg, d.gw.LocalPort(), payload)
	d.logger.Debug("returning ack", "message", ack.String())

	d.gw.setLastRef(msg.Ref)
	d.logger.Debug("updated last ref register", "ref", msg.Ref)

	ev.AckType = ack.Type
	ev.AckPayload = ack.Payload
	ev.Duration = d.now().Sub(start)
	d.notify(ctx, ev)

	return ack
}

func (d *Dispatcher) discover(ctx context.Context, msg *message.Message, ev *Event) string {
	name, address, ok := targetArgs(msg)
	if !ok {
		d.logger.Warn("malformed discover payload", "payload", msg.Payload, "name", msg.Name)
		ev.Outcome = OutcomeMalformed
		return ErrorPayload
	}
	ev.Name, ev.Address = name, address

	d.logger.Debug("discovering device", "name", name, "address", address)
	if _, err := d.gw.registry.Discover(ctx, name, address); err != nil {
		d.logger.Debug("discover failed", "name", name, "error", err)
		ev.Outcome = OutcomeNotFound
		return ""
	}
	ev.Outcome = OutcomeOK
	return ""
}

func (d *Dispatcher) setState(ctx context.Context, msg *message.Message, ev *Event) string {
	name, address, state, ok := setStateArgs(msg)
	if !ok {
		d.logger.Warn("malformed set-state payload", "payload", msg.Payload, "name", msg.Name, "state", msg.State)
		ev.Outcome = OutcomeMalformed
		return ErrorPayload
	}
	ev.Name, ev.Address, ev.State = name, address, state

	op, err := device.OpForState(state)
	if err != nil {
		d.logger.Warn("invalid set-state value", "name", name, "state", state)
		ev.Outcome = OutcomeMalformed
		return ErrorPayload
	}

	d.logger.Debug("setting device state", "name", name, "address", address, "op", op.String())
	if _, err := d.gw.registry.Apply(ctx, name, address, op); err != nil {
		d.logger.Debug("set-state not applied", "name", name, "error", err)
		ev.Outcome = OutcomeNotFound
		return ""
	}
	ev.Outcome = OutcomeOK
	return ""
}

func (d *Dispatcher) getState(ctx context.Context, msg *message.Message, ev *Event) string {
	name, address, ok := targetArgs(msg)
	if !ok {
		d.logger.Warn("malformed get-state payload", "payload", msg.Payload, "name", msg.Name)
		ev.Outcome = OutcomeMalformed
		return ErrorPayload
	}
	ev.Name, ev.Address = name, address

	d.logger.Debug("reading device state", "name", name, "address", address)
	state, err := d.gw.registry.Apply(ctx, name, address, device.OpQueryState)
	if err != nil {
		d.logger.Debug("get-state failed", "name", name, "error", err)
		ev.Outcome = OutcomeNotFound
		return ErrorPayload
	}
	ev.State = state
	ev.Outcome = OutcomeOK
	return strings.Join([]string{name, address, state}, ",")
}

func (d *Dispatcher) notify(ctx context.Context, ev Event) {
	if len(d.observers) == 0 {
		return
	}
	if err := d.observers.Observe(ctx, ev); err != nil {
		d.logger.Warn("observer failed", "ref", ev.Ref, "type", ev.Type, "error", err)
	}
}

// targetArgs extracts (name, address) for discover and get-state.
//
// The payload form "name,address" is preferred. A payload holding only
// an address is accepted when the name field is set.
func targetArgs(msg *message.Message) (name, address string, ok bool) {
	args := splitPayload(msg.Payload)
	switch {
	case len(args) >= 2 && args[0] != "" && args[1] != "":
		return args[0], args[1], true
	case len(args) == 1 && args[0] != "" && msg.Name != "":
		return msg.Name, args[0], true
	default:
		return "", "", false
	}
}

// setStateArgs extracts (name, address, state) for set-state.
//
// The payload form "name,address,state" is preferred. "name,address"
// takes the state field, and a lone address takes both name and state
// fields.
func setStateArgs(msg *message.Message) (name, address, state string, ok bool) {
	args := splitPayload(msg.Payload)
	switch {
	case len(args) == maxPayloadArgs && args[0] != "" && args[1] != "":
		return args[0], args[1], args[2], true
	case len(args) == 2 && args[0] != "" && args[1] != "" && msg.State != "":
		return args[0], args[1], msg.State, true
	case len(args) == 1 && args[0] != "" && msg.Name != "" && msg.State != "":
		return msg.Name, args[0], msg.State, true
	default:
		return "", "", "", false
	}
}

func splitPayload(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.SplitN(payload, ",", maxPayloadArgs)
}

package message

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Port domain shared by every process on the channel.
const (
	// MinPort is the lowest valid port (inclusive).
	MinPort = 6000

	// MaxPort is the upper bound of the port range (exclusive).
	MaxPort = 7000
)

// Type codes carried in the type field. An acknowledgement uses the code
// of the request it answers followed by AckSuffix.
const (
	TypeHeartbeat = "001"
	TypeDiscover  = "160"
	TypeSetState  = "161"
	TypeGetState  = "162"
	TypeShutdown  = "999"

	AckSuffix = "A"
)

// fieldCount is the number of comma-separated fields on the wire.
const fieldCount = 6

// separator joins fields on the wire. Only the payload may contain it.
const separator = ","

// Message is one command or acknowledgement exchanged over the channel.
//
// Wire layout (UTF-8, comma separated, payload may itself contain commas):
//
//	source,dest,type,name,state,payload
//
// Ref is the correlation token used for duplicate suppression. It is not
// part of the six-field text; the channel envelope carries it.
//
// Ports are held as canonical decimal strings. Once set they are always
// within [MinPort, MaxPort); a fresh Message has empty ports.
type Message struct {
	Ref     string
	Type    string
	Name    string
	State   string
	Payload string

	source string
	dest   string
}

// Option configures a Message built with New.
type Option func(*Message)

// WithRef sets the reference number.
func WithRef(ref string) Option { return func(m *Message) { m.Ref = ref } }

// WithSource sets the source port. Invalid values leave the port empty.
func WithSource(port any) Option { return func(m *Message) { _ = m.SetSource(port) } }

// WithDest sets the destination port. Invalid values leave the port empty.
func WithDest(port any) Option { return func(m *Message) { _ = m.SetDest(port) } }

// WithType sets the type code.
func WithType(code string) Option { return func(m *Message) { m.Type = code } }

// WithName sets the device name field.
func WithName(name string) Option { return func(m *Message) { m.Name = name } }

// WithState sets the state field.
func WithState(state any) Option { return func(m *Message) { m.SetState(state) } }

// WithPayload sets the payload.
func WithPayload(payload string) Option { return func(m *Message) { m.Payload = payload } }

// New builds a Message from options.
func New(opts ...Option) *Message {
	m := &Message{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Source returns the canonical source port, or "" if never set.
func (m *Message) Source() string { return m.source }

// Dest returns the canonical destination port, or "" if never set.
func (m *Message) Dest() string { return m.dest }

// SetSource validates and assigns the source port.
//
// Accepts any integer kind or a decimal string. On failure the returned
// error wraps ErrInvalidPort and the previous value is retained.
func (m *Message) SetSource(v any) error {
	port, err := canonicalPort(v)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	m.source = port
	return nil
}

// SetDest validates and assigns the destination port.
// Semantics match SetSource.
func (m *Message) SetDest(v any) error {
	port, err := canonicalPort(v)
	if err != nil {
		return fmt.Errorf("dest: %w", err)
	}
	m.dest = port
	return nil
}

// SetState assigns the state field from a string or an integer.
func (m *Message) SetState(v any) {
	switch s := v.(type) {
	case string:
		m.State = s
	case nil:
		m.State = ""
	default:
		m.State = fmt.Sprint(s)
	}
}

// Encode renders the six-field wire text.
func (m *Message) Encode() string {
	return strings.Join([]string{
		m.source,
		m.dest,
		m.Type,
		m.Name,
		m.State,
		m.Payload,
	}, separator)
}

// Bytes renders the wire text as bytes.
func (m *Message) Bytes() []byte {
	return []byte(m.Encode())
}

// String implements fmt.Stringer for log output.
func (m *Message) String() string {
	return fmt.Sprintf("ref=%q %s", m.Ref, m.Encode())
}

// IsAck reports whether the message is an acknowledgement.
func (m *Message) IsAck() bool {
	return strings.HasSuffix(m.Type, AckSuffix)
}

// Decode parses wire text into a Message.
//
// The text is split on commas into at most six parts, so the payload keeps
// any commas it contains. Missing trailing fields stay empty. A Message is
// always returned; a non-nil error reports port fields that were rejected
// (each wraps ErrInvalidPort) and those fields keep their empty value.
//
// Parameters:
//   - raw: Wire text as received from the channel
//
// Returns:
//   - *Message: Decoded message, never nil
//   - error: Joined port validation errors, or nil
func Decode(raw []byte) (*Message, error) {
	return DecodeString(string(raw))
}

// DecodeString is Decode for string input.
func DecodeString(raw string) (*Message, error) {
	parts := strings.SplitN(raw, separator, fieldCount)
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	m := &Message{
		Type:    field(2), //nolint:mnd // wire field index
		Name:    field(3), //nolint:mnd // wire field index
		State:   field(4), //nolint:mnd // wire field index
		Payload: field(5), //nolint:mnd // wire field index
	}

	var errs []error
	if err := m.SetSource(field(0)); err != nil {
		errs = append(errs, err)
	}
	if err := m.SetDest(field(1)); err != nil {
		errs = append(errs, err)
	}

	return m, errors.Join(errs...)
}

// NewAck builds the acknowledgement for req.
//
// The ack carries the request's reference number, is addressed back to
// the request's source and uses AckType(req.Type). Name and state are
// left empty.
func NewAck(req *Message, localPort string, payload string) *Message {
	ack := &Message{
		Ref:     req.Ref,
		Type:    AckType(req.Type),
		Payload: payload,
	}
	_ = ack.SetSource(localPort)
	ack.dest = req.source
	return ack
}

// AckType returns the acknowledgement code for a request type code.
func AckType(code string) string {
	return code + AckSuffix
}

// PortInDomain reports whether port is within [MinPort, MaxPort).
func PortInDomain(port int) bool {
	return port >= MinPort && port < MaxPort
}

// canonicalPort validates v and renders it as a decimal string.
func canonicalPort(v any) (string, error) {
	var n int64
	switch p := v.(type) {
	case int:
		n = int64(p)
	case int8:
		n = int64(p)
	case int16:
		n = int64(p)
	case int32:
		n = int64(p)
	case int64:
		n = p
	case uint:
		if uint64(p) >= MaxPort {
			return "", fmt.Errorf("%w: %d out of range", ErrInvalidPort, p)
		}
		n = int64(p)
	case uint8:
		n = int64(p)
	case uint16:
		n = int64(p)
	case uint32:
		n = int64(p)
	case uint64:
		if p >= MaxPort {
			return "", fmt.Errorf("%w: %d out of range", ErrInvalidPort, p)
		}
		n = int64(p)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not numeric", ErrInvalidPort, p)
		}
		n = parsed
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidPort, v)
	}

	if n < MinPort || n >= MaxPort {
		return "", fmt.Errorf("%w: %d out of range [%d, %d)", ErrInvalidPort, n, MinPort, MaxPort)
	}
	return strconv.FormatInt(n, 10), nil
}

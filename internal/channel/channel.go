package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for channel connections.
const (
	// defaultHandshakeTimeout bounds connect plus authentication.
	defaultHandshakeTimeout = 5 * time.Second

	// defaultReadTimeout bounds a single Receive.
	defaultReadTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single Send.
	defaultWriteTimeout = 10 * time.Second
)

// Config holds the settings for one end of the channel.
//
// For Listen, Host and Port are the local bind address. For Dial they
// are the peer's address.
type Config struct {
	Host string
	Port int

	// AuthKey is the shared pre-key. Both ends must hold the same value.
	AuthKey []byte

	// HandshakeTimeout bounds connect and authentication.
	// Default: 5 seconds.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds a single Receive.
	// Default: 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single Send.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxFrameSize bounds inbound frames in bytes.
	// Default: DefaultMaxFrameSize.
	MaxFrameSize int
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
}

func (c *Config) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// deadliner is implemented by *net.TCPListener and *net.UnixListener.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Listener accepts authenticated channel connections.
//
// Thread Safety:
//   - Accept is intended for a single accepting goroutine.
//   - Close may be called from any goroutine.
type Listener struct {
	ln     net.Listener
	cfg    Config
	key    []byte
	closed atomic.Bool
}

// Listen binds the local endpoint.
//
// Parameters:
//   - cfg: Bind address, shared key and timeouts
//
// Returns:
//   - *Listener: Bound listener ready for Accept
//   - error: ErrNoAuthKey, or the bind failure
func Listen(cfg Config) (*Listener, error) {
	if len(cfg.AuthKey) == 0 {
		return nil, ErrNoAuthKey
	}
	cfg.applyDefaults()

	ln, err := net.Listen("tcp", cfg.address())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.address(), err)
	}

	return &Listener{
		ln:  ln,
		cfg: cfg,
		key: deriveKey(cfg.AuthKey),
	}, nil
}

// Accept blocks until a peer connects and authenticates.
//
// Cancelling ctx unblocks a pending Accept, which then returns ctx.Err().
// A peer that fails authentication is disconnected and reported as an
// error wrapping ErrAuthFailed; the listener remains usable.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	d, canInterrupt := l.ln.(deadliner)
	if canInterrupt {
		_ = d.SetDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Now())
		})
		defer stop()
	}

	raw, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("accept: %w", err)
	}

	if err := raw.SetDeadline(time.Now().Add(l.cfg.HandshakeTimeout)); err != nil {
		raw.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}
	if err := serverHandshake(raw, l.key); err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake with %s: %w", raw.RemoteAddr(), err)
	}
	_ = raw.SetDeadline(time.Time{})

	return newConn(raw, l.cfg), nil
}

// Addr returns the bound address. Useful when listening on port 0 in tests.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the listener. Pending Accept calls return ErrClosed.
func (l *Listener) Close() error {
	l.closed.Store(true)
	return l.ln.Close()
}

// Dial connects to a peer's listener and authenticates.
//
// Parameters:
//   - ctx: Bounds the dial in addition to HandshakeTimeout
//   - cfg: Peer address, shared key and timeouts
//
// Returns:
//   - *Conn: Authenticated connection
//   - error: Dial failure or an error wrapping ErrAuthFailed
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if len(cfg.AuthKey) == 0 {
		return nil, ErrNoAuthKey
	}
	cfg.applyDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	var dialer net.Dialer
	raw, err := dialer.DialContext(dialCtx, "tcp", cfg.address())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.address(), err)
	}

	deadline := time.Now().Add(cfg.HandshakeTimeout)
	if d, ok := dialCtx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := raw.SetDeadline(deadline); err != nil {
		raw.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}
	if err := clientHandshake(raw, deriveKey(cfg.AuthKey)); err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake with %s: %w", cfg.address(), err)
	}
	_ = raw.SetDeadline(time.Time{})

	return newConn(raw, cfg), nil
}

// Conn is an authenticated channel connection carrying envelopes.
type Conn struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int
	closeOnce    sync.Once
	closeErr     error
}

func newConn(raw net.Conn, cfg Config) *Conn {
	return &Conn{
		conn:         raw,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		maxFrameSize: cfg.MaxFrameSize,
	}
}

// Receive reads one envelope.
func (c *Conn) Receive() (Envelope, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return Envelope{}, fmt.Errorf("set read deadline: %w", err)
	}

	frame, err := readFrame(c.conn, c.maxFrameSize)
	if err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(frame)
}

// Send writes one envelope.
func (c *Conn) Send(env Envelope) error {
	payload, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return writeFrame(c.conn, payload)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

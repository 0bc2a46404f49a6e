package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PowerUnknown marks a handle whose state has not been read or set yet.
const PowerUnknown = -1

// DefaultRediscoveryAttempts is the number of discover-then-resolve rounds
// a cache miss may trigger.
const DefaultRediscoveryAttempts = 1

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry pairs a handle with the live descriptor that controls it.
type entry struct {
	handle Handle
	desc   Descriptor
}

// Registry is the in-memory set of discovered devices.
//
// Entries are kept in discovery order and are unique by exact
// device-reported name. Lookups match by substring, so a short key such
// as "Room Light" resolves "Living Room Light 1". When several entries
// contain the key, the earliest discovered wins.
//
// The registry is never persisted and never evicts. It is safe for
// concurrent use, although the session loop drives it from one goroutine.
// Driver calls are made without holding the lock.
type Registry struct {
	driver              Driver
	mu                  sync.RWMutex
	entries             []*entry
	rediscoveryAttempts int
	logger              Logger
	now                 func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithRediscoveryAttempts sets how many discover-then-resolve rounds a
// cache miss in Apply may trigger. Zero makes Apply cache-only. Negative
// values are treated as zero.
func WithRediscoveryAttempts(n int) Option {
	return func(r *Registry) {
		r.rediscoveryAttempts = max(n, 0)
	}
}

// NewRegistry creates an empty registry backed by driver.
func NewRegistry(driver Driver, opts ...Option) *Registry {
	r := &Registry{
		driver:              driver,
		rediscoveryAttempts: DefaultRediscoveryAttempts,
		logger:              noopLogger{},
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Resolve finds the first entry whose name contains name.
//
// Returns ErrDeviceNotFound if nothing matches. Resolve never contacts
// the network.
func (r *Registry) Resolve(name string) (Handle, error) {
	e := r.resolve(name)
	if e == nil {
		return Handle{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.handle, nil
}

func (r *Registry) resolve(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if strings.Contains(e.handle.Name, name) {
			return e
		}
	}
	return nil
}

// Discover probes address for a device whose reported name contains name
// and records it.
//
// An existing entry with exactly the reported name is replaced in place;
// otherwise the device is appended. Failures are logged and returned
// wrapping ErrDeviceNotFound together with the specific cause.
//
// Parameters:
//   - ctx: Bounds the driver calls
//   - name: Lookup key; must be a substring of the reported name
//   - address: Network address to probe
//
// Returns:
//   - Handle: Snapshot of the recorded entry
//   - error: ErrDeviceNotFound wrapping ErrProbeFailed, ErrDescribeFailed or ErrNameMismatch
func (r *Registry) Discover(ctx context.Context, name, address string) (Handle, error) {
	port, err := r.driver.Probe(ctx, address)
	if err != nil {
		r.logger.Warn("device probe failed", "name", name, "address", address, "error", err)
		return Handle{}, fmt.Errorf("%w: %w: %w", ErrDeviceNotFound, ErrProbeFailed, err)
	}

	desc, err := r.driver.Describe(ctx, address, port)
	if err != nil {
		r.logger.Warn("device describe failed", "name", name, "address", address, "port", port, "error", err)
		return Handle{}, fmt.Errorf("%w: %w: %w", ErrDeviceNotFound, ErrDescribeFailed, err)
	}

	reported := desc.Name()
	if !strings.Contains(reported, name) {
		r.logger.Warn("device name mismatch", "name", name, "reported", reported, "address", address)
		return Handle{}, fmt.Errorf("%w: %w: %q does not contain %q", ErrDeviceNotFound, ErrNameMismatch, reported, name)
	}

	now := r.now()
	fresh := &entry{
		handle: Handle{
			Name:         reported,
			Address:      address,
			Port:         port,
			PowerState:   PowerUnknown,
			DiscoveredAt: now,
			UpdatedAt:    now,
		},
		desc: desc,
	}

	r.mu.Lock()
	replaced := false
	for i, e := range r.entries {
		if e.handle.Name == reported {
			r.entries[i] = fresh
			replaced = true
			break
		}
	}
	if !replaced {
		r.entries = append(r.entries, fresh)
	}
	count := len(r.entries)
	r.mu.Unlock()

	r.logger.Info("device discovered",
		"name", reported,
		"address", address,
		"port", port,
		"replaced", replaced,
		"count", count,
	)
	return fresh.handle, nil
}

// Apply runs op against the device matching name.
//
// On a cache miss Apply performs up to the configured number of
// Discover-then-Resolve rounds at address (one by default) before giving
// up with ErrDeviceNotFound. On and off are always forwarded to the device
// even when the cached state already matches. OpQueryState always asks the
// device for a fresh value.
//
// Parameters:
//   - ctx: Bounds discovery and the device command
//   - name: Lookup key (substring of the device name)
//   - address: Where to rediscover the device on a miss
//   - op: OpTurnOn, OpTurnOff or OpQueryState
//
// Returns:
//   - string: The resulting power state as a decimal string
//   - error: ErrDeviceNotFound, possibly also wrapping ErrCommandFailed
func (r *Registry) Apply(ctx context.Context, name, address string, op Op) (string, error) {
	e := r.resolve(name)
	for attempt := 0; e == nil && attempt < r.rediscoveryAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		r.logger.Debug("device not cached, rediscovering", "name", name, "address", address, "attempt", attempt+1)
		if _, err := r.Discover(ctx, name, address); err != nil {
			r.logger.Debug("rediscovery failed", "name", name, "error", err)
		}
		e = r.resolve(name)
	}

	if e == nil {
		r.logger.Warn("device not found", "name", name, "address", address, "op", op.String())
		return "", fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}

	state, err := r.run(ctx, e, op)
	if err != nil {
		r.logger.Warn("device command failed", "name", name, "op", op.String(), "error", err)
		return "", fmt.Errorf("%w: %w: %w", ErrDeviceNotFound, ErrCommandFailed, err)
	}

	r.mu.Lock()
	e.handle.PowerState = state
	e.handle.UpdatedAt = r.now()
	r.mu.Unlock()

	return strconv.Itoa(state), nil
}

// run issues op on the descriptor and returns the resulting state.
func (r *Registry) run(ctx context.Context, e *entry, op Op) (int, error) {
	switch op {
	case OpTurnOn:
		if err := e.desc.TurnOn(ctx); err != nil {
			return 0, err
		}
		return PowerOn, nil
	case OpTurnOff:
		if err := e.desc.TurnOff(ctx); err != nil {
			return 0, err
		}
		return PowerOff, nil
	case OpQueryState:
		return e.desc.State(ctx, true)
	default:
		return 0, fmt.Errorf("unsupported operation %v", op)
	}
}

// Devices returns snapshots of all entries in discovery order.
func (r *Registry) Devices() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.entries))
	for _, e := range r.entries {
		handles = append(handles, e.handle)
	}
	return handles
}

// Count returns the number of entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

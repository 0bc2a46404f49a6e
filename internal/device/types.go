package device

import (
	"context"
	"fmt"
	"time"
)

// Power states reported by outlets. Some models report further values
// (for example 8 for standby); those pass through unchanged.
const (
	PowerOff = 0
	PowerOn  = 1
)

// Driver discovers devices on the network.
//
// Implementations own the physical protocol. They may block; callers bound
// them with ctx and the implementation's own timeout policy.
type Driver interface {
	// Probe returns the control port a device answers on at address.
	Probe(ctx context.Context, address string) (int, error)

	// Describe fetches the device at address:port and returns a live
	// descriptor for it.
	Describe(ctx context.Context, address string, port int) (Descriptor, error)
}

// Descriptor is a live, controllable device returned by a Driver.
type Descriptor interface {
	// Name is the device-reported friendly name.
	Name() string

	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error

	// State returns the power state. forceRefresh bypasses any value the
	// driver cached and asks the device.
	State(ctx context.Context, forceRefresh bool) (int, error)
}

// Handle is a snapshot of one registry entry.
//
// Handles are values: modifying one never affects the registry.
type Handle struct {
	Name         string
	Address      string
	Port         int
	PowerState   int
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

// Op is a command applied through the registry.
type Op int

// Registry operations.
const (
	OpTurnOn Op = iota + 1
	OpTurnOff
	OpQueryState
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpTurnOn:
		return "turn_on"
	case OpTurnOff:
		return "turn_off"
	case OpQueryState:
		return "query_state"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// OpForState maps a wire state value to an on/off operation.
//
// Returns ErrInvalidState for anything other than "0" or "1".
func OpForState(state string) (Op, error) {
	switch state {
	case "0":
		return OpTurnOff, nil
	case "1":
		return OpTurnOn, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
}

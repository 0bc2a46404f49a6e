package device

import "errors"

// Domain errors for the device package.
//
// Every discovery or control failure wraps ErrDeviceNotFound so callers
// can treat them uniformly:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // ack with the not-found outcome
//	}
var (
	// ErrDeviceNotFound is returned when no registry entry matches a name,
	// including after the permitted rediscovery rounds.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrProbeFailed is returned when no control port answers at an address.
	ErrProbeFailed = errors.New("device: probe failed")

	// ErrDescribeFailed is returned when the device descriptor cannot be fetched.
	ErrDescribeFailed = errors.New("device: describe failed")

	// ErrNameMismatch is returned when the device at an address reports a
	// name that does not contain the requested name.
	ErrNameMismatch = errors.New("device: name mismatch")

	// ErrCommandFailed is returned when a resolved device rejects or fails
	// an on/off/query command.
	ErrCommandFailed = errors.New("device: command failed")

	// ErrInvalidState is returned when a requested power state is not "0" or "1".
	ErrInvalidState = errors.New("device: invalid state")
)

package channel

import "errors"

// Domain errors for the channel package.
var (
	// ErrAuthFailed is returned when a peer cannot prove knowledge of the
	// shared key, or rejects ours.
	ErrAuthFailed = errors.New("channel: authentication failed")

	// ErrFrameTooLarge is returned when a frame exceeds the configured
	// maximum. The connection cannot be resynchronised and must be closed.
	ErrFrameTooLarge = errors.New("channel: frame too large")

	// ErrInvalidEnvelope is returned when a frame is too short to hold
	// the envelope header it declares.
	ErrInvalidEnvelope = errors.New("channel: invalid envelope")

	// ErrRefTooLong is returned when a reference number does not fit the
	// envelope header.
	ErrRefTooLong = errors.New("channel: reference too long")

	// ErrNoAuthKey is returned when a listener or dialer is configured
	// without a shared key.
	ErrNoAuthKey = errors.New("channel: auth key is required")

	// ErrClosed is returned by Accept after the listener is closed.
	ErrClosed = errors.New("channel: listener closed")
)

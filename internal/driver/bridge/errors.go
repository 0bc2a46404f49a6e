package bridge

import "errors"

var (
	// ErrTimeout is returned when the bridge does not answer a request
	// within the configured timeout.
	ErrTimeout = errors.New("bridge: request timed out")

	// ErrBridge is returned when the bridge answers with ok=false. The
	// bridge's error string follows it in the message.
	ErrBridge = errors.New("bridge: request failed")

	// ErrClosed is returned for calls made after Close, and for requests
	// still waiting when Close runs.
	ErrClosed = errors.New("bridge: driver closed")

	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("bridge: invalid config")
)

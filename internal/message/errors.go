package message

import "errors"

// Domain errors for the message package.
var (
	// ErrInvalidPort is returned when a port assignment is non-numeric or
	// falls outside [MinPort, MaxPort). The field keeps its prior value.
	ErrInvalidPort = errors.New("message: invalid port")
)

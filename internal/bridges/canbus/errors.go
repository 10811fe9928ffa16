package canbus

import "errors"

// Domain errors for the CAN bus bridge package.
var (
	// ErrInvalidEnvelope is returned when a gateway message cannot be turned
	// into a frame.
	ErrInvalidEnvelope = errors.New("canbus: invalid envelope")

	// ErrInvalidOptions is returned by NewBridge for missing dependencies.
	ErrInvalidOptions = errors.New("canbus: invalid bridge options")
)

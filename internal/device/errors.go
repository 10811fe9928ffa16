package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no node matches a lookup.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidRule is returned when a lookup rule is neither an address nor
	// an ID: prefixed NAME.
	ErrInvalidRule = errors.New("device: invalid rule")
)

package n2k

import "errors"

// Domain errors for the n2k codec package.
var (
	// ErrEncodingFailed is returned when a value cannot be represented in a
	// field: out of range, a reserved sentinel pattern, or a failed round trip.
	ErrEncodingFailed = errors.New("n2k: encoding failed")

	// ErrUnknownField is returned when a message is asked for a field name
	// its schema does not define.
	ErrUnknownField = errors.New("n2k: unknown field")

	// ErrInvalidSchema is returned when a field list cannot be compiled.
	ErrInvalidSchema = errors.New("n2k: invalid schema")

	// ErrInvalidFrame is returned when a received frame is malformed.
	ErrInvalidFrame = errors.New("n2k: invalid frame")
)

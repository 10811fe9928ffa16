package canbus

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/n2k-monitor/internal/n2k"
)

// Envelope limits.
const (
	// maxPayloadLength is the largest message the ISO transport protocol
	// can assemble.
	maxPayloadLength = 1785

	maxCANID    = 0x1FFFFFFF
	maxPGN      = 0x3FFFF
	maxPriority = 7
)

// Envelope is the wire form of one assembled frame as published by a CAN
// gateway. Keys are small integers to keep messages compact.
//
// A gateway sends either the raw 29-bit CAN identifier, or the decoded PGN
// and source (with optional priority and destination). When both are
// present the CAN identifier wins.
type Envelope struct {
	CANID           *uint32 `cbor:"1,keyasint,omitempty"`
	PGN             *uint32 `cbor:"2,keyasint,omitempty"`
	Priority        uint8   `cbor:"3,keyasint,omitempty"`
	Source          *uint8  `cbor:"4,keyasint,omitempty"`
	Destination     *uint8  `cbor:"5,keyasint,omitempty"`
	Data            []byte  `cbor:"6,keyasint"`
	TimestampMicros int64   `cbor:"7,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("canbus: CBOR encoder mode: %v", err))
	}

	// Duplicate keys are rejected rather than resolved.
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("canbus: CBOR decoder mode: %v", err))
	}
}

// EncodeFrame builds the envelope a gateway would publish for f, using the
// CAN identifier form.
func EncodeFrame(f n2k.Frame) ([]byte, error) {
	canID := f.CANID()
	env := Envelope{
		CANID: &canID,
		Data:  f.Data,
	}
	if !f.Timestamp.IsZero() {
		env.TimestampMicros = f.Timestamp.UnixMicro()
	}
	return encMode.Marshal(env)
}

// DecodeFrame parses an envelope into a frame. Envelopes without a
// timestamp are stamped with receivedAt.
func DecodeFrame(payload []byte, receivedAt time.Time) (n2k.Frame, error) {
	var env Envelope
	if err := decMode.Unmarshal(payload, &env); err != nil {
		return n2k.Frame{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return env.Frame(receivedAt)
}

// Frame converts the envelope into a frame.
func (e Envelope) Frame(receivedAt time.Time) (n2k.Frame, error) {
	if len(e.Data) > maxPayloadLength {
		return n2k.Frame{}, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidEnvelope, len(e.Data), maxPayloadLength)
	}

	ts := receivedAt
	if e.TimestampMicros != 0 {
		ts = time.UnixMicro(e.TimestampMicros).UTC()
	}

	if e.CANID != nil {
		if *e.CANID > maxCANID {
			return n2k.Frame{}, fmt.Errorf("%w: CAN identifier %#x exceeds 29 bits", ErrInvalidEnvelope, *e.CANID)
		}
		return n2k.FrameFromCANID(*e.CANID, e.Data, ts), nil
	}

	if e.PGN == nil || e.Source == nil {
		return n2k.Frame{}, fmt.Errorf("%w: neither CAN identifier nor PGN and source present", ErrInvalidEnvelope)
	}
	if *e.PGN > maxPGN {
		return n2k.Frame{}, fmt.Errorf("%w: PGN %d out of range", ErrInvalidEnvelope, *e.PGN)
	}
	if e.Priority > maxPriority {
		return n2k.Frame{}, fmt.Errorf("%w: priority %d out of range", ErrInvalidEnvelope, e.Priority)
	}

	h := n2k.Header{
		PGN:         n2k.PGN(*e.PGN),
		Priority:    e.Priority,
		Source:      *e.Source,
		Destination: n2k.AddressGlobal,
	}
	if e.Destination != nil {
		h.Destination = *e.Destination
	}
	return n2k.NewFrame(h, e.Data, ts), nil
}

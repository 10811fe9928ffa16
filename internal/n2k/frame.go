package n2k

import (
	"fmt"
	"time"
)

// Bus address constants.
const (
	// MaxUnicastAddress is the highest address a node may hold.
	MaxUnicastAddress = 251

	// AddressNull is the source of a node that failed to claim an address.
	AddressNull = 254

	// AddressGlobal is the broadcast destination.
	AddressGlobal = 255
)

// CAN identifier layout.
const (
	// pdu2Threshold is the first PDU format value of broadcast (PDU2) messages.
	pdu2Threshold = 240

	priorityMask = 0x7
	canIDMask    = 0x1FFFFFFF
)

// Header holds the addressing fields carried by a 29-bit CAN identifier.
type Header struct {
	PGN         PGN
	Priority    uint8
	Source      uint8
	Destination uint8
}

// ParseCANID splits an extended CAN identifier into its header fields.
//
// PDU1 messages (PDU format below 240) are addressed: the PDU specific byte
// is the destination. PDU2 messages are broadcast and the PDU specific byte
// extends the PGN.
func ParseCANID(canID uint32) Header {
	h := Header{
		Priority: uint8((canID >> 26) & priorityMask),
		Source:   uint8(canID),
	}
	pduFormat := uint8(canID >> 16)
	pduSpecific := uint8(canID >> 8)
	dataPage := uint8(canID>>24) & 0x3
	pgn := uint32(dataPage)<<16 | uint32(pduFormat)<<8

	if pduFormat < pdu2Threshold {
		h.Destination = pduSpecific
		h.PGN = PGN(pgn)
	} else {
		h.Destination = AddressGlobal
		h.PGN = PGN(pgn | uint32(pduSpecific))
	}
	return h
}

// CANID builds the extended CAN identifier for h. It is the inverse of
// ParseCANID.
func (h Header) CANID() uint32 {
	pduFormat := uint32(h.PGN>>8) & 0xFF
	pduSpecific := uint32(h.PGN) & 0xFF
	if pduFormat < pdu2Threshold {
		pduSpecific = uint32(h.Destination)
	}
	dataPage := (uint32(h.PGN) >> 16) & 0x3

	id := uint32(h.Priority&priorityMask)<<26 | dataPage<<24 | pduFormat<<16 | pduSpecific<<8 | uint32(h.Source)
	return id & canIDMask
}

// Frame is one fully assembled message as delivered by the transport.
// Frames are values; constructors copy the payload so a Frame never aliases
// a transport buffer.
type Frame struct {
	Header
	Data      []byte
	Timestamp time.Time
}

// NewFrame builds a frame from a header and a payload copy.
func NewFrame(h Header, data []byte, ts time.Time) Frame {
	payload := make([]byte, len(data))
	copy(payload, data)
	return Frame{Header: h, Data: payload, Timestamp: ts}
}

// FrameFromCANID builds a frame from a raw CAN identifier.
func FrameFromCANID(canID uint32, data []byte, ts time.Time) Frame {
	return NewFrame(ParseCANID(canID), data, ts)
}

// Validate checks the frame carries a usable source address.
func (f Frame) Validate() error {
	if f.Source > MaxUnicastAddress {
		return fmt.Errorf("%w: source address %d is not a node address", ErrInvalidFrame, f.Source)
	}
	return nil
}

// String returns a compact, human-readable representation.
func (f Frame) String() string {
	return fmt.Sprintf("pgn=%s src=%d dst=%d prio=%d len=%d", f.PGN, f.Source, f.Destination, f.Priority, len(f.Data))
}

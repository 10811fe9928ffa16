// Package n2k encodes and decodes NMEA 2000 message payloads.
//
// # Fields
//
// A FieldSpec addresses a bit range inside a payload and says how to read
// it. Numeric fields are little-endian bit strings converted to domain values
// as raw*scale+offset. Two raw patterns are reserved for every numeric field
// of two bits or more:
//
//   - all ones: NotAvailable (the sender has no data)
//   - all ones minus one: Error
//
// Encoding NotAvailable always writes all ones, for every field kind, so
// absence is representable uniformly. Fields that lie past the end of a
// payload decode as NotAvailable because senders drop all-absent tails.
//
// # Schemas and messages
//
// A Schema is an ordered list of FieldSpecs compiled once. A Message binds a
// schema to one payload and offers named or slot-indexed Get/Set:
//
//	msg := n2k.NewMessage(n2k.ProductInformationSchema)
//	msg.Set(n2k.FieldModelID, n2k.TextValue("DST800"))
//	msg.Set(n2k.FieldN2kVersion, n2k.FloatValue(2.1))
//	payload := msg.Bytes()
//
// # Frames
//
// Frame is one assembled message with the addressing fields of its 29-bit CAN
// identifier. Fast-packet reassembly happens upstream.
package n2k

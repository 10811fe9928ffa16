package n2k

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Codec constants.
const (
	// maxBitLength is the widest numeric field the codec handles.
	maxBitLength = 64

	// fillByte pads absent data on the wire.
	fillByte = 0xFF

	// lauHeaderBytes is the length + encoding prefix of a variable text field.
	lauHeaderBytes = 2

	// lauMaxBytes is the largest encodable variable text field, header included.
	lauMaxBytes = 255

	// lauEncodingUTF16 marks a UTF-16LE variable text body.
	lauEncodingUTF16 = 0x00

	// lauEncodingASCII marks a single-byte variable text body.
	lauEncodingASCII = 0x01

	// roundTripSlack absorbs float noise in the scale/2 round-trip tolerance.
	roundTripSlack = 1e-9
)

// utf16LE decodes and encodes UTF-16 variable text bodies. Decoders and
// encoders are stateful, so each use takes a fresh one.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ReadBits returns the bitLength-bit unsigned value starting at bitOffset.
//
// Bits are numbered little-endian: bit i of the field is bit (bitOffset+i)%8
// of byte (bitOffset+i)/8. ok is false if the range does not lie entirely
// inside buf.
func ReadBits(buf []byte, bitOffset, bitLength int) (raw uint64, ok bool) {
	if !bitRangeFits(buf, bitOffset, bitLength) {
		return 0, false
	}

	for done := 0; done < bitLength; {
		pos := bitOffset + done
		shift := pos & 7
		n := min(8-shift, bitLength-done)
		mask := uint64(1)<<n - 1
		raw |= ((uint64(buf[pos>>3]) >> shift) & mask) << done
		done += n
	}
	return raw, true
}

// WriteBits stores the low bitLength bits of raw at bitOffset, leaving every
// other bit of buf untouched. It returns false if the range does not fit.
func WriteBits(buf []byte, bitOffset, bitLength int, raw uint64) bool {
	if !bitRangeFits(buf, bitOffset, bitLength) {
		return false
	}

	for done := 0; done < bitLength; {
		pos := bitOffset + done
		shift := pos & 7
		n := min(8-shift, bitLength-done)
		mask := uint64(1)<<n - 1
		b := buf[pos>>3] &^ byte(mask<<shift)
		buf[pos>>3] = b | byte((raw>>done)&mask)<<shift
		done += n
	}
	return true
}

func bitRangeFits(buf []byte, bitOffset, bitLength int) bool {
	if bitOffset < 0 || bitLength <= 0 || bitLength > maxBitLength {
		return false
	}
	return bitOffset+bitLength <= len(buf)*8
}

// maxRaw is the all-ones pattern for a field of bitLength bits.
func maxRaw(bitLength int) uint64 {
	if bitLength >= maxBitLength {
		return math.MaxUint64
	}
	return uint64(1)<<bitLength - 1
}

// classify applies the sentinel convention: all ones is NotAvailable and all
// ones minus one is Error. A single bit has no spare pattern.
func classify(raw uint64, bitLength int) Validity {
	if bitLength < 2 {
		return Valid
	}
	switch raw {
	case maxRaw(bitLength):
		return NotAvailable
	case maxRaw(bitLength) - 1:
		return Error
	default:
		return Valid
	}
}

func signExtend(raw uint64, bitLength int) int64 {
	if bitLength >= maxBitLength {
		return int64(raw)
	}
	if raw&(uint64(1)<<(bitLength-1)) != 0 {
		return int64(raw | ^maxRaw(bitLength))
	}
	return int64(raw)
}

// Decode reads the field described by spec from buf.
//
// A field whose range runs past the end of buf decodes as NotAvailable:
// senders may omit an all-absent tail.
func Decode(buf []byte, spec FieldSpec) Value {
	switch spec.Kind {
	case KindSignedInt, KindUnsignedInt, KindScaledDouble, KindUnsignedScaledDouble:
		raw, ok := ReadBits(buf, spec.BitOffset, spec.BitLength)
		if !ok {
			return Unavailable()
		}
		return decodeRaw(raw, spec)
	case KindFixedText:
		return decodeFixedText(buf, spec)
	case KindVariableText:
		v, _ := DecodeVariable(buf, spec, spec.byteOffset())
		return v
	default:
		return Invalid()
	}
}

func decodeRaw(raw uint64, spec FieldSpec) Value {
	if validity := classify(raw, spec.BitLength); validity != Valid {
		return Value{Validity: validity}
	}

	switch spec.Kind {
	case KindSignedInt:
		return IntValue(signExtend(raw, spec.BitLength))
	case KindUnsignedInt:
		return UintValue(raw)
	case KindScaledDouble:
		return FloatValue(float64(signExtend(raw, spec.BitLength))*spec.scale() + spec.Offset)
	case KindUnsignedScaledDouble:
		return FloatValue(float64(raw)*spec.scale() + spec.Offset)
	default:
		return Invalid()
	}
}

// Encode returns a buffer just long enough to hold spec with v written into
// it. Bytes outside the field are 0xFF.
//
// The reserved raw patterns are the same for signed and unsigned kinds, so
// a signed field cannot carry -1 or -2. A 1-bit field has no reserved
// pattern: NotAvailable is written as 1 and reads back as a valid 1.
func Encode(v Value, spec FieldSpec) ([]byte, error) {
	if spec.Kind == KindVariableText {
		lau, err := EncodeVariable(v, spec)
		if err != nil {
			return nil, err
		}
		return append(filled(spec.byteOffset()), lau...), nil
	}

	buf := filled(spec.endByte())
	if err := EncodeInto(buf, spec, v); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto writes v into buf at the position described by spec.
//
// Only the field's own bits change. Variable text cannot be written in place;
// use a Message for schemas that carry it.
func EncodeInto(buf []byte, spec FieldSpec, v Value) error {
	switch spec.Kind {
	case KindSignedInt, KindUnsignedInt, KindScaledDouble, KindUnsignedScaledDouble:
		raw, err := encodeRaw(v, spec)
		if err != nil {
			return err
		}
		if !WriteBits(buf, spec.BitOffset, spec.BitLength, raw) {
			return fmt.Errorf("%w: %s does not fit in %d bytes", ErrEncodingFailed, spec.Name, len(buf))
		}
		return nil
	case KindFixedText:
		span, err := encodeFixedText(v, spec)
		if err != nil {
			return err
		}
		if spec.byteOffset()+len(span) > len(buf) {
			return fmt.Errorf("%w: %s does not fit in %d bytes", ErrEncodingFailed, spec.Name, len(buf))
		}
		copy(buf[spec.byteOffset():], span)
		return nil
	case KindVariableText:
		return fmt.Errorf("%w: %s is variable length", ErrEncodingFailed, spec.Name)
	default:
		return fmt.Errorf("%w: %s has unsupported kind %s", ErrEncodingFailed, spec.Name, spec.Kind)
	}
}

func encodeRaw(v Value, spec FieldSpec) (uint64, error) {
	if spec.BitLength <= 0 || spec.BitLength > maxBitLength {
		return 0, fmt.Errorf("%w: %s has bit length %d", ErrEncodingFailed, spec.Name, spec.BitLength)
	}
	full := maxRaw(spec.BitLength)

	switch v.Validity {
	case NotAvailable:
		return full, nil
	case Error:
		if spec.BitLength < 2 {
			return 0, fmt.Errorf("%w: %s has no error pattern", ErrEncodingFailed, spec.Name)
		}
		return full - 1, nil
	}

	var raw uint64
	switch spec.Kind {
	case KindUnsignedInt:
		if v.Uint > full {
			return 0, fmt.Errorf("%w: %s value %d exceeds %d bits", ErrEncodingFailed, spec.Name, v.Uint, spec.BitLength)
		}
		raw = v.Uint
	case KindSignedInt:
		lo, hi := signedRange(spec.BitLength)
		if v.Int < lo || v.Int > hi {
			return 0, fmt.Errorf("%w: %s value %d outside [%d, %d]", ErrEncodingFailed, spec.Name, v.Int, lo, hi)
		}
		raw = uint64(v.Int) & full
	case KindScaledDouble, KindUnsignedScaledDouble:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return 0, fmt.Errorf("%w: %s value %v is not finite", ErrEncodingFailed, spec.Name, v.Float)
		}
		steps := math.Round((v.Float - spec.Offset) / spec.scale())
		if spec.Kind == KindScaledDouble {
			limit := math.Ldexp(1, spec.BitLength-1)
			if steps < -limit || steps >= limit {
				return 0, fmt.Errorf("%w: %s value %v out of range", ErrEncodingFailed, spec.Name, v.Float)
			}
			raw = uint64(int64(steps)) & full
		} else {
			if steps < 0 || steps >= math.Ldexp(1, spec.BitLength) {
				return 0, fmt.Errorf("%w: %s value %v out of range", ErrEncodingFailed, spec.Name, v.Float)
			}
			raw = uint64(steps)
		}
	default:
		return 0, fmt.Errorf("%w: %s is not numeric", ErrEncodingFailed, spec.Name)
	}

	if classify(raw, spec.BitLength) != Valid {
		return 0, fmt.Errorf("%w: %s value collides with a reserved pattern", ErrEncodingFailed, spec.Name)
	}

	if spec.Kind.scaled() {
		got := decodeRaw(raw, spec)
		tolerance := spec.scale()/2 + roundTripSlack*math.Max(1, math.Abs(v.Float))
		if !got.IsValid() || math.Abs(got.Float-v.Float) > tolerance {
			return 0, fmt.Errorf("%w: %s value %v does not survive a round trip (got %v)", ErrEncodingFailed, spec.Name, v.Float, got.Float)
		}
	}

	return raw, nil
}

func signedRange(bitLength int) (lo, hi int64) {
	if bitLength >= maxBitLength {
		return math.MinInt64, math.MaxInt64
	}
	half := int64(1) << (bitLength - 1)
	return -half, half - 1
}

func decodeFixedText(buf []byte, spec FieldSpec) Value {
	start := spec.byteOffset()
	end := start + spec.byteLength()
	if end > len(buf) {
		return Unavailable()
	}

	span := buf[start:end]
	if allFill(span) {
		return Unavailable()
	}
	return decodeLatin1(trimFill(span))
}

func encodeFixedText(v Value, spec FieldSpec) ([]byte, error) {
	span := make([]byte, spec.byteLength())

	switch v.Validity {
	case NotAvailable:
		for i := range span {
			span[i] = fillByte
		}
		return span, nil
	case Error:
		return nil, fmt.Errorf("%w: %s has no error pattern", ErrEncodingFailed, spec.Name)
	}

	text, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(v.Text))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncodingFailed, spec.Name, err)
	}
	if len(text) > len(span) {
		return nil, fmt.Errorf("%w: %s text is %d bytes, field holds %d", ErrEncodingFailed, spec.Name, len(text), len(span))
	}
	copy(span, text)
	return span, nil
}

// DecodeVariable reads a length-prefixed text field starting at byte offset
// and returns it with the offset of the byte that follows it.
//
// Consecutive variable fields share one buffer, so the caller threads the
// returned offset into the next call. A header of 0xFF 0xFF is NotAvailable;
// a header whose length runs past buf is NotAvailable and moves the cursor to
// the end of buf.
func DecodeVariable(buf []byte, spec FieldSpec, offset int) (Value, int) {
	if offset < 0 || offset+lauHeaderBytes > len(buf) {
		return Unavailable(), max(len(buf), offset)
	}

	length, encoding := int(buf[offset]), buf[offset+1]
	if length == fillByte && encoding == fillByte {
		return Unavailable(), offset + lauHeaderBytes
	}
	if length < lauHeaderBytes {
		return TextValue(""), offset + lauHeaderBytes
	}

	end := offset + length
	if end > len(buf) {
		return Unavailable(), len(buf)
	}
	if spec.BitLength > 0 && length*8 > spec.BitLength {
		return Invalid(), end
	}

	body := buf[offset+lauHeaderBytes : end]
	switch encoding {
	case lauEncodingASCII:
		return decodeLatin1(trimFill(body)), end
	case lauEncodingUTF16:
		text, err := utf16LE.NewDecoder().Bytes(body)
		if err != nil {
			return Invalid(), end
		}
		return TextValue(strings.TrimRight(string(text), "\x00")), end
	default:
		return Invalid(), end
	}
}

// EncodeVariable returns the wire form of a variable text field, header
// included. Pure ASCII text is sent single-byte, anything else as UTF-16LE.
func EncodeVariable(v Value, spec FieldSpec) ([]byte, error) {
	switch v.Validity {
	case NotAvailable:
		return []byte{fillByte, fillByte}, nil
	case Error:
		return nil, fmt.Errorf("%w: %s has no error pattern", ErrEncodingFailed, spec.Name)
	}

	encoding := byte(lauEncodingASCII)
	body := []byte(v.Text)
	if !isASCII(v.Text) {
		var err error
		body, err = utf16LE.NewEncoder().Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrEncodingFailed, spec.Name, err)
		}
		encoding = lauEncodingUTF16
	}

	total := lauHeaderBytes + len(body)
	if total > lauMaxBytes || (spec.BitLength > 0 && total*8 > spec.BitLength) {
		return nil, fmt.Errorf("%w: %s text needs %d bytes", ErrEncodingFailed, spec.Name, total)
	}

	out := make([]byte, 0, total)
	out = append(out, byte(total), encoding)
	return append(out, body...), nil
}

func decodeLatin1(b []byte) Value {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return Invalid()
	}
	return TextValue(string(text))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// filled returns n bytes of 0xFF.
func filled(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = fillByte
	}
	return buf
}

func allFill(b []byte) bool {
	for _, c := range b {
		if c != fillByte {
			return false
		}
	}
	return true
}

// trimFill strips trailing 0x00 and 0xFF padding.
func trimFill(b []byte) []byte {
	end := len(b)
	for end > 0 && (b[end-1] == 0x00 || b[end-1] == fillByte) {
		end--
	}
	return b[:end]
}

package n2k

import "fmt"

// Kind identifies how a field's bits are interpreted.
type Kind uint8

// Field kinds. The set is closed; the codec switches over it exhaustively.
const (
	KindSignedInt Kind = iota + 1
	KindUnsignedInt
	KindScaledDouble
	KindUnsignedScaledDouble
	KindFixedText
	KindVariableText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSignedInt:
		return "signed_int"
	case KindUnsignedInt:
		return "unsigned_int"
	case KindScaledDouble:
		return "scaled_double"
	case KindUnsignedScaledDouble:
		return "unsigned_scaled_double"
	case KindFixedText:
		return "fixed_text"
	case KindVariableText:
		return "variable_text"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) numeric() bool {
	switch k {
	case KindSignedInt, KindUnsignedInt, KindScaledDouble, KindUnsignedScaledDouble:
		return true
	default:
		return false
	}
}

func (k Kind) scaled() bool {
	return k == KindScaledDouble || k == KindUnsignedScaledDouble
}

// FieldSpec describes one field of a message layout.
//
// BitOffset and BitLength address the field inside the payload. Text fields
// must be byte aligned. For KindVariableText the offset is only meaningful for
// the first variable field of a schema (later ones follow the running cursor)
// and BitLength, when non-zero, caps the encoded size including its header.
type FieldSpec struct {
	Name      string
	BitOffset int
	BitLength int
	Scale     float64
	Offset    float64
	Kind      Kind
}

func (s FieldSpec) byteOffset() int { return s.BitOffset / 8 }

func (s FieldSpec) byteLength() int { return s.BitLength / 8 }

// endByte is the number of payload bytes needed to hold the field.
func (s FieldSpec) endByte() int {
	return (s.BitOffset + s.BitLength + 7) / 8
}

func (s FieldSpec) scale() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

// Validity classifies a decoded value.
type Validity uint8

// Validity states.
const (
	Valid Validity = iota
	NotAvailable
	Error
)

// String returns the validity name.
func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case NotAvailable:
		return "not_available"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("validity(%d)", uint8(v))
	}
}

// Value is a decoded field value. Only the member matching the field kind is
// populated, and only when Validity is Valid.
type Value struct {
	Validity Validity
	Int      int64
	Uint     uint64
	Float    float64
	Text     string
}

// IntValue returns a valid signed integer value.
func IntValue(v int64) Value { return Value{Int: v} }

// UintValue returns a valid unsigned integer value.
func UintValue(v uint64) Value { return Value{Uint: v} }

// FloatValue returns a valid scaled value.
func FloatValue(v float64) Value { return Value{Float: v} }

// TextValue returns a valid text value.
func TextValue(v string) Value { return Value{Text: v} }

// Unavailable returns the "no data" value.
func Unavailable() Value { return Value{Validity: NotAvailable} }

// Invalid returns the "error" value.
func Invalid() Value { return Value{Validity: Error} }

// IsValid reports whether the value carries data.
func (v Value) IsValid() bool { return v.Validity == Valid }

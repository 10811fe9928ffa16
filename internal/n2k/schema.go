package n2k

import "fmt"

// Slot is a field position resolved once against a Schema. Message accessors
// that take a Slot skip the name lookup.
type Slot int

// Schema is an ordered field list for one PGN, validated and indexed once at
// construction. Schemas are immutable and safe to share.
//
// Fixed-width fields may appear in any order but must not overlap. Variable
// text fields, if any, form the tail of the schema: the first one starts at
// its BitOffset and each following one starts where the previous ended.
type Schema struct {
	pgn    PGN
	name   string
	fields []FieldSpec
	index  map[string]Slot

	fixedBytes    int  // bytes spanned by the fixed-width fields
	firstVariable Slot // first variable text slot, or -1
	variableStart int  // byte offset of the variable tail
}

// NewSchema validates fields and compiles them into a Schema.
func NewSchema(pgn PGN, name string, fields ...FieldSpec) (*Schema, error) {
	s := &Schema{
		pgn:           pgn,
		name:          name,
		fields:        make([]FieldSpec, len(fields)),
		index:         make(map[string]Slot, len(fields)),
		firstVariable: -1,
	}
	copy(s.fields, fields)

	fixedEndBit := 0
	for i, f := range s.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: %s field %d has no name", ErrInvalidSchema, name, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s field %q defined twice", ErrInvalidSchema, name, f.Name)
		}
		if err := validateField(f); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidSchema, name, err)
		}
		s.index[f.Name] = Slot(i)

		if f.Kind == KindVariableText {
			if s.firstVariable < 0 {
				s.firstVariable = Slot(i)
				s.variableStart = f.byteOffset()
			}
			continue
		}
		if s.firstVariable >= 0 {
			return nil, fmt.Errorf("%w: %s fixed field %q follows variable text", ErrInvalidSchema, name, f.Name)
		}
		for _, prev := range s.fields[:i] {
			if overlaps(prev, f) {
				return nil, fmt.Errorf("%w: %s fields %q and %q overlap", ErrInvalidSchema, name, prev.Name, f.Name)
			}
		}
		fixedEndBit = max(fixedEndBit, f.BitOffset+f.BitLength)
	}

	s.fixedBytes = (fixedEndBit + 7) / 8
	if s.firstVariable >= 0 && s.fields[s.firstVariable].BitOffset < fixedEndBit {
		return nil, fmt.Errorf("%w: %s variable text starts inside the fixed fields", ErrInvalidSchema, name)
	}

	return s, nil
}

// MustSchema is NewSchema for package-level definitions. It panics on error.
func MustSchema(pgn PGN, name string, fields ...FieldSpec) *Schema {
	s, err := NewSchema(pgn, name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func validateField(f FieldSpec) error {
	if f.BitOffset < 0 {
		return fmt.Errorf("field %q has negative offset", f.Name)
	}

	switch {
	case f.Kind.numeric():
		if f.BitLength < 1 || f.BitLength > maxBitLength {
			return fmt.Errorf("field %q bit length %d outside 1..%d", f.Name, f.BitLength, maxBitLength)
		}
		if f.Kind.scaled() && f.Scale <= 0 {
			return fmt.Errorf("field %q needs a positive scale", f.Name)
		}
	case f.Kind == KindFixedText:
		if f.BitOffset%8 != 0 || f.BitLength%8 != 0 || f.BitLength == 0 {
			return fmt.Errorf("field %q must span whole bytes", f.Name)
		}
	case f.Kind == KindVariableText:
		if f.BitOffset%8 != 0 || f.BitLength%8 != 0 || f.BitLength < 0 {
			return fmt.Errorf("field %q must be byte aligned", f.Name)
		}
	default:
		return fmt.Errorf("field %q has unknown kind %s", f.Name, f.Kind)
	}
	return nil
}

func overlaps(a, b FieldSpec) bool {
	return a.BitOffset < b.BitOffset+b.BitLength && b.BitOffset < a.BitOffset+a.BitLength
}

// PGN returns the message type the schema describes.
func (s *Schema) PGN() PGN { return s.pgn }

// Name returns the schema's human name.
func (s *Schema) Name() string { return s.name }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Field returns the spec held in slot. It panics if slot is out of range.
func (s *Schema) Field(slot Slot) FieldSpec { return s.fields[slot] }

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []FieldSpec {
	out := make([]FieldSpec, len(s.fields))
	copy(out, s.fields)
	return out
}

// Slot resolves a field name.
func (s *Schema) Slot(name string) (Slot, error) {
	slot, ok := s.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, s.name, name)
	}
	return slot, nil
}

// MustSlot is Slot for names known at compile time.
func (s *Schema) MustSlot(name string) Slot {
	slot, err := s.Slot(name)
	if err != nil {
		panic(err)
	}
	return slot
}

// Spec returns the field spec for name.
func (s *Schema) Spec(name string) (FieldSpec, error) {
	slot, err := s.Slot(name)
	if err != nil {
		return FieldSpec{}, err
	}
	return s.fields[slot], nil
}

// HasVariableText reports whether the schema ends in variable text fields.
func (s *Schema) HasVariableText() bool { return s.firstVariable >= 0 }

// headerBytes is the payload length that precedes the variable tail, or the
// whole fixed payload when there is no tail.
func (s *Schema) headerBytes() int {
	if s.firstVariable >= 0 {
		return max(s.fixedBytes, s.variableStart)
	}
	return s.fixedBytes
}

package n2k

import "fmt"

// Message binds a Schema to one payload buffer.
//
// Writes are independent of each other: a fixed-width field touches only its
// own bits, and the variable text tail is re-encoded from its decoded values
// whenever one of its fields changes. Setting A then B therefore produces the
// same bytes as setting B then A.
//
// A Message is not safe for concurrent use.
type Message struct {
	schema *Schema
	data   []byte
}

// NewMessage returns a message in which every field is NotAvailable.
func NewMessage(s *Schema) *Message {
	data := filled(s.headerBytes())
	for i := s.firstVariable; i >= 0 && int(i) < len(s.fields); i++ {
		data = append(data, fillByte, fillByte)
	}
	return &Message{schema: s, data: data}
}

// ParseMessage wraps a copy of payload.
func ParseMessage(s *Schema, payload []byte) *Message {
	data := make([]byte, len(payload))
	copy(data, payload)
	return &Message{schema: s, data: data}
}

// Schema returns the message's schema.
func (m *Message) Schema() *Schema { return m.schema }

// Len returns the payload length in bytes.
func (m *Message) Len() int { return len(m.data) }

// Bytes returns a copy of the payload.
func (m *Message) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Get decodes the named field.
func (m *Message) Get(name string) (Value, error) {
	slot, err := m.schema.Slot(name)
	if err != nil {
		return Value{}, err
	}
	return m.GetSlot(slot), nil
}

// GetSlot decodes the field in slot. An out-of-range slot decodes as Error.
func (m *Message) GetSlot(slot Slot) Value {
	if slot < 0 || int(slot) >= len(m.schema.fields) {
		return Invalid()
	}

	spec := m.schema.fields[slot]
	if spec.Kind != KindVariableText {
		return Decode(m.data, spec)
	}
	return m.variableValues()[slot-m.schema.firstVariable]
}

// Set encodes v into the named field.
func (m *Message) Set(name string, v Value) error {
	slot, err := m.schema.Slot(name)
	if err != nil {
		return err
	}
	return m.SetSlot(slot, v)
}

// SetSlot encodes v into the field in slot. On error the payload is unchanged.
func (m *Message) SetSlot(slot Slot, v Value) error {
	if slot < 0 || int(slot) >= len(m.schema.fields) {
		return fmt.Errorf("%w: %s has no slot %d", ErrUnknownField, m.schema.name, slot)
	}

	spec := m.schema.fields[slot]
	if spec.Kind == KindVariableText {
		return m.setVariable(slot, v)
	}

	if need := spec.endByte(); len(m.data) < need {
		m.data = append(m.data, filled(need-len(m.data))...)
	}
	return EncodeInto(m.data, spec, v)
}

// Variables decodes the variable text tail in schema order.
func (m *Message) Variables() []Value {
	return m.variableValues()
}

func (m *Message) variableValues() []Value {
	s := m.schema
	if s.firstVariable < 0 {
		return nil
	}

	values := make([]Value, 0, len(s.fields)-int(s.firstVariable))
	offset := s.variableStart
	for _, spec := range s.fields[s.firstVariable:] {
		var v Value
		v, offset = DecodeVariable(m.data, spec, offset)
		values = append(values, v)
	}
	return values
}

func (m *Message) setVariable(slot Slot, v Value) error {
	s := m.schema
	values := m.variableValues()
	values[slot-s.firstVariable] = v

	head := s.variableStart
	data := make([]byte, head, head+lauHeaderBytes*len(values))
	n := copy(data, m.data[:min(head, len(m.data))])
	for i := n; i < head; i++ {
		data[i] = fillByte
	}

	target := int(slot - s.firstVariable)
	for i, value := range values {
		if i != target && value.Validity == Error {
			// Undecodable neighbours are rewritten as absent.
			value = Unavailable()
		}
		lau, err := EncodeVariable(value, s.fields[int(s.firstVariable)+i])
		if err != nil {
			return err
		}
		data = append(data, lau...)
	}

	m.data = data
	return nil
}

package n2k

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBits(t *testing.T) {
	tests := []struct {
		name   string
		buf    []byte
		offset int
		length int
		want   uint64
		ok     bool
	}{
		{"whole little-endian word", []byte{0x34, 0x12}, 0, 16, 0x1234, true},
		{"straddles byte boundary", []byte{0x34, 0x12}, 4, 8, 0x23, true},
		{"single bit", []byte{0x80}, 7, 1, 1, true},
		{"three bits mid byte", []byte{0b1010_0000}, 5, 3, 0b101, true},
		{"64 bits", []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0, 64, 0x0807060504030201, true},
		{"past end", []byte{0xFF}, 4, 8, 0, false},
		{"zero length", []byte{0xFF}, 0, 0, 0, false},
		{"negative offset", []byte{0xFF}, -1, 4, 0, false},
		{"too wide", make([]byte, 16), 0, 65, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReadBits(tt.buf, tt.offset, tt.length)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteBits_PreservesNeighbours(t *testing.T) {
	buf := []byte{0xFF, 0xFF}
	require.True(t, WriteBits(buf, 4, 8, 0x00))
	assert.Equal(t, []byte{0x0F, 0xF0}, buf)

	require.True(t, WriteBits(buf, 4, 8, 0xA5))
	assert.Equal(t, []byte{0x5F, 0xFA}, buf)

	raw, ok := ReadBits(buf, 4, 8)
	require.True(t, ok)
	assert.Equal(t, uint64(0xA5), raw)

	assert.False(t, WriteBits(buf, 12, 8, 0))
	assert.Equal(t, []byte{0x5F, 0xFA}, buf, "failed write must not touch buf")
}

func TestNumericRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		spec  FieldSpec
		value Value
	}{
		{"u8 zero", FieldSpec{Name: "a", BitLength: 8, Kind: KindUnsignedInt}, UintValue(0)},
		{"u8 highest valid", FieldSpec{Name: "a", BitLength: 8, Kind: KindUnsignedInt}, UintValue(253)},
		{"u3 unaligned", FieldSpec{Name: "a", BitOffset: 5, BitLength: 3, Kind: KindUnsignedInt}, UintValue(5)},
		{"u1 set", FieldSpec{Name: "a", BitOffset: 7, BitLength: 1, Kind: KindUnsignedInt}, UintValue(1)},
		{"u32", FieldSpec{Name: "a", BitOffset: 8, BitLength: 32, Kind: KindUnsignedInt}, UintValue(0xDEADBEEF)},
		{"u64", FieldSpec{Name: "a", BitLength: 64, Kind: KindUnsignedInt}, UintValue(1 << 63)},
		{"s16 negative", FieldSpec{Name: "a", BitLength: 16, Kind: KindSignedInt}, IntValue(-3)},
		{"s16 minimum", FieldSpec{Name: "a", BitLength: 16, Kind: KindSignedInt}, IntValue(-32768)},
		{"s16 maximum", FieldSpec{Name: "a", BitLength: 16, Kind: KindSignedInt}, IntValue(32767)},
		{"s12 unaligned", FieldSpec{Name: "a", BitOffset: 3, BitLength: 12, Kind: KindSignedInt}, IntValue(-1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode(tt.value, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.value, Decode(buf, tt.spec))
		})
	}
}

func TestScaledRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		spec  FieldSpec
		value float64
	}{
		{"signed centi", FieldSpec{Name: "a", BitLength: 16, Scale: 0.01, Kind: KindScaledDouble}, -12.34},
		{"unsigned milli", FieldSpec{Name: "a", BitLength: 16, Scale: 0.001, Kind: KindUnsignedScaledDouble}, 2.1},
		{"offset temperature", FieldSpec{Name: "a", BitLength: 8, Scale: 1, Offset: -40, Kind: KindUnsignedScaledDouble}, 25},
		{"rounds to nearest step", FieldSpec{Name: "a", BitLength: 16, Scale: 0.1, Kind: KindScaledDouble}, 3.14},
		{"unaligned radians", FieldSpec{Name: "a", BitOffset: 6, BitLength: 16, Scale: 0.0001, Kind: KindUnsignedScaledDouble}, 3.1416},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := Encode(FloatValue(tt.value), tt.spec)
			require.NoError(t, err)

			got := Decode(buf, tt.spec)
			require.Equal(t, Valid, got.Validity)
			assert.InDelta(t, tt.value, got.Float, tt.spec.Scale/2)
		})
	}
}

func TestEncode_Rejects(t *testing.T) {
	u8 := FieldSpec{Name: "u8", BitLength: 8, Kind: KindUnsignedInt}
	s16 := FieldSpec{Name: "s16", BitLength: 16, Kind: KindSignedInt}
	centi := FieldSpec{Name: "centi", BitLength: 16, Scale: 0.01, Kind: KindScaledDouble}
	bit := FieldSpec{Name: "bit", BitLength: 1, Kind: KindUnsignedInt}

	tests := []struct {
		name  string
		spec  FieldSpec
		value Value
	}{
		{"unsigned too large", u8, UintValue(256)},
		{"unsigned hits error pattern", u8, UintValue(254)},
		{"unsigned hits unavailable pattern", u8, UintValue(255)},
		{"signed below range", s16, IntValue(-32769)},
		{"signed above range", s16, IntValue(32768)},
		{"signed minus one is reserved", s16, IntValue(-1)},
		{"signed minus two is reserved", s16, IntValue(-2)},
		{"scaled above range", centi, FloatValue(400)},
		{"scaled not finite", centi, FloatValue(math.Inf(1))},
		{"single bit has no error pattern", bit, Invalid()},
		{"zero width", FieldSpec{Name: "z", Kind: KindUnsignedInt}, UintValue(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.value, tt.spec)
			assert.True(t, errors.Is(err, ErrEncodingFailed), "got %v", err)
		})
	}
}

func TestSentinelStability(t *testing.T) {
	specs := []FieldSpec{
		{Name: "s8", BitLength: 8, Kind: KindSignedInt},
		{Name: "u11", BitOffset: 21, BitLength: 11, Kind: KindUnsignedInt},
		{Name: "d16", BitLength: 16, Scale: 0.01, Kind: KindScaledDouble},
		{Name: "ud32", BitOffset: 4, BitLength: 32, Scale: 1e-6, Kind: KindUnsignedScaledDouble},
		{Name: "u64", BitLength: 64, Kind: KindUnsignedInt},
		{Name: "text", BitOffset: 16, BitLength: 64, Kind: KindFixedText},
	}

	for _, spec := range specs {
		t.Run(spec.Name, func(t *testing.T) {
			buf, err := Encode(Unavailable(), spec)
			require.NoError(t, err)

			if spec.Kind.numeric() {
				raw, ok := ReadBits(buf, spec.BitOffset, spec.BitLength)
				require.True(t, ok)
				assert.Equal(t, maxRaw(spec.BitLength), raw)
			}
			assert.Equal(t, NotAvailable, Decode(buf, spec).Validity)
		})
	}
}

func TestSingleBitHasNoSentinel(t *testing.T) {
	bit := FieldSpec{Name: "bit", BitOffset: 3, BitLength: 1, Kind: KindUnsignedInt}

	buf, err := Encode(Unavailable(), bit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, buf)

	got := Decode(buf, bit)
	assert.Equal(t, Valid, got.Validity)
	assert.Equal(t, uint64(1), got.Uint)
}

func TestErrorPattern(t *testing.T) {
	spec := FieldSpec{Name: "u8", BitLength: 8, Kind: KindUnsignedInt}

	buf, err := Encode(Invalid(), spec)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFE}, buf)
	assert.Equal(t, Error, Decode(buf, spec).Validity)

	signed := FieldSpec{Name: "s16", BitLength: 16, Kind: KindSignedInt}
	assert.Equal(t, Error, Decode([]byte{0xFE, 0xFF}, signed).Validity)
	assert.Equal(t, NotAvailable, Decode([]byte{0xFF, 0xFF}, signed).Validity)
}

func TestDecode_PastBufferIsUnavailable(t *testing.T) {
	tests := []FieldSpec{
		{Name: "u8", BitOffset: 8, BitLength: 8, Kind: KindUnsignedInt},
		{Name: "u16", BitOffset: 4, BitLength: 16, Kind: KindUnsignedInt},
		{Name: "text", BitOffset: 0, BitLength: 32, Kind: KindFixedText},
		{Name: "var", BitOffset: 16, Kind: KindVariableText},
	}

	for _, spec := range tests {
		t.Run(spec.Name, func(t *testing.T) {
			assert.Equal(t, NotAvailable, Decode([]byte{0x01}, spec).Validity)
		})
	}
}

func TestEncodeInto_OnlyTouchesField(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00}
	spec := FieldSpec{Name: "mid", BitOffset: 6, BitLength: 10, Kind: KindUnsignedInt}

	require.NoError(t, EncodeInto(buf, spec, UintValue(0x155)))
	assert.Equal(t, uint64(0x155), Decode(buf, spec).Uint)
	assert.Equal(t, byte(0x00), buf[2])
	assert.Equal(t, byte(0x00), buf[0]&0x3F)

	err := EncodeInto(buf[:1], spec, UintValue(1))
	assert.ErrorIs(t, err, ErrEncodingFailed)

	err = EncodeInto(buf, FieldSpec{Name: "v", Kind: KindVariableText}, TextValue("x"))
	assert.ErrorIs(t, err, ErrEncodingFailed)
}

func TestFixedText(t *testing.T) {
	spec := FieldSpec{Name: "model", BitOffset: 8, BitLength: 64, Kind: KindFixedText}

	t.Run("pads with zero", func(t *testing.T) {
		buf, err := Encode(TextValue("DST800"), spec)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 'D', 'S', 'T', '8', '0', '0', 0x00, 0x00}, buf)
		assert.Equal(t, TextValue("DST800"), Decode(buf, spec))
	})

	t.Run("strips 0xFF fill", func(t *testing.T) {
		buf := []byte{0x00, 'A', 'B', 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
		assert.Equal(t, TextValue("AB"), Decode(buf, spec))
	})

	t.Run("latin-1", func(t *testing.T) {
		buf, err := Encode(TextValue("Überall"), spec)
		require.NoError(t, err)
		assert.Equal(t, byte(0xDC), buf[1])
		assert.Equal(t, TextValue("Überall"), Decode(buf, spec))
	})

	t.Run("rejects overlong", func(t *testing.T) {
		_, err := Encode(TextValue("123456789"), spec)
		assert.ErrorIs(t, err, ErrEncodingFailed)
	})

	t.Run("rejects text outside latin-1", func(t *testing.T) {
		_, err := Encode(TextValue("日本"), spec)
		assert.ErrorIs(t, err, ErrEncodingFailed)
	})

	t.Run("exact fit", func(t *testing.T) {
		buf, err := Encode(TextValue("12345678"), spec)
		require.NoError(t, err)
		assert.Equal(t, TextValue("12345678"), Decode(buf, spec))
	})
}

func TestVariableText(t *testing.T) {
	spec := FieldSpec{Name: "desc", Kind: KindVariableText}

	t.Run("ascii", func(t *testing.T) {
		lau, err := EncodeVariable(TextValue("Hi"), spec)
		require.NoError(t, err)
		assert.Equal(t, []byte{4, lauEncodingASCII, 'H', 'i'}, lau)

		v, next := DecodeVariable(lau, spec, 0)
		assert.Equal(t, TextValue("Hi"), v)
		assert.Equal(t, 4, next)
	})

	t.Run("utf-16", func(t *testing.T) {
		lau, err := EncodeVariable(TextValue("Ünï"), spec)
		require.NoError(t, err)
		assert.Equal(t, []byte{8, lauEncodingUTF16, 0xDC, 0x00, 'n', 0x00, 0xEF, 0x00}, lau)

		v, next := DecodeVariable(lau, spec, 0)
		assert.Equal(t, TextValue("Ünï"), v)
		assert.Equal(t, 8, next)
	})

	t.Run("empty", func(t *testing.T) {
		lau, err := EncodeVariable(TextValue(""), spec)
		require.NoError(t, err)
		assert.Equal(t, []byte{2, lauEncodingASCII}, lau)

		v, next := DecodeVariable(lau, spec, 0)
		assert.Equal(t, TextValue(""), v)
		assert.Equal(t, 2, next)
	})

	t.Run("unavailable", func(t *testing.T) {
		lau, err := EncodeVariable(Unavailable(), spec)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0xFF}, lau)

		v, next := DecodeVariable(lau, spec, 0)
		assert.Equal(t, NotAvailable, v.Validity)
		assert.Equal(t, 2, next)
	})

	t.Run("short length reads as empty", func(t *testing.T) {
		v, next := DecodeVariable([]byte{0x01, 0x01}, spec, 0)
		assert.Equal(t, TextValue(""), v)
		assert.Equal(t, 2, next)
	})

	t.Run("length past buffer", func(t *testing.T) {
		v, next := DecodeVariable([]byte{10, 1, 'a'}, spec, 0)
		assert.Equal(t, NotAvailable, v.Validity)
		assert.Equal(t, 3, next)
	})

	t.Run("unknown control byte", func(t *testing.T) {
		v, next := DecodeVariable([]byte{3, 7, 'a'}, spec, 0)
		assert.Equal(t, Error, v.Validity)
		assert.Equal(t, 3, next)
	})

	t.Run("longest encodable", func(t *testing.T) {
		_, err := EncodeVariable(TextValue(strings.Repeat("a", lauMaxBytes-lauHeaderBytes)), spec)
		require.NoError(t, err)

		_, err = EncodeVariable(TextValue(strings.Repeat("a", lauMaxBytes-lauHeaderBytes+1)), spec)
		assert.ErrorIs(t, err, ErrEncodingFailed)
	})

	t.Run("capped by bit length", func(t *testing.T) {
		capped := FieldSpec{Name: "short", BitLength: 32, Kind: KindVariableText}
		_, err := EncodeVariable(TextValue("ab"), capped)
		require.NoError(t, err)

		_, err = EncodeVariable(TextValue("abc"), capped)
		assert.ErrorIs(t, err, ErrEncodingFailed)
	})

	t.Run("cursor threads consecutive fields", func(t *testing.T) {
		var buf []byte
		for _, text := range []string{"Helm", "", "Acme Marine"} {
			lau, err := EncodeVariable(TextValue(text), spec)
			require.NoError(t, err)
			buf = append(buf, lau...)
		}
		buf = append(buf, 0xFF, 0xFF)

		var got []Value
		offset := 0
		for range 4 {
			var v Value
			v, offset = DecodeVariable(buf, spec, offset)
			got = append(got, v)
		}

		assert.Equal(t, []Value{TextValue("Helm"), TextValue(""), TextValue("Acme Marine"), Unavailable()}, got)
		assert.Equal(t, len(buf), offset)
	})
}

func TestEncode_VariableTextAtOffset(t *testing.T) {
	spec := FieldSpec{Name: "desc", BitOffset: 16, Kind: KindVariableText}

	buf, err := Encode(TextValue("ok"), spec)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte{0xFF, 0xFF, 4, lauEncodingASCII, 'o', 'k'}, buf))
	assert.Equal(t, TextValue("ok"), Decode(buf, spec))
}

func BenchmarkDecode(b *testing.B) {
	spec := FieldSpec{Name: "a", BitOffset: 3, BitLength: 16, Scale: 0.01, Kind: KindScaledDouble}
	buf, err := Encode(FloatValue(-12.34), spec)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		_ = Decode(buf, spec)
	}
}

func BenchmarkEncodeInto(b *testing.B) {
	spec := FieldSpec{Name: "a", BitOffset: 3, BitLength: 16, Scale: 0.01, Kind: KindScaledDouble}
	buf := filled(spec.endByte())

	b.ReportAllocs()
	for b.Loop() {
		if err := EncodeInto(buf, spec, FloatValue(-12.34)); err != nil {
			b.Fatal(err)
		}
	}
}

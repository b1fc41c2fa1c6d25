// internal/codec/types.go
package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// DataType is the declared register layout of a parameter.
type DataType string

const (
	U16  DataType = "U16"
	U32  DataType = "U32"
	U64  DataType = "U64"
	I16  DataType = "I16"
	I32  DataType = "I32"
	I64  DataType = "I64"
	F32  DataType = "F32"
	F64  DataType = "F64"
	UTF8 DataType = "UTF8"
	Bit  DataType = "Bit"
)

// Words returns the fixed size of t in 16-bit words.
// UTF8 is variable-length and reports 0.
func (t DataType) Words() (int, error) {
	switch t {
	case U16, I16, Bit:
		return 1, nil
	case U32, I32, F32:
		return 2, nil
	case U64, I64, F64:
		return 4, nil
	case UTF8:
		return 0, nil
	default:
		return 0, &UnsupportedTypeError{Type: t}
	}
}

// Writable reports whether Encode supports t.
func (t DataType) Writable() bool {
	switch t {
	case U16, U32, U64, I16, I32, I64, F32, F64:
		return true
	}
	return false
}

// WordOrder selects how 32-bit values are assembled from two registers.
type WordOrder uint8

const (
	// OrderDefault defers to the family codec.
	OrderDefault WordOrder = iota
	// HighFirst: first register holds the high word.
	HighFirst
	// LowFirst: first register holds the low word (mixed endian).
	LowFirst
)

func (o WordOrder) String() string {
	switch o {
	case HighFirst:
		return "high_first"
	case LowFirst:
		return "low_first"
	default:
		return "default"
	}
}

// UnmarshalText accepts "high_first", "low_first" or an empty string.
func (o *WordOrder) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "default":
		*o = OrderDefault
	case "high_first", "big_endian":
		*o = HighFirst
	case "low_first", "mixed_endian":
		*o = LowFirst
	default:
		return fmt.Errorf("codec: unknown word order %q", string(b))
	}
	return nil
}

// Field is everything the codec needs to know about one parameter.
type Field struct {
	Type DataType
	// Words is required for UTF8 and must match the fixed size otherwise.
	Words int
	// BitIndex selects the bit for Bit fields (0 = LSB).
	BitIndex uint8
	// Order overrides the family word order for 32-bit types.
	Order WordOrder
}

// Kind tags which member of Value is set.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUint
	KindInt
	KindFloat
	KindText
	KindBit
)

// Value is a decoded register value.
type Value struct {
	Kind  Kind
	Uint  uint64
	Int   int64
	Float float64
	Text  string
	Bit   bool
}

func UintValue(v uint64) Value   { return Value{Kind: KindUint, Uint: v} }
func IntValue(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func TextValue(v string) Value   { return Value{Kind: KindText, Text: v} }
func BitValue(v bool) Value      { return Value{Kind: KindBit, Bit: v} }

// Numeric reports whether v can be scaled.
func (v Value) Numeric() bool {
	switch v.Kind {
	case KindUint, KindInt, KindFloat, KindBit:
		return true
	}
	return false
}

// Float64 converts a numeric value to float64.
func (v Value) Float64() (float64, bool) {
	switch v.Kind {
	case KindUint:
		return float64(v.Uint), true
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	case KindBit:
		if v.Bit {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// String renders the value the way it is published on the bus.
func (v Value) String() string {
	switch v.Kind {
	case KindUint:
		return strconv.FormatUint(v.Uint, 10)
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindText:
		return v.Text
	case KindBit:
		if v.Bit {
			return "1"
		}
		return "0"
	}
	return ""
}

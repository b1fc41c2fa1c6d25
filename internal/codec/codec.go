// internal/codec/codec.go
package codec

import (
	"bytes"
	"math"
	"strconv"
	"unicode/utf8"
)

// Codec maps raw register words to typed values and back.
// Order32 is the family default for 32-bit types; 64-bit types are
// always assembled high word first.
// No IO. No state.
type Codec struct {
	Order32 WordOrder
}

// Mixed is the low-word-first codec.
var Mixed = Codec{Order32: LowFirst}

// BigEndian is the high-word-first codec.
var BigEndian = Codec{Order32: HighFirst}

func (c Codec) order(f Field) WordOrder {
	if f.Order != OrderDefault {
		return f.Order
	}
	if c.Order32 == OrderDefault {
		return HighFirst
	}
	return c.Order32
}

// wordCount validates f and returns the number of words it occupies.
func wordCount(f Field) (int, error) {
	n, err := f.Type.Words()
	if err != nil {
		return 0, err
	}
	if f.Type == UTF8 {
		if f.Words <= 0 {
			return 0, &DecodeError{Type: f.Type, Reason: "utf8 field without word count"}
		}
		return f.Words, nil
	}
	return n, nil
}

// Decode converts words into a Value according to f.
func (c Codec) Decode(words []uint16, f Field) (Value, error) {
	want, err := wordCount(f)
	if err != nil {
		return Value{}, err
	}
	if len(words) != want {
		return Value{}, &DecodeError{Type: f.Type, Want: want, Got: len(words)}
	}

	switch f.Type {
	case U16:
		return UintValue(uint64(words[0])), nil
	case I16:
		return IntValue(int64(int16(words[0]))), nil
	case U32:
		return UintValue(uint64(c.combine32(words, f))), nil
	case I32:
		return IntValue(int64(int32(c.combine32(words, f)))), nil
	case F32:
		return FloatValue(float64(math.Float32frombits(c.combine32(words, f)))), nil
	case U64:
		return UintValue(combine64(words)), nil
	case I64:
		return IntValue(int64(combine64(words))), nil
	case F64:
		return FloatValue(math.Float64frombits(combine64(words))), nil
	case UTF8:
		return decodeText(words)
	case Bit:
		if f.BitIndex > 15 {
			return Value{}, &DecodeError{Type: f.Type, Reason: "bit index " + strconv.Itoa(int(f.BitIndex)) + " outside word"}
		}
		return BitValue(words[0]>>f.BitIndex&1 == 1), nil
	}
	return Value{}, &UnsupportedTypeError{Type: f.Type}
}

func (c Codec) combine32(words []uint16, f Field) uint32 {
	if c.order(f) == LowFirst {
		return uint32(words[1])<<16 | uint32(words[0])
	}
	return uint32(words[0])<<16 | uint32(words[1])
}

func combine64(words []uint16) uint64 {
	return uint64(words[0])<<48 | uint64(words[1])<<32 | uint64(words[2])<<16 | uint64(words[3])
}

// decodeText packs words as big-endian byte pairs and strips null padding.
func decodeText(words []uint16) (Value, error) {
	b := make([]byte, 0, len(words)*2)
	for _, w := range words {
		b = append(b, byte(w>>8), byte(w))
	}
	b = bytes.Trim(b, "\x00")
	if !utf8.Valid(b) {
		return Value{}, &DecodeError{Type: UTF8, Reason: "invalid utf-8"}
	}
	return TextValue(string(b)), nil
}

// Encode converts v into register words according to f.
// Range is checked before any word is produced.
func (c Codec) Encode(v Value, f Field) ([]uint16, error) {
	if _, err := f.Type.Words(); err != nil {
		return nil, err
	}
	if !f.Type.Writable() {
		return nil, &UnsupportedTypeError{Type: f.Type, Op: "encode"}
	}

	switch f.Type {
	case U16:
		u, err := unsignedOf(v, f.Type, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		return []uint16{uint16(u)}, nil
	case I16:
		i, err := signedOf(v, f.Type, math.MinInt16, math.MaxInt16)
		if err != nil {
			return nil, err
		}
		return []uint16{uint16(int16(i))}, nil
	case U32:
		u, err := unsignedOf(v, f.Type, math.MaxUint32)
		if err != nil {
			return nil, err
		}
		return c.split32(uint32(u), f), nil
	case I32:
		i, err := signedOf(v, f.Type, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		return c.split32(uint32(int32(i)), f), nil
	case U64:
		u, err := unsignedOf(v, f.Type, math.MaxUint64)
		if err != nil {
			return nil, err
		}
		return split64(u), nil
	case I64:
		i, err := signedOf(v, f.Type, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		return split64(uint64(i)), nil
	case F32:
		x, err := floatOf(v, f.Type, math.MaxFloat32)
		if err != nil {
			return nil, err
		}
		return c.split32(math.Float32bits(float32(x)), f), nil
	case F64:
		x, err := floatOf(v, f.Type, math.MaxFloat64)
		if err != nil {
			return nil, err
		}
		return split64(math.Float64bits(x)), nil
	}
	return nil, &UnsupportedTypeError{Type: f.Type, Op: "encode"}
}

func (c Codec) split32(u uint32, f Field) []uint16 {
	hi, lo := uint16(u>>16), uint16(u)
	if c.order(f) == LowFirst {
		return []uint16{lo, hi}
	}
	return []uint16{hi, lo}
}

func split64(u uint64) []uint16 {
	return []uint16{uint16(u >> 48), uint16(u >> 32), uint16(u >> 16), uint16(u)}
}

func unsignedOf(v Value, t DataType, max uint64) (uint64, error) {
	rangeErr := &RangeError{Type: t, Value: v.String(), Min: "0", Max: strconv.FormatUint(max, 10)}
	switch v.Kind {
	case KindUint:
		if v.Uint > max {
			return 0, rangeErr
		}
		return v.Uint, nil
	case KindInt:
		if v.Int < 0 || uint64(v.Int) > max {
			return 0, rangeErr
		}
		return uint64(v.Int), nil
	case KindBit:
		if v.Bit {
			return 1, nil
		}
		return 0, nil
	case KindFloat:
		x := v.Float
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || x < 0 {
			return 0, rangeErr
		}
		if max == math.MaxUint64 {
			if x >= 0x1p64 {
				return 0, rangeErr
			}
		} else if x > float64(max) {
			return 0, rangeErr
		}
		return uint64(x), nil
	}
	return 0, &RangeError{Type: t, Value: v.String()}
}

func signedOf(v Value, t DataType, min, max int64) (int64, error) {
	rangeErr := &RangeError{Type: t, Value: v.String(), Min: strconv.FormatInt(min, 10), Max: strconv.FormatInt(max, 10)}
	switch v.Kind {
	case KindInt:
		if v.Int < min || v.Int > max {
			return 0, rangeErr
		}
		return v.Int, nil
	case KindUint:
		if v.Uint > uint64(max) {
			return 0, rangeErr
		}
		return int64(v.Uint), nil
	case KindBit:
		if v.Bit {
			return 1, nil
		}
		return 0, nil
	case KindFloat:
		x := v.Float
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, rangeErr
		}
		if max == math.MaxInt64 {
			if x >= 0x1p63 || x < -0x1p63 {
				return 0, rangeErr
			}
		} else if x > float64(max) || x < float64(min) {
			return 0, rangeErr
		}
		return int64(x), nil
	}
	return 0, &RangeError{Type: t, Value: v.String()}
}

func floatOf(v Value, t DataType, limit float64) (float64, error) {
	x, ok := v.Float64()
	if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, &RangeError{Type: t, Value: v.String()}
	}
	if math.Abs(x) > limit {
		lim := strconv.FormatFloat(limit, 'g', -1, 64)
		return 0, &RangeError{Type: t, Value: v.String(), Min: "-" + lim, Max: lim}
	}
	return x, nil
}

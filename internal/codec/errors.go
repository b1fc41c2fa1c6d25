// internal/codec/errors.go
package codec

import "fmt"

// UnsupportedTypeError is returned for data types the codec cannot handle.
type UnsupportedTypeError struct {
	Type DataType
	Op   string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("codec: %s not supported for type %q", e.Op, e.Type)
	}
	return fmt.Sprintf("codec: unsupported type %q", e.Type)
}

// DecodeError reports a response that does not fit the declared type.
type DecodeError struct {
	Type   DataType
	Want   int
	Got    int
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("codec: decode %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("codec: decode %s: want %d words, got %d", e.Type, e.Want, e.Got)
}

// RangeError reports a value that cannot be represented by the target type.
type RangeError struct {
	Type  DataType
	Value string
	Min   string
	Max   string
}

func (e *RangeError) Error() string {
	if e.Min == "" && e.Max == "" {
		return fmt.Sprintf("codec: value %s not representable as %s", e.Value, e.Type)
	}
	return fmt.Sprintf("codec: value %s out of range for %s [%s, %s]", e.Value, e.Type, e.Min, e.Max)
}

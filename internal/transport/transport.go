// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"
)

// RegisterClass selects the register bank a transaction addresses.
type RegisterClass uint8

const (
	// ReadOnly is the input register bank (FC 4).
	ReadOnly RegisterClass = iota
	// ReadWrite is the holding register bank (FC 3 read, FC 16 write).
	ReadWrite
)

func (c RegisterClass) String() string {
	if c == ReadWrite {
		return "read_write"
	}
	return "read_only"
}

// UnmarshalText accepts the catalog spellings of both banks.
func (c *RegisterClass) UnmarshalText(b []byte) error {
	switch string(b) {
	case "read_only", "input", "":
		*c = ReadOnly
	case "read_write", "holding":
		*c = ReadWrite
	default:
		return fmt.Errorf("transport: unknown register class %q", string(b))
	}
	return nil
}

// Link is one physical request/response channel (a serial bus or a TCP
// connection). Addresses are 1-indexed as printed in device manuals.
// Implementations must serialize transactions: at most one is outstanding.
type Link interface {
	Read(ctx context.Context, address, count uint16, unit uint8, class RegisterClass) ([]uint16, error)
	Write(ctx context.Context, words []uint16, address uint16, unit uint8, class RegisterClass) error
}

// Conn is the lifecycle side of a link, used by the connection supervisor.
type Conn interface {
	Connect() error
	Connected() bool
	Close() error
}

// ErrReadOnly is returned when a write targets the input register bank.
var ErrReadOnly = errors.New("transport: register class is read-only")

// TransportError is a transient transaction or connection failure.
type TransportError struct {
	Op      string
	Address uint16
	Count   uint16
	Unit    uint8
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s unit=%d addr=%d count=%d: %v", e.Op, e.Unit, e.Address, e.Count, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

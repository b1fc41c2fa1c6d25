// internal/poller/types.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/modbus-telemetry/internal/codec"
)

// Reading is one decoded, scaled and rounded parameter value.
type Reading struct {
	Parameter   string
	Slug        string
	Value       codec.Value
	Unit        string
	DeviceClass string
	StateClass  string
	At          time.Time
}

// Failure records a parameter skipped in one cycle.
type Failure struct {
	Parameter string
	Err       error
}

// ---- errors ----

// ErrClosed is returned by Write once shutdown has begun.
var ErrClosed = errors.New("poller: engine closed")

// UnknownParameterError is returned by Write for a slug that names no
// writable parameter of the device.
type UnknownParameterError struct {
	Device string
	Slug   string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("device %s: no writable parameter %q", e.Device, e.Slug)
}

// ValidationError is returned when the raw command text cannot be parsed
// for the parameter's entity kind.
type ValidationError struct {
	Parameter string
	Input     string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: invalid value %q: %v", e.Parameter, e.Input, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// WriteFailure reports an exhausted retry budget. It is not fatal.
type WriteFailure struct {
	Device    string
	Parameter string
	Attempts  int
	Err       error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("device %s: write %q failed after %d attempts: %v", e.Device, e.Parameter, e.Attempts, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// ---- instrumentation ----

// Recorder receives engine events. Implemented by the metrics package.
type Recorder interface {
	ReadDone(device string, err error)
	WriteAttempt(device string)
	WriteDone(device string, err error)
	CycleDone(device string, d time.Duration)
	Available(device string, up bool)
}

type nopRecorder struct{}

func (nopRecorder) ReadDone(string, error) {}
func (nopRecorder) WriteAttempt(string) {}
func (nopRecorder) WriteDone(string, error) {}
func (nopRecorder) CycleDone(string, time.Duration) {}
func (nopRecorder) Available(string, bool) {}

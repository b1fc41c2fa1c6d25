// internal/device/errors.go
package device

import "fmt"

// DeviceUnavailableError is returned by Connect when the device did not
// answer. The profile keeps its state; Connect may be retried.
type DeviceUnavailableError struct {
	Device string
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("device %s: unavailable: %v", e.Device, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// UnsupportedModelError is returned when the identification code is not in
// the family variant table. Fatal for the device.
type UnsupportedModelError struct {
	Device string
	Family string
	Code   string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("device %s: %s model code %s not supported", e.Device, e.Family, e.Code)
}

// SerialMismatchError is returned when the serial read from the device
// differs from the configured one. Fatal for the device.
type SerialMismatchError struct {
	Device string
	Want   string
	Got    string
}

func (e *SerialMismatchError) Error() string {
	return fmt.Sprintf("device %s: serial mismatch: configured %q, device reports %q", e.Device, e.Want, e.Got)
}

// ProfileNotReadyError is returned by operations attempted before the
// profile reached Ready.
type ProfileNotReadyError struct {
	Device string
	State  State
}

func (e *ProfileNotReadyError) Error() string {
	return fmt.Sprintf("device %s: profile not ready (%s)", e.Device, e.State)
}

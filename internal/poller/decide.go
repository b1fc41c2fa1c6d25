// internal/poller/decide.go
package poller

import (
	"context"
	"errors"

	"github.com/tamzrod/modbus-telemetry/internal/codec"
	"github.com/tamzrod/modbus-telemetry/internal/device"
	"github.com/tamzrod/modbus-telemetry/internal/supervisor"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// Action is what the polling loop does with an error.
type Action uint8

const (
	// SkipParameter drops one value for this cycle only.
	SkipParameter Action = iota + 1
	// AbortDevice ends the device's cycle; other devices continue.
	AbortDevice
	// AbortProcess begins orderly shutdown.
	AbortProcess
)

func (a Action) String() string {
	switch a {
	case SkipParameter:
		return "skip_parameter"
	case AbortDevice:
		return "abort_device"
	case AbortProcess:
		return "abort_process"
	}
	return "none"
}

// Decide is the single mapping from error kind to loop action.
// Order matters: wrapped errors match the first case that applies.
func Decide(err error) Action {
	var (
		connErr  *supervisor.ConnectionError
		availErr *device.DeviceUnavailableError
		trErr    *transport.TransportError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &connErr),
		errors.Is(err, context.Canceled):
		return AbortProcess
	case excludes(err),
		errors.As(err, &availErr):
		return AbortDevice
	case errors.As(err, &trErr):
		return SkipParameter
	}
	return AbortDevice
}

// excludes reports errors that remove the device for the rest of the run.
// They point at a catalog or model defect, so retrying cannot help.
func excludes(err error) bool {
	var (
		decErr    *codec.DecodeError
		typeErr   *codec.UnsupportedTypeError
		modelErr  *device.UnsupportedModelError
		serialErr *device.SerialMismatchError
	)
	return errors.As(err, &decErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &modelErr) ||
		errors.As(err, &serialErr)
}

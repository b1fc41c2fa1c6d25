// internal/bus/log.go
package bus

import (
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-telemetry/internal/poller"
	"github.com/tamzrod/modbus-telemetry/internal/status"
)

// Log is the publisher used when no broker is configured.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log { return &Log{log: log} }

func (l *Log) State(device string, r poller.Reading) error {
	l.log.Info().
		Str("device", device).
		Str("parameter", r.Parameter).
		Stringer("value", r.Value).
		Str("unit", r.Unit).
		Msg("reading")
	return nil
}

func (l *Log) Availability(device string, online bool) error {
	l.log.Info().Str("device", device).Bool("online", online).Msg("availability")
	return nil
}

func (l *Log) Status(device string, s status.Snapshot) error {
	l.log.Debug().
		Str("device", device).
		Str("health", status.HealthName(s.Health)).
		Uint16("last_error_code", s.LastErrorCode).
		Uint16("seconds_in_error", s.SecondsInError).
		Msg("status")
	return nil
}

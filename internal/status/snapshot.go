// internal/status/snapshot.go
package status

import "time"

// Snapshot is exactly what is published for one device.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Device         string    `json:"device"`
	Health         uint16    `json:"health"`
	State          string    `json:"state"`
	LastErrorCode  uint16    `json:"last_error_code"`
	LastError      string    `json:"last_error,omitempty"`
	SecondsInError uint16    `json:"seconds_in_error"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HealthName renders a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthDisabled:
		return "disabled"
	}
	return "unknown"
}

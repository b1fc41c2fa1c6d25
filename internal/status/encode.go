// internal/status/encode.go
package status

import "encoding/json"

// Encode converts a Snapshot into its bus payload.
// No IO. No side effects.
func Encode(s Snapshot) ([]byte, error) {
	s.State = HealthName(s.Health)
	return json.Marshal(s)
}

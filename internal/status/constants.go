// internal/status/constants.go
package status

// Health codes. Values are published verbatim and MUST NOT change.

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a device whose last cycle read every parameter.
const HealthOK uint16 = 1

// HealthError represents a device whose last cycle failed or was partial.
const HealthError uint16 = 2

// HealthDisabled represents a device excluded for the rest of the run.
const HealthDisabled uint16 = 4

// MaxSecondsInError caps the error timer; it MUST NOT wrap.
const MaxSecondsInError = 65535

// CodeGeneric is reported for errors that expose no code.
const CodeGeneric uint16 = 1

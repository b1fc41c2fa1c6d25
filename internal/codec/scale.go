// internal/codec/scale.go
package codec

import (
	"math"
	"strings"
)

// DefaultPlaces is used when a device class has no entry in the rounding table.
const DefaultPlaces = 2

// KiloPlaces is used for units with an SI kilo prefix (kW, kWh, kVar, ...).
const KiloPlaces = 1

// placesByClass maps a device class to decimal places.
var placesByClass = map[string]int{
	"reactive_power": 0,
	"energy":         1,
	"frequency":      1,
	"power_factor":   1,
	"apparent_power": 0,
	"current":        1,
	"voltage":        0,
	"power":          0,
}

// Places returns the number of decimal places for a value of the given
// device class and unit. ok is false when rounding must be skipped.
func Places(deviceClass, unit string) (places int, ok bool) {
	if deviceClass == "enum" {
		return 0, false
	}
	if strings.HasPrefix(unit, "k") {
		return KiloPlaces, true
	}
	if p, found := placesByClass[deviceClass]; found {
		return p, true
	}
	return DefaultPlaces, true
}

// Scale multiplies a numeric value by factor. A factor of 0 or 1 is a no-op,
// text values pass through unchanged.
func Scale(v Value, factor float64) Value {
	if factor == 0 || factor == 1 || !v.Numeric() {
		return v
	}
	x, _ := v.Float64()
	return FloatValue(x * factor)
}

// Round rounds float values to places decimals. Other kinds pass through.
func Round(v Value, places int) Value {
	if v.Kind != KindFloat || math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
		return v
	}
	p := math.Pow10(places)
	r := math.Round(v.Float*p) / p
	if r == 0 {
		r = 0 // no negative zero on the bus
	}
	return FloatValue(r)
}

// Unscale divides x by factor and rounds to the nearest integer when the
// target is an integer type.
func Unscale(x, factor float64, t DataType) Value {
	if factor != 0 && factor != 1 {
		x /= factor
	}
	switch t {
	case F32, F64:
		return FloatValue(x)
	}
	return FloatValue(math.Round(x))
}

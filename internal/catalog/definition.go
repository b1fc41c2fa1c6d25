// internal/catalog/definition.go
package catalog

import (
	"fmt"

	"github.com/tamzrod/modbus-telemetry/internal/codec"
	"github.com/tamzrod/modbus-telemetry/internal/transport"
)

// Entity is how a writable parameter accepts raw text from the bus.
type Entity string

const (
	// EntitySensor is read-only.
	EntitySensor Entity = "sensor"
	// EntityNumber parses a decimal and inverse-scales it.
	EntityNumber Entity = "number"
	// EntitySwitch parses an integer literal with base prefix (0xAA, 0b1, 85).
	EntitySwitch Entity = "switch"
)

// Definition describes one named parameter. Addresses are 1-indexed.
// A Definition is a value; catalogs hand out copies.
type Definition struct {
	Name        string                  `yaml:"name"`
	Address     uint16                  `yaml:"address"`
	Words       int                     `yaml:"words"`
	Type        codec.DataType          `yaml:"type"`
	Class       transport.RegisterClass `yaml:"class"`
	Scale       float64                 `yaml:"scale"`
	Places      *int                    `yaml:"places,omitempty"`
	Entity      Entity                  `yaml:"entity"`
	Min         *float64                `yaml:"min,omitempty"`
	Max         *float64                `yaml:"max,omitempty"`
	Unit        string                  `yaml:"unit"`
	DeviceClass string                  `yaml:"device_class"`
	StateClass  string                  `yaml:"state_class"`
	Bit         uint8                   `yaml:"bit"`
	Order       codec.WordOrder         `yaml:"word_order"`

	// OrderAmbiguous marks 32-bit parameters whose word order is not
	// confirmed by the vendor documentation.
	OrderAmbiguous bool `yaml:"order_ambiguous"`

	// Models restricts the parameter to the listed model variants.
	// Empty means every model.
	Models []string `yaml:"models,omitempty"`

	// Tags are free-form markers read by family catalog builders.
	Tags []string `yaml:"tags,omitempty"`
}

// Slug is the external key of the parameter.
func (d Definition) Slug() string { return Slug(d.Name) }

// Factor returns the scale factor, treating 0 as 1.
func (d Definition) Factor() float64 {
	if d.Scale == 0 {
		return 1
	}
	return d.Scale
}

// Writable reports whether bus commands may target the parameter.
func (d Definition) Writable() bool {
	return d.Class == transport.ReadWrite && d.Type.Writable() && d.Entity != EntitySensor
}

// Field is the codec view of d.
func (d Definition) Field() codec.Field {
	return codec.Field{Type: d.Type, Words: d.Words, BitIndex: d.Bit, Order: d.Order}
}

// Rounding returns the decimal places applied after scaling.
// ok is false for enumerated values, which are never rounded.
func (d Definition) Rounding() (places int, ok bool) {
	if d.Places != nil {
		return *d.Places, true
	}
	return codec.Places(d.DeviceClass, d.Unit)
}

// HasTag reports whether d carries tag.
func (d Definition) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AppliesTo reports whether d exists on model.
func (d Definition) AppliesTo(model string) bool {
	if len(d.Models) == 0 {
		return true
	}
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// normalize fills derived fields. Called once by the loader.
func (d *Definition) normalize() {
	if d.Words == 0 && d.Type != codec.UTF8 {
		if n, err := d.Type.Words(); err == nil {
			d.Words = n
		}
	}
	if d.Entity == "" {
		if d.Class == transport.ReadWrite {
			d.Entity = EntityNumber
		} else {
			d.Entity = EntitySensor
		}
	}
}

// Validate checks d in isolation.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("catalog: parameter name required")
	}
	if Slug(d.Name) == "" {
		return fmt.Errorf("catalog: parameter %q: name has no slug characters", d.Name)
	}
	if d.Address == 0 {
		return fmt.Errorf("catalog: parameter %q: address is 1-indexed, got 0", d.Name)
	}

	n, err := d.Type.Words()
	if err != nil {
		return fmt.Errorf("catalog: parameter %q: %w", d.Name, err)
	}
	switch d.Type {
	case codec.UTF8:
		if d.Words <= 0 {
			return fmt.Errorf("catalog: parameter %q: utf8 requires words > 0", d.Name)
		}
	default:
		if d.Words != n {
			return fmt.Errorf("catalog: parameter %q: %s occupies %d words, declared %d", d.Name, d.Type, n, d.Words)
		}
	}
	if d.Type == codec.Bit && d.Bit > 15 {
		return fmt.Errorf("catalog: parameter %q: bit index %d outside word", d.Name, d.Bit)
	}

	switch d.Entity {
	case EntitySensor:
	case EntityNumber, EntitySwitch:
		if d.Class != transport.ReadWrite {
			return fmt.Errorf("catalog: parameter %q: %s entity on read-only register", d.Name, d.Entity)
		}
		if !d.Type.Writable() {
			return fmt.Errorf("catalog: parameter %q: type %s is not writable", d.Name, d.Type)
		}
	default:
		return fmt.Errorf("catalog: parameter %q: unknown entity %q", d.Name, d.Entity)
	}

	if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
		return fmt.Errorf("catalog: parameter %q: min %v > max %v", d.Name, *d.Min, *d.Max)
	}
	return nil
}

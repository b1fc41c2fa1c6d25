// internal/family/family.go
package family

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tamzrod/modbus-telemetry/internal/catalog"
	"github.com/tamzrod/modbus-telemetry/internal/codec"
)

// Variant is one hardware SKU of a family.
// Code is matched against the decoded identification parameter.
type Variant struct {
	Code   string   `yaml:"code"`
	Model  string   `yaml:"model"`
	Groups []string `yaml:"groups"`
}

// Capability is the second resolution phase: the value of Parameter,
// read after the model is known, selects additional groups.
type Capability struct {
	Parameter string              `yaml:"parameter"`
	Groups    map[string][]string `yaml:"groups"`
}

// Options are per-device settings that alter the catalog.
type Options struct {
	PTRatio           float64
	CTRatio           float64
	ReverseConnection bool
}

// Builder derives a device catalog from the family tables.
// It must not modify its inputs.
type Builder func(base *catalog.Catalog, groups map[string]catalog.Group, opts Options) (*catalog.Catalog, map[string]catalog.Group, error)

// Family is everything that differs between device vendors: the codec,
// the parameter tables, the variant table and the catalog builder.
type Family struct {
	Name         string
	Manufacturer string
	Codec        codec.Codec

	// Identification names the parameter read first at connect.
	Identification string
	// Serial names the parameter compared with the configured serial.
	// Empty disables verification.
	Serial string
	// Fixed is set for families with a single model; every
	// identification value resolves to it.
	Fixed string

	Variants   []Variant
	Capability *Capability

	base   *catalog.Catalog
	groups map[string]catalog.Group
	build  Builder
}

// file is the YAML layout of an embedded family catalog.
type file struct {
	catalog.Document `yaml:",inline"`

	Name           string          `yaml:"name"`
	Manufacturer   string          `yaml:"manufacturer"`
	WordOrder      codec.WordOrder `yaml:"word_order"`
	Identification string          `yaml:"identification"`
	Serial         string          `yaml:"serial"`
	FixedModel     string          `yaml:"fixed_model"`
	Variants       []Variant       `yaml:"variants"`
	Capability     *Capability     `yaml:"capability"`
}

// Parse builds a Family from its YAML description.
// build may be nil when the tables are used unchanged.
func Parse(raw []byte, build Builder) (*Family, error) {
	var doc file
	if err := catalog.Decode(bytes.NewReader(raw), &doc); err != nil {
		return nil, err
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("family: name required")
	}

	base, groups, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("family %s: %w", doc.Name, err)
	}

	f := &Family{
		Name:           doc.Name,
		Manufacturer:   doc.Manufacturer,
		Codec:          codec.Codec{Order32: doc.WordOrder},
		Identification: doc.Identification,
		Serial:         doc.Serial,
		Fixed:          doc.FixedModel,
		Variants:       doc.Variants,
		Capability:     doc.Capability,
		base:           base,
		groups:         groups,
		build:          build,
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("family %s: %w", f.Name, err)
	}
	return f, nil
}

func (f *Family) validate() error {
	if _, ok := f.base.Get(f.Identification); !ok {
		return fmt.Errorf("identification parameter %q not in catalog", f.Identification)
	}
	if f.Serial != "" {
		if _, ok := f.base.Get(f.Serial); !ok {
			return fmt.Errorf("serial parameter %q not in catalog", f.Serial)
		}
	}
	if f.Fixed == "" && len(f.Variants) == 0 {
		return fmt.Errorf("no variants and no fixed model")
	}

	seen := map[string]bool{}
	for _, v := range f.Variants {
		if v.Code == "" || v.Model == "" {
			return fmt.Errorf("variant needs code and model")
		}
		if seen[v.Code] {
			return fmt.Errorf("duplicate variant code %q", v.Code)
		}
		seen[v.Code] = true
		for _, g := range v.Groups {
			if _, ok := f.groups[g]; !ok {
				return fmt.Errorf("variant %s: unknown group %q", v.Model, g)
			}
		}
	}

	if f.Capability != nil {
		if _, ok := f.base.Get(f.Capability.Parameter); !ok {
			return fmt.Errorf("capability parameter %q not in catalog", f.Capability.Parameter)
		}
		for key, names := range f.Capability.Groups {
			for _, g := range names {
				if _, ok := f.groups[g]; !ok {
					return fmt.Errorf("capability %q: unknown group %q", key, g)
				}
			}
		}
	}
	return nil
}

// Catalog returns the base catalog and groups for a device with opts.
func (f *Family) Catalog(opts Options) (*catalog.Catalog, map[string]catalog.Group, error) {
	if f.build == nil {
		return f.base, f.groups, nil
	}
	base, groups, err := f.build(f.base, f.groups, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("family %s: %w", f.Name, err)
	}
	return base, groups, nil
}

// Variant looks up the decoded identification value.
func (f *Family) Variant(id codec.Value) (Variant, bool) {
	if f.Fixed != "" {
		return Variant{Code: id.String(), Model: f.Fixed}, true
	}

	for _, v := range f.Variants {
		if matchCode(v.Code, id) {
			return v, true
		}
	}
	return Variant{}, false
}

func matchCode(code string, id codec.Value) bool {
	switch id.Kind {
	case codec.KindUint:
		n, err := strconv.ParseUint(code, 0, 64)
		return err == nil && n == id.Uint
	case codec.KindInt:
		n, err := strconv.ParseInt(code, 0, 64)
		return err == nil && n == id.Int
	case codec.KindText:
		return strings.TrimSpace(id.Text) == code
	}
	return false
}

// Resolve applies the variant to base: parameters the model lacks are
// removed, then the variant groups and the groups selected by the
// capability value are added. capability is ignored for families
// without a capability register.
func (f *Family) Resolve(base *catalog.Catalog, groups map[string]catalog.Group, v Variant, capability codec.Value) (*catalog.Catalog, error) {
	names := append([]string(nil), v.Groups...)
	if f.Capability != nil {
		key := capability.String()
		extra, ok := f.Capability.Groups[key]
		if !ok {
			return nil, fmt.Errorf("family %s: %s value %q selects no group", f.Name, f.Capability.Parameter, key)
		}
		names = append(names, extra...)
	}

	add := make([]catalog.Group, 0, len(names))
	for _, n := range names {
		g, ok := groups[n]
		if !ok {
			return nil, fmt.Errorf("family %s: unknown group %q", f.Name, n)
		}
		add = append(add, g)
	}

	return catalog.Apply(base, catalog.Unsupported(base, v.Model), add)
}

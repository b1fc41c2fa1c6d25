// internal/catalog/load.go
package catalog

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a parameter table: an ordered base list
// plus named optional groups.
type Document struct {
	Parameters []Definition `yaml:"parameters"`
	Groups     []Group      `yaml:"groups"`
}

// Decode parses a Document. Unknown keys are rejected.
func Decode(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("catalog: decode: %w", err)
	}
	return nil
}

// Load parses raw YAML into the base catalog and its groups keyed by name.
// Every group is validated on its own so defects surface at load time.
func Load(raw []byte) (*Catalog, map[string]Group, error) {
	var doc Document
	if err := Decode(bytes.NewReader(raw), &doc); err != nil {
		return nil, nil, err
	}
	return doc.Build()
}

// Build freezes the document.
func (doc Document) Build() (*Catalog, map[string]Group, error) {
	base, err := New(doc.Parameters...)
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[string]Group, len(doc.Groups))
	for _, g := range doc.Groups {
		if g.Name == "" {
			return nil, nil, fmt.Errorf("catalog: group without name")
		}
		if _, dup := groups[g.Name]; dup {
			return nil, nil, fmt.Errorf("catalog: duplicate group %q", g.Name)
		}
		gc, err := New(g.Params...)
		if err != nil {
			return nil, nil, fmt.Errorf("catalog: group %q: %w", g.Name, err)
		}
		// keep the normalized copies
		g.Params = make([]Definition, 0, gc.Len())
		for d := range gc.All() {
			g.Params = append(g.Params, d)
		}
		groups[g.Name] = g
	}
	return base, groups, nil
}

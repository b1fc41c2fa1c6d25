// internal/catalog/delta.go
package catalog

import "fmt"

// Group is a named set of parameters added together (one MPPT channel,
// the phase-voltage block, ...).
type Group struct {
	Name   string       `yaml:"name"`
	Params []Definition `yaml:"params"`
}

// Apply returns base minus remove, plus every group in addGroups, in that
// order. base is not modified. Adding a name that survived removal is an
// error: replacing a parameter requires removing it first.
func Apply(base *Catalog, remove map[string]bool, addGroups []Group) (*Catalog, error) {
	var out []Definition
	for d := range base.All() {
		if remove[d.Name] {
			continue
		}
		out = append(out, d)
	}
	for _, g := range addGroups {
		out = append(out, g.Params...)
	}

	c, err := New(out...)
	if err != nil {
		return nil, fmt.Errorf("catalog: apply: %w", err)
	}
	return c, nil
}

// Unsupported returns the names in base that do not apply to model.
func Unsupported(base *Catalog, model string) map[string]bool {
	out := map[string]bool{}
	for d := range base.All() {
		if !d.AppliesTo(model) {
			out[d.Name] = true
		}
	}
	return out
}

// internal/catalog/catalog.go
package catalog

import (
	"fmt"
	"iter"
)

// Catalog is an ordered, immutable set of parameter definitions with
// unique names and unique slugs. Iteration follows insertion order.
type Catalog struct {
	defs   []Definition
	byName map[string]int
	bySlug map[string]int
}

// New validates defs and freezes them into a Catalog.
func New(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:   make([]Definition, 0, len(defs)),
		byName: make(map[string]int, len(defs)),
		bySlug: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := c.add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is New for static tables; it panics on error.
func MustNew(defs ...Definition) *Catalog {
	c, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) add(d Definition) error {
	d.normalize()
	if err := d.Validate(); err != nil {
		return err
	}
	if _, dup := c.byName[d.Name]; dup {
		return fmt.Errorf("catalog: duplicate parameter %q", d.Name)
	}
	slug := d.Slug()
	if i, dup := c.bySlug[slug]; dup {
		return fmt.Errorf("catalog: parameters %q and %q share slug %q", c.defs[i].Name, d.Name, slug)
	}
	c.byName[d.Name] = len(c.defs)
	c.bySlug[slug] = len(c.defs)
	c.defs = append(c.defs, d)
	return nil
}

// Len returns the number of parameters.
func (c *Catalog) Len() int { return len(c.defs) }

// All yields every definition in insertion order.
func (c *Catalog) All() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for _, d := range c.defs {
			if !yield(d) {
				return
			}
		}
	}
}

// Writable yields the parameters accepting bus commands, in insertion order.
func (c *Catalog) Writable() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for _, d := range c.defs {
			if d.Writable() && !yield(d) {
				return
			}
		}
	}
}

// ReadOnly yields the remaining parameters, in insertion order.
func (c *Catalog) ReadOnly() iter.Seq[Definition] {
	return func(yield func(Definition) bool) {
		for _, d := range c.defs {
			if !d.Writable() && !yield(d) {
				return
			}
		}
	}
}

// Get looks a parameter up by display name.
func (c *Catalog) Get(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Lookup looks a parameter up by slug.
func (c *Catalog) Lookup(slug string) (Definition, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Names returns the display names in insertion order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.Name
	}
	return out
}

// Map returns a new catalog with fn applied to every definition.
// fn receives a copy; the receiver is unchanged.
func (c *Catalog) Map(fn func(Definition) Definition) (*Catalog, error) {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, fn(d))
	}
	return New(out...)
}

// internal/family/acrel.go
package family

import (
	"fmt"

	"github.com/tamzrod/modbus-telemetry/internal/catalog"
)

// Tags read by acrelCatalog.
const (
	tagPT         = "pt"
	tagCT         = "ct"
	tagReversible = "reversible"
)

// acrelCatalog scales the meter tables by the transformer ratios and
// selects the energy group matching the mounting direction.
func acrelCatalog(base *catalog.Catalog, groups map[string]catalog.Group, opts Options) (*catalog.Catalog, map[string]catalog.Group, error) {
	pt, ct := opts.PTRatio, opts.CTRatio
	if pt == 0 {
		pt = 1
	}
	if ct == 0 {
		ct = 1
	}
	if pt < 0 || ct < 0 {
		return nil, nil, fmt.Errorf("acrel: pt_ratio and ct_ratio must be positive, got %v and %v", opts.PTRatio, opts.CTRatio)
	}

	adjust := func(d catalog.Definition) catalog.Definition {
		f := d.Factor()
		if d.HasTag(tagPT) {
			f *= pt
		}
		if d.HasTag(tagCT) {
			f *= ct
		}
		if opts.ReverseConnection && d.HasTag(tagReversible) {
			f = -f
		}
		d.Scale = f
		return d
	}

	energy := "forward_energy"
	if opts.ReverseConnection {
		energy = "reverse_energy"
	}
	g, ok := groups[energy]
	if !ok {
		return nil, nil, fmt.Errorf("acrel: group %q missing", energy)
	}
	scaled := catalog.Group{Name: g.Name, Params: make([]catalog.Definition, len(g.Params))}
	for i, d := range g.Params {
		scaled.Params[i] = adjust(d)
	}

	c, err := base.Map(adjust)
	if err != nil {
		return nil, nil, err
	}
	c, err = catalog.Apply(c, nil, []catalog.Group{scaled})
	if err != nil {
		return nil, nil, err
	}
	return c, groups, nil
}

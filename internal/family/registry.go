// internal/family/registry.go
package family

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed catalogs/*.yaml
var catalogFS embed.FS

// builders holds the catalog builders of families whose tables depend
// on device options.
var builders = map[string]Builder{
	"acrel_meter": acrelCatalog,
}

var loadAll = sync.OnceValues(func() (map[string]*Family, error) {
	entries, err := catalogFS.ReadDir("catalogs")
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Family, len(entries))
	for _, e := range entries {
		raw, err := catalogFS.ReadFile(path.Join("catalogs", e.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		f, err := Parse(raw, builders[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if f.Name != name {
			return nil, fmt.Errorf("%s: family name %q does not match file", e.Name(), f.Name)
		}
		out[name] = f
	}
	return out, nil
})

// Lookup returns the built-in family called name.
func Lookup(name string) (*Family, error) {
	all, err := loadAll()
	if err != nil {
		return nil, fmt.Errorf("family: load catalogs: %w", err)
	}
	f, ok := all[name]
	if !ok {
		return nil, fmt.Errorf("family: unknown family %q", name)
	}
	return f, nil
}

// Names lists the built-in families, sorted.
func Names() []string {
	all, _ := loadAll()
	out := make([]string, 0, len(all))
	for n := range all {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

package module

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the descriptors known to the process. It is filled during
// startup wiring and only read afterwards.
type Registry struct {
	byName map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Descriptor{}}
}

// Register lints d and adds it. A descriptor with issues or a clashing name
// is refused.
func (r *Registry) Register(d *Descriptor) error {
	if issues := Lint(d); len(issues) > 0 {
		msgs := make([]string, 0, len(issues))
		for _, i := range issues {
			msgs = append(msgs, i.String())
		}
		return fmt.Errorf("module %q: %s", d.Singular, strings.Join(msgs, "; "))
	}
	key := strings.ToLower(d.Singular)
	if _, ok := r.byName[key]; ok {
		return fmt.Errorf("module %q registered twice", d.Singular)
	}
	r.byName[key] = d
	return nil
}

// Lookup resolves a module by singular name, plural name or table,
// case-insensitively.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	nl := strings.ToLower(strings.TrimSpace(name))
	if nl == "" {
		return nil, false
	}
	if d, ok := r.byName[nl]; ok {
		return d, true
	}
	for _, d := range r.byName {
		if strings.ToLower(d.Plural) == nl || strings.ToLower(d.Table) == nl {
			return d, true
		}
	}
	return nil, false
}

// All returns the descriptors sorted by singular name.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Singular < out[j].Singular })
	return out
}

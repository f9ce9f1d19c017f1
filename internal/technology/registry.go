package technology

import (
	"fmt"
	"sort"

	"energy-mca/internal/model"
)

// Registry indexes technologies by sector. Technologies within a sector are
// kept sorted by name so every iteration is deterministic.
type Registry struct {
	timeslices int
	bySector   map[string][]*Technology
	byKey      map[model.TechKey]*Technology
}

// NewRegistry validates techs against the timeslice count and indexes them.
func NewRegistry(timeslices int, techs ...*Technology) (*Registry, error) {
	r := &Registry{
		timeslices: timeslices,
		bySector:   map[string][]*Technology{},
		byKey:      map[model.TechKey]*Technology{},
	}
	for _, t := range techs {
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates and registers t.
func (r *Registry) Add(t *Technology) error {
	if t == nil {
		return model.Configf("technologies", "nil technology")
	}
	if err := t.Validate(r.timeslices); err != nil {
		return err
	}
	if _, dup := r.byKey[t.Key()]; dup {
		return model.Configf(fmt.Sprintf("sectors[%s]", t.Sector), "duplicate technology %q", t.Name)
	}
	r.byKey[t.Key()] = t
	list := append(r.bySector[t.Sector], t)
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	r.bySector[t.Sector] = list
	return nil
}

// Timeslices is the profile length every technology carries.
func (r *Registry) Timeslices() int { return r.timeslices }

// Get looks up a technology.
func (r *Registry) Get(key model.TechKey) (*Technology, bool) {
	t, ok := r.byKey[key]
	return t, ok
}

// Sector returns the technologies of one sector, sorted by name.
func (r *Registry) Sector(name string) []*Technology {
	return append([]*Technology(nil), r.bySector[name]...)
}

// Sectors returns the sector names that own at least one technology.
func (r *Registry) Sectors() []string {
	out := make([]string, 0, len(r.bySector))
	for s := range r.bySector {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// All returns every technology ordered by sector then name.
func (r *Registry) All() []*Technology {
	var out []*Technology
	for _, s := range r.Sectors() {
		out = append(out, r.bySector[s]...)
	}
	return out
}

// Outputs returns the commodities produced in a sector, sorted.
func (r *Registry) Outputs(sector string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range r.bySector[sector] {
		if !seen[t.Output] {
			seen[t.Output] = true
			out = append(out, t.Output)
		}
	}
	sort.Strings(out)
	return out
}

// Inputs returns the commodities consumed in a sector, sorted.
func (r *Registry) Inputs(sector string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range r.bySector[sector] {
		for c := range t.Inputs {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

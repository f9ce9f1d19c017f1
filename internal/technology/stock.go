package technology

import (
	"sort"

	"energy-mca/internal/model"
)

// Vintage is capacity installed in one year.
type Vintage struct {
	Year     int
	Capacity float64
}

// Capacities is a read-only capacity snapshot handed to dispatch.
type Capacities map[model.TechKey]float64

// Stock tracks installed capacity by vintage. Only the capacity planner
// mutates it, and only between simulation years.
type Stock struct {
	vintages map[model.TechKey][]Vintage
}

// NewStock returns an empty stock.
func NewStock() *Stock {
	return &Stock{vintages: map[model.TechKey][]Vintage{}}
}

// Install adds capacity installed in year.
func (s *Stock) Install(key model.TechKey, year int, capacity float64) {
	if capacity <= 0 {
		return
	}
	vs := s.vintages[key]
	for i := range vs {
		if vs[i].Year == year {
			vs[i].Capacity += capacity
			return
		}
	}
	vs = append(vs, Vintage{Year: year, Capacity: capacity})
	sort.Slice(vs, func(i, j int) bool { return vs[i].Year < vs[j].Year })
	s.vintages[key] = vs
}

// Capacity is the total installed capacity of key.
func (s *Stock) Capacity(key model.TechKey) float64 {
	sum := 0.0
	for _, v := range s.vintages[key] {
		sum += v.Capacity
	}
	return sum
}

// Vintages returns a copy of the vintages of key, oldest first.
func (s *Stock) Vintages(key model.TechKey) []Vintage {
	return append([]Vintage(nil), s.vintages[key]...)
}

// Retire removes every vintage whose lifetime has elapsed by year: a vintage
// installed in Y with lifetime L is available in Y..Y+L-1. It returns the
// retired capacity per technology.
func (s *Stock) Retire(year int, reg *Registry) map[model.TechKey]float64 {
	retired := map[model.TechKey]float64{}
	for _, key := range s.Keys() {
		t, ok := reg.Get(key)
		if !ok {
			continue
		}
		vs := s.vintages[key]
		kept := vs[:0]
		for _, v := range vs {
			if v.Year+t.Lifetime <= year {
				retired[key] += v.Capacity
				continue
			}
			kept = append(kept, v)
		}
		if len(kept) == 0 {
			delete(s.vintages, key)
		} else {
			s.vintages[key] = kept
		}
	}
	return retired
}

// Keys returns the technologies with installed capacity, sorted.
func (s *Stock) Keys() []model.TechKey {
	out := make([]model.TechKey, 0, len(s.vintages))
	for k := range s.vintages {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sector != out[j].Sector {
			return out[i].Sector < out[j].Sector
		}
		return out[i].Technology < out[j].Technology
	})
	return out
}

// Snapshot freezes the current totals.
func (s *Stock) Snapshot() Capacities {
	out := make(Capacities, len(s.vintages))
	for k := range s.vintages {
		out[k] = s.Capacity(k)
	}
	return out
}

// Clone returns an independent copy.
func (s *Stock) Clone() *Stock {
	out := NewStock()
	for k, vs := range s.vintages {
		out.vintages[k] = append([]Vintage(nil), vs...)
	}
	return out
}

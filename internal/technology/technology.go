// Package technology holds the per-sector process tables: static attributes,
// timeslice utilization profiles, and the installed capacity stock.
package technology

import (
	"fmt"
	"math"
	"sort"

	"energy-mca/internal/model"
)

// Utilization bounds dispatch of one technology in one timeslice.
type Utilization struct {
	// Factor is the fraction of capacity that may run, in [0, 1].
	Factor float64
	// MustRun fixes dispatch at exactly Factor of capacity.
	MustRun bool
}

// Profile is a utilization vector indexed by timeslice.
type Profile []Utilization

// Uniform builds a profile with the same factor in n timeslices.
func Uniform(n int, factor float64) Profile {
	p := make(Profile, n)
	for i := range p {
		p[i] = Utilization{Factor: factor}
	}
	return p
}

// FromFactors builds a profile from plain factors.
func FromFactors(factors ...float64) Profile {
	p := make(Profile, len(factors))
	for i, f := range factors {
		p[i] = Utilization{Factor: f}
	}
	return p
}

// Factors returns the plain factors.
func (p Profile) Factors() []float64 {
	out := make([]float64, len(p))
	for i, u := range p {
		out[i] = u.Factor
	}
	return out
}

// Technology is one process competing inside a sector.
//
// Units: capacity in capacity units, CapacityToActivity in output per
// capacity unit per year, costs in currency per capacity-year (fixed) and per
// unit of output (variable).
type Technology struct {
	Name   string
	Sector string

	// Output is the commodity produced.
	Output string
	// Inputs maps consumed commodities to the quantity needed per unit of output.
	Inputs map[string]float64

	CapacityToActivity float64
	// MaxCapacity caps total installed capacity. Zero means unbounded.
	MaxCapacity float64
	// MaxBuildRate caps new capacity per year. Zero disables investment.
	MaxBuildRate float64
	// Lifetime in years of each installed vintage.
	Lifetime int

	FixedCost    float64
	VariableCost float64

	Utilization Profile
}

// Key identifies the technology.
func (t *Technology) Key() model.TechKey {
	return model.TechKey{Sector: t.Sector, Technology: t.Name}
}

// Factor returns the utilization factor in timeslice ts.
func (t *Technology) Factor(ts int) float64 {
	if ts < 0 || ts >= len(t.Utilization) {
		return 0
	}
	return t.Utilization[ts].Factor
}

// MustRun reports whether dispatch is fixed in timeslice ts.
func (t *Technology) MustRun(ts int) bool {
	if ts < 0 || ts >= len(t.Utilization) {
		return false
	}
	return t.Utilization[ts].MustRun
}

// Headroom is the most output capacity can deliver in a timeslice of the
// given weight (fraction of year).
func (t *Technology) Headroom(capacity float64, ts int, weight float64) float64 {
	f := t.Factor(ts)
	if f <= 0 || capacity <= 0 || weight <= 0 {
		return 0
	}
	return capacity * t.CapacityToActivity * f * weight
}

// CapacityFor is the capacity needed to deliver qty in timeslice ts. It is
// +Inf when the technology cannot run there.
func (t *Technology) CapacityFor(qty float64, ts int, weight float64) float64 {
	per := t.CapacityToActivity * t.Factor(ts) * weight
	if per <= 0 {
		return math.Inf(1)
	}
	return qty / per
}

// MarginalCost is the cost of one more unit of output given input prices.
func (t *Technology) MarginalCost(price func(commodity string) float64) float64 {
	c := t.VariableCost
	for _, name := range sortedKeys(t.Inputs) {
		c += t.Inputs[name] * price(name)
	}
	return c
}

// Validate checks static attributes against a timeslice count.
func (t *Technology) Validate(timeslices int) error {
	field := fmt.Sprintf("sectors[%s].technologies[%s]", t.Sector, t.Name)
	switch {
	case t.Name == "":
		return model.Configf(field, "name is required")
	case t.Sector == "":
		return model.Configf(field, "sector is required")
	case t.Output == "":
		return model.Configf(field, "output commodity is required")
	case !(t.CapacityToActivity > 0):
		return model.Configf(field, "capacity_to_activity must be > 0")
	case t.Lifetime <= 0:
		return model.Configf(field, "lifetime must be > 0")
	case t.MaxCapacity < 0 || t.MaxBuildRate < 0:
		return model.Configf(field, "max_capacity and max_build_rate must be >= 0")
	case t.FixedCost < 0 || t.VariableCost < 0:
		return model.Configf(field, "costs must be >= 0")
	}
	if _, ok := t.Inputs[t.Output]; ok {
		return model.Configf(field, "commodity %q is both input and output", t.Output)
	}
	for c, q := range t.Inputs {
		if q < 0 || math.IsNaN(q) {
			return model.Configf(field, "input %q must be >= 0", c)
		}
	}
	if len(t.Utilization) != timeslices {
		return model.Configf(field, "utilization profile has %d entries, want %d", len(t.Utilization), timeslices)
	}
	for i, u := range t.Utilization {
		if math.IsNaN(u.Factor) || u.Factor < 0 || u.Factor > 1 {
			return model.Configf(field, "utilization factor %g in timeslice %d is outside [0, 1]", u.Factor, i)
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

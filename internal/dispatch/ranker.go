package dispatch

import (
	"sort"

	"energy-mca/internal/technology"
)

// Candidate is a technology eligible to serve demand in one timeslice.
type Candidate struct {
	Tech *technology.Technology
	// Cost is the marginal cost of one unit of output at current prices.
	Cost float64
	// Headroom is the most it can deliver in the timeslice.
	Headroom float64
}

// Ranker orders candidates for dispatch. Implementations must be pure: the
// same candidates always yield the same order, so ranking is recomputed
// every round instead of cached.
type Ranker interface {
	Name() string
	Rank(ts int, candidates []Candidate) []Candidate
}

// MeritOrder dispatches the cheapest technology first. Equal costs go to
// the candidate with more headroom, then to the lower name.
type MeritOrder struct{}

func (MeritOrder) Name() string { return "merit" }

func (MeritOrder) Rank(_ int, candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		if a.Headroom != b.Headroom {
			return a.Headroom > b.Headroom
		}
		return a.Tech.Name < b.Tech.Name
	})
	return out
}

// FixedOrder dispatches in a declared technology order regardless of price.
// Technologies missing from the list follow in merit order.
type FixedOrder struct {
	Order []string
}

func (f FixedOrder) Name() string { return "fixed" }

func (f FixedOrder) Rank(ts int, candidates []Candidate) []Candidate {
	pos := make(map[string]int, len(f.Order))
	for i, n := range f.Order {
		pos[n] = i
	}
	merit := MeritOrder{}.Rank(ts, candidates)
	sort.SliceStable(merit, func(i, j int) bool {
		pi, iok := pos[merit[i].Tech.Name]
		pj, jok := pos[merit[j].Tech.Name]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return false
		}
	})
	return merit
}

// NewRanker resolves a ranker by name. Unknown names fall back to merit order.
func NewRanker(name string, order []string) Ranker {
	switch name {
	case "fixed":
		return FixedOrder{Order: order}
	default:
		return MeritOrder{}
	}
}

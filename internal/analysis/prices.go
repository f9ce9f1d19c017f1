package analysis

import (
	"math"
	"sort"

	"energy-mca/internal/results"

	"gonum.org/v1/gonum/stat"
)

// PriceStats summarizes one commodity's cleared prices over a year's
// timeslices. Mean and percentiles are weighted by timeslice duration.
type PriceStats struct {
	Year      int     `json:"year"`
	Commodity string  `json:"commodity"`
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	P05       float64 `json:"p05"`
	P95       float64 `json:"p95"`
	// Spread is P95 - P05, the intra-year price swing.
	Spread float64 `json:"spread"`
}

// ComputePriceStats groups price rows by (year, commodity). weights are the
// timeslice durations; nil weights count every timeslice equally.
func ComputePriceStats(rows []results.PriceRow, weights []float64) []PriceStats {
	type group struct {
		year      int
		commodity string
	}
	byGroup := map[group][]results.PriceRow{}
	for _, r := range rows {
		g := group{r.Year, r.Commodity}
		byGroup[g] = append(byGroup[g], r)
	}

	out := make([]PriceStats, 0, len(byGroup))
	for g, rs := range byGroup {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Price < rs[j].Price })
		vals := make([]float64, len(rs))
		w := make([]float64, len(rs))
		for i, r := range rs {
			vals[i] = r.Price
			w[i] = 1
			if r.Timeslice >= 0 && r.Timeslice < len(weights) {
				w[i] = weights[r.Timeslice]
			}
		}
		if sum(w) <= 0 {
			w = nil
		}
		p := PriceStats{
			Year:      g.year,
			Commodity: g.commodity,
			Count:     len(vals),
			Min:       vals[0],
			Max:       vals[len(vals)-1],
			Mean:      stat.Mean(vals, w),
			P05:       stat.Quantile(0.05, stat.Empirical, vals, w),
			P95:       stat.Quantile(0.95, stat.Empirical, vals, w),
		}
		p.Spread = p.P95 - p.P05
		if math.IsNaN(p.Mean) {
			p.Mean = 0
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Commodity < out[j].Commodity
	})
	return out
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

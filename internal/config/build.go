package config

import (
	"fmt"
	"math"
	"sort"

	"energy-mca/internal/data"
	"energy-mca/internal/mca"
	"energy-mca/internal/model"
	"energy-mca/internal/technology"
	"energy-mca/internal/timeslice"
)

// Build resolves every table against the timeslice grid and returns a
// runnable model. Rows are resolved on the declared grid first; when levels
// are dropped or an aggregate grid is declared, utilization and prices fold
// as weighted averages and demand folds as a sum.
func (c *Config) Build() (*mca.Model, error) {
	tol := c.Timeslices.Tolerance
	if tol == 0 {
		tol = timeslice.DefaultTolerance
	}
	fine, err := timeslice.FlattenTolerance(c.Timeslices.Definition, tol)
	if err != nil {
		return nil, err
	}

	techs := make([]*technology.Technology, 0)
	profiles := map[model.TechKey]*profile{}
	for _, s := range c.Sectors {
		for _, tc := range s.Technologies {
			t := &technology.Technology{
				Name:               tc.Name,
				Sector:             s.Name,
				Output:             tc.Output,
				Inputs:             tc.Inputs,
				CapacityToActivity: tc.CapacityToActivity,
				MaxCapacity:        tc.MaxCapacity,
				MaxBuildRate:       tc.MaxBuildRate,
				Lifetime:           tc.Lifetime,
				FixedCost:          tc.FixedCost,
				VariableCost:       tc.VariableCost,
			}
			p, err := resolveUtilization(tc.Utilization, fine)
			if err != nil {
				return nil, model.Configf(fmt.Sprintf("sectors[%s].technologies[%s].utilization", s.Name, tc.Name), "%v", err)
			}
			profiles[t.Key()] = p
			techs = append(techs, t)
		}
	}

	demand, err := data.BuildDemand(c.Demand, fine)
	if err != nil {
		return nil, err
	}
	prices, err := resolvePrices(c.Prices, fine)
	if err != nil {
		return nil, err
	}

	set, fold, err := c.solveGrid(fine, tol)
	if err != nil {
		return nil, err
	}
	if fold != nil {
		for k, p := range profiles {
			profiles[k] = p.fold(fold)
		}
		for y, t := range demand {
			demand[y] = foldTotals(t, fold)
		}
		prices = foldPrices(prices, fold)
	}

	for _, t := range techs {
		t.Utilization = profiles[t.Key()].build()
	}
	reg, err := technology.NewRegistry(set.Len(), techs...)
	if err != nil {
		return nil, err
	}

	stock := technology.NewStock()
	for i, e := range c.Existing {
		field := fmt.Sprintf("existing_capacity[%d]", i)
		key := model.TechKey{Sector: e.Sector, Technology: e.Technology}
		if _, ok := reg.Get(key); !ok {
			return nil, model.Configf(field, "%w: %s/%s", model.ErrUnknownTechnology, e.Sector, e.Technology)
		}
		if e.Capacity < 0 {
			return nil, model.Configf(field, "capacity must be >= 0")
		}
		stock.Install(key, e.Year, e.Capacity)
	}

	years := append([]int(nil), c.Years...)
	m := &mca.Model{
		Name:       c.Name,
		Years:      years,
		Timeslices: set,
		Registry:   reg,
		Stock:      stock,
		Demand:     demand,
		Prices:     prices,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// solveGrid picks the grid the model runs on. A nil mapping means the fine
// grid is used as declared.
func (c *Config) solveGrid(fine *timeslice.Set, tol float64) (*timeslice.Set, *timeslice.Mapping, error) {
	ts := c.Timeslices
	switch {
	case ts.Aggregate != nil && len(ts.DropLevels) > 0:
		return nil, nil, model.Configf("timeslices", "aggregate and drop_levels are exclusive")
	case ts.Aggregate != nil:
		coarse, err := timeslice.FlattenTolerance(*ts.Aggregate, tol)
		if err != nil {
			return nil, nil, model.Configf("timeslices.aggregate", "%v", err)
		}
		m, err := timeslice.Project(fine, coarse)
		if err != nil {
			return nil, nil, err
		}
		folded := m.Totals(fine.Weights())
		for ci, w := range folded {
			if math.Abs(w-coarse.Weight(ci)) > math.Max(tol, 1e-12) {
				return nil, nil, model.Configf("timeslices.aggregate", "timeslice %q has weight %g but its fine members sum to %g",
					coarse.At(ci).Name(), coarse.Weight(ci), w)
			}
		}
		return coarse, m, nil
	case len(ts.DropLevels) > 0:
		return timeslice.Collapse(fine, ts.DropLevels...)
	}
	return fine, nil, nil
}

type profile struct {
	factors []float64
	mustRun []bool
}

func resolveUtilization(rows []UtilizationRow, set *timeslice.Set) (*profile, error) {
	p := &profile{factors: make([]float64, set.Len()), mustRun: make([]bool, set.Len())}
	// A technology without any rows may run fully everywhere.
	if len(rows) == 0 {
		for i := range p.factors {
			p.factors[i] = 1
		}
		return p, nil
	}
	for _, r := range rows {
		idx, err := r.Timeslice.Resolve(set)
		if err != nil {
			return nil, err
		}
		for _, ts := range idx {
			p.factors[ts] = r.Factor
			p.mustRun[ts] = r.MustRun
		}
	}
	return p, nil
}

// fold averages factors by weight. A coarse timeslice is must-run only when
// every member is.
func (p *profile) fold(m *timeslice.Mapping) *profile {
	out := &profile{factors: m.Rates(p.factors), mustRun: make([]bool, m.Coarse.Len())}
	for i := range out.mustRun {
		out.mustRun[i] = true
	}
	for fi, ci := range m.To {
		out.mustRun[ci] = out.mustRun[ci] && p.mustRun[fi]
	}
	return out
}

func (p *profile) build() technology.Profile {
	out := make(technology.Profile, len(p.factors))
	for i := range out {
		out[i] = technology.Utilization{Factor: p.factors[i], MustRun: p.mustRun[i]}
	}
	return out
}

func resolvePrices(rows []PriceConfig, set *timeslice.Set) (model.CommodityTable, error) {
	out := model.CommodityTable{}
	for i, r := range rows {
		field := fmt.Sprintf("prices[%d]", i)
		if r.Commodity == "" {
			return nil, model.Configf(field, "commodity is required")
		}
		idx, err := r.Timeslice.Resolve(set)
		if err != nil {
			return nil, model.Configf(field, "%v", err)
		}
		for _, ts := range idx {
			out[model.CommodityTS{Commodity: r.Commodity, Timeslice: ts}] = r.Price
		}
	}
	return out, nil
}

func commodities(t model.CommodityTable) []string {
	seen := map[string]bool{}
	for k := range t {
		seen[k.Commodity] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func foldTotals(t model.CommodityTable, m *timeslice.Mapping) model.CommodityTable {
	out := model.CommodityTable{}
	for _, c := range commodities(t) {
		fine := make([]float64, m.Fine.Len())
		for i := range fine {
			fine[i] = t[model.CommodityTS{Commodity: c, Timeslice: i}]
		}
		for ci, v := range m.Totals(fine) {
			out[model.CommodityTS{Commodity: c, Timeslice: ci}] = v
		}
	}
	return out
}

// foldPrices averages by weight over the fine timeslices that carry a price.
func foldPrices(t model.CommodityTable, m *timeslice.Mapping) model.CommodityTable {
	out := model.CommodityTable{}
	for _, c := range commodities(t) {
		sum := make([]float64, m.Coarse.Len())
		wsum := make([]float64, m.Coarse.Len())
		seen := make([]bool, m.Coarse.Len())
		for fi, ci := range m.To {
			p, ok := t[model.CommodityTS{Commodity: c, Timeslice: fi}]
			if !ok {
				continue
			}
			w := m.Fine.Weight(fi)
			sum[ci] += p * w
			wsum[ci] += w
			seen[ci] = true
		}
		for ci := range sum {
			if !seen[ci] {
				continue
			}
			v := 0.0
			if wsum[ci] > 0 {
				v = sum[ci] / wsum[ci]
			}
			out[model.CommodityTS{Commodity: c, Timeslice: ci}] = v
		}
	}
	return out
}

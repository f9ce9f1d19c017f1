// Package dispatch allocates a sector's demand across its technologies.
//
// Dispatch is pure: it reads a Request and returns a fresh Result. Each
// timeslice is independent, so timeslices are evaluated concurrently and
// joined before the result is assembled.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"energy-mca/internal/model"
	"energy-mca/internal/technology"

	"golang.org/x/sync/errgroup"
)

// epsilon below which a remaining quantity counts as served.
const epsilon = 1e-12

// PriceFunc returns the price of a commodity in a timeslice.
type PriceFunc func(commodity string, ts int) float64

// Request is the read-only input of one sector dispatch.
type Request struct {
	Sector string
	// Weights holds the fraction of year of every timeslice.
	Weights      []float64
	Technologies []*technology.Technology
	Capacities   technology.Capacities
	// Demand is what this sector must serve, by commodity and timeslice.
	Demand model.CommodityTable
	Prices PriceFunc
}

// Result is the outcome of one dispatch. It is never mutated after return.
type Result struct {
	Sector string
	// Supply is output per technology and timeslice. Only non-zero entries exist.
	Supply map[model.TechTS]float64
	// Consumption is input use per technology, commodity and timeslice.
	Consumption map[model.FlowKey]float64
	// Unmet is demand no eligible technology could cover.
	Unmet model.CommodityTable
	// Surplus is must-run output beyond demand.
	Surplus model.CommodityTable
	// Served is the demand that was allocated, i.e. min(demand, supply).
	Served model.CommodityTable
	// MarginalCost is the cost of the last dispatched unit. Absent when no
	// technology could run.
	MarginalCost model.CommodityTable
}

// Inputs totals input consumption per (commodity, timeslice).
func (r *Result) Inputs() model.CommodityTable {
	tbl := model.CommodityTable{}
	for k, v := range r.Consumption {
		tbl.Add(model.CommodityTS{Commodity: k.Commodity, Timeslice: k.Timeslice}, v)
	}
	return tbl
}

// Unmets lists unmet demand as warnings, ordered by commodity then timeslice.
func (r *Result) Unmets() []model.UnmetDemandWarning {
	out := make([]model.UnmetDemandWarning, 0, len(r.Unmet))
	for k, v := range r.Unmet {
		out = append(out, model.UnmetDemandWarning{Sector: r.Sector, Commodity: k.Commodity, Timeslice: k.Timeslice, Quantity: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commodity != out[j].Commodity {
			return out[i].Commodity < out[j].Commodity
		}
		return out[i].Timeslice < out[j].Timeslice
	})
	return out
}

// Dispatcher runs sector dispatch with a ranking rule and a worker bound.
type Dispatcher struct {
	ranker  Ranker
	workers int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRanker sets the priority rule. Default is MeritOrder.
func WithRanker(r Ranker) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.ranker = r
		}
	}
}

// WithWorkers bounds concurrent timeslice evaluation. Values < 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// New builds a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{ranker: MeritOrder{}, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ranker returns the configured priority rule.
func (d *Dispatcher) Ranker() Ranker { return d.ranker }

// partial is one timeslice's share of a Result.
type partial struct {
	supply       map[model.TechTS]float64
	consumption  map[model.FlowKey]float64
	unmet        map[string]float64
	surplus      map[string]float64
	served       map[string]float64
	marginalCost map[string]float64
}

// Dispatch allocates req.Demand across req.Technologies.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	n := len(req.Weights)
	commodities := map[string]bool{}
	for k, v := range req.Demand {
		if k.Timeslice < 0 || k.Timeslice >= n {
			return nil, model.Configf(fmt.Sprintf("demand[%s]", k.Commodity), "timeslice %d out of range [0, %d)", k.Timeslice, n)
		}
		if v < 0 || math.IsNaN(v) {
			return nil, model.Configf(fmt.Sprintf("demand[%s]", k.Commodity), "demand must be >= 0, got %g", v)
		}
		commodities[k.Commodity] = true
	}
	// Must-run output lands as surplus even where nothing is demanded.
	for _, t := range req.Technologies {
		commodities[t.Output] = true
	}
	names := make([]string, 0, len(commodities))
	for c := range commodities {
		names = append(names, c)
	}
	sort.Strings(names)

	prices := req.Prices
	if prices == nil {
		prices = func(string, int) float64 { return 0 }
	}

	parts := make([]partial, n)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for ts := 0; ts < n; ts++ {
		ts := ts
		g.Go(func() error {
			parts[ts] = d.timeslice(req, names, prices, ts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Sector:       req.Sector,
		Supply:       map[model.TechTS]float64{},
		Consumption:  map[model.FlowKey]float64{},
		Unmet:        model.CommodityTable{},
		Surplus:      model.CommodityTable{},
		Served:       model.CommodityTable{},
		MarginalCost: model.CommodityTable{},
	}
	for ts, p := range parts {
		for k, v := range p.supply {
			res.Supply[k] = v
		}
		for k, v := range p.consumption {
			res.Consumption[k] = v
		}
		for c, v := range p.unmet {
			res.Unmet[model.CommodityTS{Commodity: c, Timeslice: ts}] = v
		}
		for c, v := range p.surplus {
			res.Surplus[model.CommodityTS{Commodity: c, Timeslice: ts}] = v
		}
		for c, v := range p.served {
			res.Served[model.CommodityTS{Commodity: c, Timeslice: ts}] = v
		}
		for c, v := range p.marginalCost {
			res.MarginalCost[model.CommodityTS{Commodity: c, Timeslice: ts}] = v
		}
	}
	return res, nil
}

func (d *Dispatcher) timeslice(req Request, commodities []string, prices PriceFunc, ts int) partial {
	p := partial{
		supply:       map[model.TechTS]float64{},
		consumption:  map[model.FlowKey]float64{},
		unmet:        map[string]float64{},
		surplus:      map[string]float64{},
		served:       map[string]float64{},
		marginalCost: map[string]float64{},
	}
	weight := req.Weights[ts]
	price := func(c string) float64 { return prices(c, ts) }

	for _, c := range commodities {
		demand := req.Demand[model.CommodityTS{Commodity: c, Timeslice: ts}]
		remaining := demand
		marginal := math.Inf(-1)
		var eligible []Candidate

		for _, t := range req.Technologies {
			if t.Output != c {
				continue
			}
			head := t.Headroom(req.Capacities[t.Key()], ts, weight)
			if head <= 0 {
				// A zero utilization factor removes the technology from this
				// timeslice whatever its cost or capacity.
				continue
			}
			cost := t.MarginalCost(price)
			if t.MustRun(ts) {
				p.record(t, ts, head)
				remaining -= head
				marginal = math.Max(marginal, cost)
				continue
			}
			eligible = append(eligible, Candidate{Tech: t, Cost: cost, Headroom: head})
		}

		for _, cand := range d.ranker.Rank(ts, eligible) {
			if remaining <= epsilon {
				break
			}
			out := math.Min(remaining, cand.Headroom)
			p.record(cand.Tech, ts, out)
			remaining -= out
			marginal = math.Max(marginal, cand.Cost)
		}

		switch {
		case remaining > epsilon*math.Max(1, demand):
			p.unmet[c] = remaining
		case remaining < -epsilon:
			p.surplus[c] = -remaining
		}
		if served := demand - math.Max(remaining, 0); served > 0 {
			p.served[c] = served
		}
		if math.IsInf(marginal, -1) && len(eligible) > 0 {
			// Nothing ran (no demand); the cheapest eligible sets the price.
			marginal = d.ranker.Rank(ts, eligible)[0].Cost
		}
		if !math.IsInf(marginal, -1) {
			p.marginalCost[c] = marginal
		}
	}
	return p
}

func (p *partial) record(t *technology.Technology, ts int, out float64) {
	if out <= 0 {
		return
	}
	p.supply[model.TechTS{Technology: t.Name, Timeslice: ts}] += out
	for c, q := range t.Inputs {
		if q > 0 {
			p.consumption[model.FlowKey{Technology: t.Name, Commodity: c, Timeslice: ts}] += q * out
		}
	}
}

// Package planner decides capacity between simulation years.
//
// A plan retires vintages whose lifetime has elapsed, then walks the sector
// graph consumers first and invests in the cheapest eligible technology until
// each sector can serve its projected demand or runs out of build allowance.
package planner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"energy-mca/internal/dispatch"
	"energy-mca/internal/model"
	"energy-mca/internal/sector"
	"energy-mca/internal/technology"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"
)

// epsilon below which a shortfall is considered closed.
const epsilon = 1e-9

// Request is the input of one planning step.
type Request struct {
	// Year the new capacity is available in.
	Year int
	// Years since the last plan. Build rates are per year.
	Years    int
	Weights  []float64
	Registry *technology.Registry
	Graph    *sector.Graph
	// Stock is mutated in place: retirements and additions.
	Stock *technology.Stock
	// Demand is exogenous demand for Year.
	Demand model.CommodityTable
	// Prices are the last cleared prices.
	Prices model.CommodityTable
	// Previous is each sector's cleared input use, used for consumers not yet
	// planned in this pass.
	Previous map[string]model.CommodityTable
}

// Plan is the outcome of one planning step.
type Plan struct {
	Year    int
	Retired map[model.TechKey]float64
	Added   map[model.TechKey]float64
	// Shortfall is projected demand no eligible technology could be built for.
	Shortfall []model.UnmetDemandWarning
}

// AddedTotal sums the capacity added in a sector.
func (p *Plan) AddedTotal(sector string) float64 {
	sum := 0.0
	for k, v := range p.Added {
		if k.Sector == sector {
			sum += v
		}
	}
	return sum
}

// Planner sizes new capacity.
type Planner struct {
	dispatcher *dispatch.Dispatcher
	log        logger.Logger
	metrics    *metrics.Manager
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics sets the metrics manager. Nil disables metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Planner) { p.metrics = m }
}

// New builds a Planner that projects dispatch with d.
func New(d *dispatch.Dispatcher, opts ...Option) *Planner {
	if d == nil {
		d = dispatch.New()
	}
	p := &Planner{dispatcher: d, log: logger.Named("planner"), metrics: metrics.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// candidate is a technology that may receive new capacity.
type candidate struct {
	tech      *technology.Technology
	factor    float64
	cost      float64
	allowance float64
}

// Plan retires and invests for req.Year.
func (pl *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	if req.Stock == nil || req.Registry == nil || req.Graph == nil {
		return nil, fmt.Errorf("planner: stock, registry and graph are required")
	}
	years := req.Years
	if years < 1 {
		years = 1
	}

	plan := &Plan{
		Year:    req.Year,
		Retired: req.Stock.Retire(req.Year, req.Registry),
		Added:   map[model.TechKey]float64{},
	}
	caps := req.Stock.Snapshot()
	priceOf := func(c string, ts int) float64 { return req.Prices[model.CommodityTS{Commodity: c, Timeslice: ts}] }

	planned := map[string]model.CommodityTable{}
	for _, sec := range req.Graph.Order() {
		demand := pl.sectorDemand(req, sec, planned)
		techs := req.Registry.Sector(sec)

		unmet, err := pl.shortfall(ctx, req, sec, techs, caps, demand, priceOf)
		if err != nil {
			return nil, err
		}
		blocked := map[model.CommodityTS]bool{}
		for guard := 0; guard < 4*(len(techs)+1)*(len(demand)+1); guard++ {
			k, qty, ok := largest(unmet, blocked)
			if !ok {
				break
			}
			best, found := pl.cheapest(techs, k, req, caps, plan.Added, years, priceOf)
			if !found {
				blocked[k] = true
				continue
			}
			need := best.tech.CapacityFor(qty, k.Timeslice, req.Weights[k.Timeslice])
			add := math.Min(need, best.allowance)
			caps[best.tech.Key()] += add
			plan.Added[best.tech.Key()] += add

			if unmet, err = pl.shortfall(ctx, req, sec, techs, caps, demand, priceOf); err != nil {
				return nil, err
			}
		}

		// Consumption of the projected dispatch feeds upstream sectors.
		res, err := pl.dispatcher.Dispatch(ctx, dispatch.Request{
			Sector: sec, Weights: req.Weights, Technologies: techs,
			Capacities: caps, Demand: demand, Prices: priceOf,
		})
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", sec, err)
		}
		planned[sec] = res.Inputs()
		plan.Shortfall = append(plan.Shortfall, res.Unmets()...)
	}

	for _, k := range sortedKeys(plan.Added) {
		req.Stock.Install(k, req.Year, plan.Added[k])
	}
	for _, sec := range req.Registry.Sectors() {
		retired := 0.0
		for k, v := range plan.Retired {
			if k.Sector == sec {
				retired += v
			}
		}
		added := plan.AddedTotal(sec)
		pl.metrics.RecordCapacityChange(sec, added, retired)
		if added > 0 || retired > 0 {
			pl.log.Info(ctx, "capacity planned",
				logger.Int("year", req.Year),
				logger.String("sector", sec),
				logger.Float64("added", added),
				logger.Float64("retired", retired),
			)
		}
	}
	for _, w := range plan.Shortfall {
		pl.log.Warn(ctx, "projected shortfall",
			logger.Int("year", req.Year),
			logger.String("sector", w.Sector),
			logger.String("commodity", w.Commodity),
			logger.Int("timeslice", w.Timeslice),
			logger.Float64("quantity", w.Quantity),
		)
	}
	return plan, nil
}

func (pl *Planner) sectorDemand(req Request, sec string, planned map[string]model.CommodityTable) model.CommodityTable {
	demand := model.CommodityTable{}
	for _, c := range req.Registry.Outputs(sec) {
		for ts := range req.Weights {
			k := model.CommodityTS{Commodity: c, Timeslice: ts}
			demand.Add(k, req.Demand[k])
		}
	}
	for _, other := range append(req.Graph.Downstream(sec), sec) {
		src, ok := planned[other]
		if !ok {
			src = req.Previous[other]
		}
		for k, v := range src {
			if prod, _ := req.Graph.Producer(k.Commodity); prod == sec {
				demand.Add(k, v)
			}
		}
	}
	return demand
}

func (pl *Planner) shortfall(ctx context.Context, req Request, sec string, techs []*technology.Technology, caps technology.Capacities, demand model.CommodityTable, priceOf dispatch.PriceFunc) (model.CommodityTable, error) {
	res, err := pl.dispatcher.Dispatch(ctx, dispatch.Request{
		Sector: sec, Weights: req.Weights, Technologies: techs,
		Capacities: caps, Demand: demand, Prices: priceOf,
	})
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", sec, err)
	}
	return res.Unmet, nil
}

// cheapest picks the technology with the lowest cost per deliverable unit in
// timeslice k: fixed cost spread over what one capacity unit delivers there,
// plus marginal cost. Ties prefer the higher utilization factor, then name.
func (pl *Planner) cheapest(techs []*technology.Technology, k model.CommodityTS, req Request, caps technology.Capacities, added map[model.TechKey]float64, years int, priceOf dispatch.PriceFunc) (candidate, bool) {
	var cands []candidate
	for _, t := range techs {
		if t.Output != k.Commodity {
			continue
		}
		f := t.Factor(k.Timeslice)
		if f <= 0 {
			continue
		}
		allowance := t.MaxBuildRate*float64(years) - added[t.Key()]
		if t.MaxCapacity > 0 {
			allowance = math.Min(allowance, t.MaxCapacity-caps[t.Key()])
		}
		if allowance <= epsilon {
			continue
		}
		mc := t.MarginalCost(func(c string) float64 { return priceOf(c, k.Timeslice) })
		cands = append(cands, candidate{
			tech:      t,
			factor:    f,
			cost:      t.FixedCost/(t.CapacityToActivity*f) + mc,
			allowance: allowance,
		})
	}
	if len(cands) == 0 {
		return candidate{}, false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.cost != b.cost {
			return a.cost < b.cost
		}
		if a.factor != b.factor {
			return a.factor > b.factor
		}
		return a.tech.Name < b.tech.Name
	})
	return cands[0], true
}

// largest returns the biggest open shortfall. Ties go to the lower commodity
// name, then the lower timeslice.
func largest(unmet model.CommodityTable, blocked map[model.CommodityTS]bool) (model.CommodityTS, float64, bool) {
	var (
		best  model.CommodityTS
		qty   float64
		found bool
	)
	for k, v := range unmet {
		if blocked[k] || v <= epsilon {
			continue
		}
		if !found || v > qty || (v == qty && less(k, best)) {
			best, qty, found = k, v, true
		}
	}
	return best, qty, found
}

func less(a, b model.CommodityTS) bool {
	if a.Commodity != b.Commodity {
		return a.Commodity < b.Commodity
	}
	return a.Timeslice < b.Timeslice
}

func sortedKeys(m map[model.TechKey]float64) []model.TechKey {
	out := make([]model.TechKey, 0, len(m))
	for k := range m {
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

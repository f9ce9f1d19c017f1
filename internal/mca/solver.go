// Package mca clears commodity markets across sectors and simulation years.
//
// Each year is a fixed-point iteration. A round dispatches every sector in
// sector-graph order at the current prices, then moves every endogenous price
// a damped step toward its clearing target. A year converges once enough
// consecutive rounds stay within tolerance.
package mca

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"energy-mca/internal/dispatch"
	"energy-mca/internal/model"
	"energy-mca/internal/sector"
	"energy-mca/internal/technology"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("energy-mca/mca")

// Problem is the read-only input of one year's clearing.
type Problem struct {
	Year       int
	Weights    []float64
	Registry   *technology.Registry
	Graph      *sector.Graph
	Capacities technology.Capacities
	// Demand is exogenous final demand by commodity and timeslice.
	Demand model.CommodityTable
	// Prices seeds endogenous prices and fixes exogenous ones.
	Prices model.CommodityTable
}

func (p *Problem) validate() error {
	switch {
	case len(p.Weights) == 0:
		return model.Configf("timeslices", "no timeslices")
	case p.Registry == nil:
		return model.Configf("sectors", "no technology registry")
	case p.Graph == nil:
		return model.Configf("sectors", "no sector graph")
	case p.Registry.Timeslices() != len(p.Weights):
		return model.Configf("timeslices", "registry has %d timeslices, problem has %d", p.Registry.Timeslices(), len(p.Weights))
	}
	return nil
}

// Solver clears one year at a time. It holds no per-year state and is safe
// to reuse.
type Solver struct {
	settings   Settings
	dispatcher *dispatch.Dispatcher
	log        logger.Logger
	metrics    *metrics.Manager
}

// Option configures a Solver or Engine.
type Option func(*options)

type options struct {
	log     logger.Logger
	metrics *metrics.Manager
}

// WithLogger sets the logger. Default is the global logger named "mca".
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics sets the metrics manager. Nil disables metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{log: logger.Named("mca"), metrics: metrics.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSolver validates settings and builds a Solver.
func NewSolver(settings Settings, opts ...Option) (*Solver, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Solver{
		settings: settings,
		dispatcher: dispatch.New(
			dispatch.WithRanker(dispatch.NewRanker(settings.Ranker, settings.DispatchOrder)),
			dispatch.WithWorkers(settings.Workers),
		),
		log:     o.log,
		metrics: o.metrics,
	}, nil
}

// Settings returns the solver constants.
func (s *Solver) Settings() Settings { return s.settings }

// Dispatcher returns the dispatcher the solver runs sectors with.
func (s *Solver) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Clear iterates one year to a terminal status. Non-convergence is reported
// through YearResult.Status, never as an error; errors are reserved for
// invalid input.
func (s *Solver) Clear(ctx context.Context, p *Problem) (*YearResult, error) {
	ctx, span := tracer.Start(ctx, "mca.Clear", trace.WithAttributes(attribute.Int("mca.year", p.Year)))
	defer span.End()

	if err := p.validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	st := newStatus()
	endogenous := p.Graph.Endogenous()
	prices := s.seedPrices(p, endogenous)
	prev := map[string]model.CommodityTable{}

	res := &YearResult{Year: p.Year, Capacities: p.Capacities}
	s.log.Info(ctx, "clearing year", logger.Int("year", p.Year), logger.Int("sectors", len(p.Graph.Order())))

	calm := 0
	for round := 1; ; round++ {
		if err := st.to(model.StatusIterating); err != nil {
			return nil, err
		}
		rec, err := s.round(ctx, p, round, prices, prev)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("year %d round %d: %w", p.Year, round, err)
		}
		next := s.updatePrices(p, endogenous, rec)
		rec.Residual = math.Max(rec.Mismatch, rec.PriceChange)

		res.Final = rec
		res.Rounds = round
		res.Residual = rec.Residual
		if s.settings.KeepRounds {
			res.History = append(res.History, rec)
		}
		s.metrics.RecordRound(rec.Residual)
		s.log.Debug(ctx, "round",
			logger.Int("year", p.Year),
			logger.Int("round", round),
			logger.Float64("mismatch", rec.Mismatch),
			logger.Float64("price_change", rec.PriceChange),
		)

		if rec.Residual <= s.settings.Tolerance {
			calm++
		} else {
			calm = 0
		}
		if calm >= s.settings.CalmRounds {
			_ = st.to(model.StatusConverged)
			break
		}
		if round >= s.settings.MaxRounds {
			_ = st.to(model.StatusMaxIterationsExceeded)
			break
		}
		prices = next
		prev = consumption(rec)
	}

	res.Status = st.current
	res.Warnings = s.warnings(res.Final)
	s.metrics.RecordYear(string(res.Status), res.Rounds)
	for _, c := range endogenous {
		s.metrics.SetUnmetDemand(c, unmetOf(res.Warnings, c))
	}

	span.SetAttributes(
		attribute.String("mca.status", string(res.Status)),
		attribute.Int("mca.rounds", res.Rounds),
		attribute.Float64("mca.residual", res.Residual),
	)
	if res.Converged() {
		span.SetStatus(codes.Ok, "")
		s.log.Info(ctx, "year cleared", logger.Int("year", p.Year), logger.Int("rounds", res.Rounds), logger.Float64("residual", res.Residual))
	} else {
		span.SetStatus(codes.Error, "max iterations exceeded")
		s.log.Warn(ctx, "year did not converge", logger.Int("year", p.Year), logger.Int("rounds", res.Rounds), logger.Float64("residual", res.Residual))
	}
	for _, w := range res.Warnings {
		s.log.Warn(ctx, "unmet demand",
			logger.Int("year", p.Year),
			logger.String("sector", w.Sector),
			logger.String("commodity", w.Commodity),
			logger.Int("timeslice", w.Timeslice),
			logger.Float64("quantity", w.Quantity),
			logger.Any("rationed", w.Rationed),
		)
	}
	return res, nil
}

// seedPrices copies the given prices and clamps every endogenous entry.
func (s *Solver) seedPrices(p *Problem, endogenous []string) model.CommodityTable {
	prices := p.Prices.Clone()
	for _, c := range endogenous {
		for ts := range p.Weights {
			k := model.CommodityTS{Commodity: c, Timeslice: ts}
			prices[k] = s.settings.clamp(prices[k])
		}
	}
	return prices
}

// round dispatches every sector once at fixed prices. Demand a consumer has
// not yet placed this round (cycles) is taken from the previous round.
func (s *Solver) round(ctx context.Context, p *Problem, n int, prices model.CommodityTable, prev map[string]model.CommodityTable) (*RoundRecord, error) {
	ctx, span := tracer.Start(ctx, "mca.round", trace.WithAttributes(attribute.Int("mca.round", n)))
	defer span.End()

	rec := &RoundRecord{
		Round:   n,
		Prices:  prices,
		Demand:  model.CommodityTable{},
		Faced:   model.CommodityTable{},
		Sectors: map[string]*dispatch.Result{},
	}
	priceOf := func(c string, ts int) float64 { return prices[model.CommodityTS{Commodity: c, Timeslice: ts}] }

	done := map[string]model.CommodityTable{}
	for _, sec := range p.Graph.Order() {
		demand := s.sectorDemand(p, sec, done, prev)
		start := time.Now()
		techs := p.Registry.Sector(sec)
		out, err := s.dispatcher.Dispatch(ctx, dispatch.Request{
			Sector:       sec,
			Weights:      p.Weights,
			Technologies: techs,
			Capacities:   p.Capacities,
			Demand:       demand,
			Prices:       priceOf,
		})
		if err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", sec, err)
		}
		s.metrics.ObserveDispatch(sec, time.Since(start))

		rec.Sectors[sec] = out
		done[sec] = out.Inputs()
		for k, v := range demand {
			rec.Faced[k] = v
		}
	}

	// Demand as it stands once every consumer has run.
	for k, v := range p.Demand {
		if _, ok := p.Graph.Producer(k.Commodity); ok {
			rec.Demand.Add(k, v)
		}
	}
	for _, sec := range p.Graph.Sectors() {
		for k, v := range done[sec] {
			if _, ok := p.Graph.Producer(k.Commodity); ok {
				rec.Demand.Add(k, v)
			}
		}
	}
	for _, c := range p.Graph.Endogenous() {
		for ts := range p.Weights {
			k := model.CommodityTS{Commodity: c, Timeslice: ts}
			rec.Mismatch = math.Max(rec.Mismatch, s.settings.relative(rec.Demand[k], rec.Faced[k]))
		}
	}
	return rec, nil
}

// sectorDemand assembles the demand sec must serve: exogenous demand for its
// outputs plus what its consumers draw.
func (s *Solver) sectorDemand(p *Problem, sec string, done, prev map[string]model.CommodityTable) model.CommodityTable {
	demand := model.CommodityTable{}
	for _, c := range p.Registry.Outputs(sec) {
		for ts := range p.Weights {
			k := model.CommodityTS{Commodity: c, Timeslice: ts}
			demand.Add(k, p.Demand[k])
		}
	}
	consumers := append(p.Graph.Downstream(sec), sec)
	for _, other := range consumers {
		src, ok := done[other]
		if !ok {
			src = prev[other]
		}
		for k, v := range src {
			if prod, _ := p.Graph.Producer(k.Commodity); prod == sec {
				demand.Add(k, v)
			}
		}
	}
	return demand
}

// updatePrices moves every endogenous price a damped step toward its target:
// the marginal cost of the last dispatched unit, or the ceiling where demand
// went unmet. A demand gap left by a cycle scales the step by the signed
// relative gap. Prices within tolerance of their target snap onto it.
func (s *Solver) updatePrices(p *Problem, endogenous []string, rec *RoundRecord) model.CommodityTable {
	next := rec.Prices.Clone()
	d := s.settings.Damping
	for _, c := range endogenous {
		prod, _ := p.Graph.Producer(c)
		out := rec.Sectors[prod]
		for ts := range p.Weights {
			k := model.CommodityTS{Commodity: c, Timeslice: ts}
			price := rec.Prices[k]
			target := price
			if out.Unmet[k] > 0 {
				target = s.settings.PriceCeiling
			} else if mc, ok := out.MarginalCost[k]; ok {
				target = mc
			}
			target = s.settings.clamp(target)

			np := price + d*(target-price)
			if gap := rec.Demand[k] - rec.Faced[k]; gap != 0 && np > 0 {
				norm := math.Max(math.Max(rec.Demand[k], rec.Faced[k]), s.settings.AbsoluteFloor)
				np *= 1 + d*gap/norm
			}
			np = s.settings.clamp(np)
			if math.Abs(np-target) <= s.settings.Tolerance*math.Max(math.Abs(target), s.settings.AbsoluteFloor) {
				np = target
			}
			next[k] = np
			rec.PriceChange = math.Max(rec.PriceChange, s.settings.relative(np, price))
		}
	}
	return next
}

// warnings lists the final round's unmet demand. A shortfall whose price sits
// at the ceiling is rationed: no price move could clear it this year.
func (s *Solver) warnings(rec *RoundRecord) []model.UnmetDemandWarning {
	var out []model.UnmetDemandWarning
	for _, sec := range sortedSectors(rec.Sectors) {
		for _, w := range rec.Sectors[sec].Unmets() {
			k := model.CommodityTS{Commodity: w.Commodity, Timeslice: w.Timeslice}
			w.Rationed = rec.Prices[k] >= s.settings.PriceCeiling
			out = append(out, w)
		}
	}
	return out
}

func consumption(rec *RoundRecord) map[string]model.CommodityTable {
	out := make(map[string]model.CommodityTable, len(rec.Sectors))
	for s, r := range rec.Sectors {
		out[s] = r.Inputs()
	}
	return out
}

func sortedSectors(m map[string]*dispatch.Result) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func unmetOf(ws []model.UnmetDemandWarning, c string) float64 {
	sum := 0.0
	for _, w := range ws {
		if w.Commodity == c {
			sum += w.Quantity
		}
	}
	return sum
}

package mca

import (
	"context"
	"fmt"
	"sort"
	"time"

	"energy-mca/internal/model"
	"energy-mca/internal/planner"
	"energy-mca/internal/sector"
	"energy-mca/internal/technology"
	"energy-mca/internal/timeslice"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Model is everything a multi-year run consumes.
type Model struct {
	Name       string
	Years      []int
	Timeslices *timeslice.Set
	Registry   *technology.Registry
	// Stock is the capacity installed before the first year. The engine
	// works on a copy.
	Stock *technology.Stock
	// Demand is exogenous demand per year.
	Demand map[int]model.CommodityTable
	// Prices seed the first year and fix exogenous commodities throughout.
	Prices model.CommodityTable
}

// Validate checks the model is runnable.
func (m *Model) Validate() error {
	switch {
	case len(m.Years) == 0:
		return model.Configf("years", "at least one year is required")
	case m.Timeslices == nil || m.Timeslices.Len() == 0:
		return model.Configf("timeslices", "no timeslices")
	case m.Registry == nil:
		return model.Configf("sectors", "no technologies")
	}
	for i := 1; i < len(m.Years); i++ {
		if m.Years[i] <= m.Years[i-1] {
			return model.Configf("years", "years must be strictly increasing, got %d after %d", m.Years[i], m.Years[i-1])
		}
	}
	return nil
}

// Run is the outcome of a multi-year simulation.
type Run struct {
	ID        uuid.UUID
	Model     string
	StartedAt time.Time
	Duration  time.Duration
	Years     []*YearResult
	Plans     []*planner.Plan
	// Aborted is set when a year failed to converge under the abort policy.
	Aborted bool
	// Order is the sector dispatch order used by every year.
	Order []string
}

// Converged reports whether every cleared year converged.
func (r *Run) Converged() bool {
	for _, y := range r.Years {
		if !y.Converged() {
			return false
		}
	}
	return true
}

// Year returns the result of one simulation year.
func (r *Run) Year(year int) (*YearResult, bool) {
	i := sort.Search(len(r.Years), func(i int) bool { return r.Years[i].Year >= year })
	if i < len(r.Years) && r.Years[i].Year == year {
		return r.Years[i], true
	}
	return nil, false
}

// Engine runs simulations year by year. Years are strictly sequential: each
// year's capacity and prices seed the next.
type Engine struct {
	settings Settings
	solver   *Solver
	planner  *planner.Planner
	log      logger.Logger
	metrics  *metrics.Manager
}

// New builds an Engine.
func New(settings Settings, opts ...Option) (*Engine, error) {
	solver, err := NewSolver(settings, opts...)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Engine{
		settings: settings,
		solver:   solver,
		planner:  planner.New(solver.Dispatcher(), planner.WithLogger(o.log.Named("planner")), planner.WithMetrics(o.metrics)),
		log:      o.log,
		metrics:  o.metrics,
	}, nil
}

// Run clears every year of m. A year that exhausts its rounds is kept; under
// the abort policy the run stops there and returns the partial run together
// with an error wrapping model.ErrNonConvergence.
func (e *Engine) Run(ctx context.Context, m *Model) (*Run, error) {
	if m == nil {
		return nil, model.Configf("", "model is nil")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	graph, err := sector.NewGraph(m.Registry, sector.Options{AllowCycles: e.settings.AllowCycles})
	if err != nil {
		e.metrics.RecordSimulation("invalid")
		return nil, err
	}

	run := &Run{ID: uuid.New(), Model: m.Name, StartedAt: time.Now(), Order: graph.Order()}
	ctx, span := tracer.Start(ctx, "mca.Run", trace.WithAttributes(
		attribute.String("mca.run_id", run.ID.String()),
		attribute.Int("mca.years", len(m.Years)),
	))
	defer span.End()

	log := e.log
	log.Info(ctx, "simulation started",
		logger.String("run_id", run.ID.String()),
		logger.String("model", m.Name),
		logger.Any("order", run.Order),
		logger.Int("timeslices", m.Timeslices.Len()),
	)

	stock := technology.NewStock()
	if m.Stock != nil {
		stock = m.Stock.Clone()
	}
	weights := m.Timeslices.Weights()
	prices := m.Prices.Clone()

	for i, year := range m.Years {
		var prev *YearResult
		if i > 0 {
			prev = run.Years[i-1]
			plan, err := e.planner.Plan(ctx, planner.Request{
				Year:     year,
				Years:    year - m.Years[i-1],
				Weights:  weights,
				Registry: m.Registry,
				Graph:    graph,
				Stock:    stock,
				Demand:   m.Demand[year],
				Prices:   prev.Prices(),
				Previous: prev.Consumption(),
			})
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return run, fmt.Errorf("plan %d: %w", year, err)
			}
			run.Plans = append(run.Plans, plan)
			prices = carryPrices(prev.Prices(), m.Prices)
		}

		res, err := e.solver.Clear(ctx, &Problem{
			Year:       year,
			Weights:    weights,
			Registry:   m.Registry,
			Graph:      graph,
			Capacities: stock.Snapshot(),
			Demand:     m.Demand[year],
			Prices:     prices,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.metrics.RecordSimulation("failed")
			return run, err
		}
		run.Years = append(run.Years, res)

		if !res.Converged() && e.settings.OnNonConvergence == PolicyAbort {
			run.Aborted = true
			run.Duration = time.Since(run.StartedAt)
			err := fmt.Errorf("year %d after %d rounds (residual %.3g): %w", year, res.Rounds, res.Residual, model.ErrNonConvergence)
			span.RecordError(err)
			span.SetStatus(codes.Error, "aborted")
			e.metrics.RecordSimulation("aborted")
			log.Error(ctx, "simulation aborted", logger.String("run_id", run.ID.String()), logger.Error(err))
			return run, err
		}
	}

	run.Duration = time.Since(run.StartedAt)
	outcome := "converged"
	if !run.Converged() {
		outcome = "approximate"
	}
	e.metrics.RecordSimulation(outcome)
	span.SetStatus(codes.Ok, "")
	log.Info(ctx, "simulation finished",
		logger.String("run_id", run.ID.String()),
		logger.String("outcome", outcome),
		logger.Int("years", len(run.Years)),
		logger.Any("duration", run.Duration.String()),
	)
	return run, nil
}

// carryPrices seeds a year with last year's cleared prices while keeping
// exogenous prices as given.
func carryPrices(cleared, given model.CommodityTable) model.CommodityTable {
	out := cleared.Clone()
	for k, v := range given {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

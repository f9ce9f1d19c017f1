package mca

import (
	"context"
	"errors"
	"testing"

	"energy-mca/internal/model"
	"energy-mca/internal/technology"
	"energy-mca/internal/timeslice"
	"energy-mca/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	windKey = model.TechKey{Sector: "power", Technology: "windturbine"}
	gasKey  = model.TechKey{Sector: "power", Technology: "gasCCGT"}
)

func twoYearModel(t *testing.T) *Model {
	t.Helper()
	wind := tech("power", "windturbine", "electricity", 0.5, nil)
	wind.MaxBuildRate, wind.FixedCost = 10, 1
	gas := tech("power", "gasCCGT", "electricity", 1, map[string]float64{"gas": 2})
	gas.MaxBuildRate, gas.FixedCost = 10, 1

	reg, err := technology.NewRegistry(1, wind, gas)
	require.NoError(t, err)
	stock := technology.NewStock()
	stock.Install(windKey, 2010, 4)
	stock.Install(gasKey, 2010, 20)

	return &Model{
		Name:       "power-only",
		Years:      []int{2020, 2025},
		Timeslices: timeslice.Single("all-year"),
		Registry:   reg,
		Stock:      stock,
		Demand: map[int]model.CommodityTable{
			2020: {key("electricity"): 10},
			2025: {key("electricity"): 30},
		},
		Prices: model.CommodityTable{key("gas"): 2},
	}
}

func engine(t *testing.T, mutate func(*Settings)) *Engine {
	t.Helper()
	s := DefaultSettings()
	if mutate != nil {
		mutate(&s)
	}
	e, err := New(s, WithLogger(logger.Nop()), WithMetrics(nil))
	require.NoError(t, err)
	return e
}

func TestEngine_PlansBetweenYears(t *testing.T) {
	m := twoYearModel(t)
	run, err := engine(t, nil).Run(context.Background(), m)
	require.NoError(t, err)

	require.Len(t, run.Years, 2)
	require.Len(t, run.Plans, 1)
	assert.True(t, run.Converged())
	assert.False(t, run.Aborted)
	assert.Equal(t, []string{"power"}, run.Order)
	assert.NotEmpty(t, run.ID.String())

	// 30 demanded against 24 installed: the cheaper wind fills the gap
	plan := run.Plans[0]
	assert.Equal(t, 2025, plan.Year)
	assert.InDelta(t, 6.0, plan.Added[windKey], 1e-9)
	assert.Zero(t, plan.Added[gasKey])

	y, ok := run.Year(2025)
	require.True(t, ok)
	assert.InDelta(t, 10.0, y.Capacities[windKey], 1e-9)
	assert.InDelta(t, 5.0, y.Prices()[key("electricity")], 1e-9)
	assert.Empty(t, y.Warnings)

	_, ok = run.Year(2021)
	assert.False(t, ok)

	// the model's own stock is untouched
	assert.InDelta(t, 4.0, m.Stock.Capacity(windKey), 1e-9)
}

func TestEngine_NonConvergencePolicy(t *testing.T) {
	m := twoYearModel(t)

	run, err := engine(t, func(s *Settings) { s.MaxRounds = 1 }).Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, run.Years, 2)
	assert.False(t, run.Converged())
	assert.Equal(t, model.StatusMaxIterationsExceeded, run.Years[0].Status)

	run, err = engine(t, func(s *Settings) {
		s.MaxRounds = 1
		s.OnNonConvergence = PolicyAbort
	}).Run(context.Background(), m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNonConvergence))
	require.NotNil(t, run)
	assert.True(t, run.Aborted)
	require.Len(t, run.Years, 1)
	// the partial state is still reported
	assert.NotNil(t, run.Years[0].Final)
}

func TestEngine_InvalidModel(t *testing.T) {
	e := engine(t, nil)

	_, err := e.Run(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	m := twoYearModel(t)
	m.Years = []int{2025, 2020}
	_, err = e.Run(context.Background(), m)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	m = twoYearModel(t)
	m.Timeslices = nil
	_, err = e.Run(context.Background(), m)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	_, err = New(Settings{})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestCarryPrices(t *testing.T) {
	cleared := model.CommodityTable{key("electricity"): 7}
	given := model.CommodityTable{key("electricity"): 1, key("gas"): 2}
	out := carryPrices(cleared, given)
	assert.Equal(t, 7.0, out[key("electricity")])
	assert.Equal(t, 2.0, out[key("gas")])
	assert.Equal(t, 7.0, cleared[key("electricity")])
}

package technology

import (
	"math"
	"testing"

	"energy-mca/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gas(n int) *Technology {
	return &Technology{
		Name:               "gasCCGT",
		Sector:             "power",
		Output:             "electricity",
		Inputs:             map[string]float64{"gas": 1.67, "CO2f": 0.09},
		CapacityToActivity: 31.54,
		MaxBuildRate:       10,
		Lifetime:           35,
		FixedCost:          2.5,
		VariableCost:       0.5,
		Utilization:        Uniform(n, 0.9),
	}
}

func TestTechnology_Headroom(t *testing.T) {
	g := gas(2)
	g.Utilization[1].Factor = 0

	assert.InDelta(t, 2*31.54*0.9*0.5, g.Headroom(2, 0, 0.5), 1e-12)
	assert.Zero(t, g.Headroom(2, 1, 0.5))
	assert.Zero(t, g.Headroom(0, 0, 0.5))
	assert.Zero(t, g.Headroom(2, 7, 0.5))

	assert.InDelta(t, 2.0, g.CapacityFor(2*31.54*0.9*0.5, 0, 0.5), 1e-12)
	assert.True(t, math.IsInf(g.CapacityFor(1, 1, 0.5), 1))
}

func TestTechnology_MarginalCost(t *testing.T) {
	g := gas(1)
	prices := map[string]float64{"gas": 2, "CO2f": 10}
	mc := g.MarginalCost(func(c string) float64 { return prices[c] })
	assert.InDelta(t, 0.5+1.67*2+0.09*10, mc, 1e-12)
}

func TestTechnology_Validate(t *testing.T) {
	cases := map[string]func(*Technology){
		"no output":       func(x *Technology) { x.Output = "" },
		"zero c2a":        func(x *Technology) { x.CapacityToActivity = 0 },
		"zero lifetime":   func(x *Technology) { x.Lifetime = 0 },
		"factor above 1":  func(x *Technology) { x.Utilization[0].Factor = 1.5 },
		"negative factor": func(x *Technology) { x.Utilization[0].Factor = -0.1 },
		"short profile":   func(x *Technology) { x.Utilization = x.Utilization[:1] },
		"input is output": func(x *Technology) { x.Inputs["electricity"] = 1 },
		"negative cost":   func(x *Technology) { x.FixedCost = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			g := gas(2)
			mutate(g)
			assert.ErrorIs(t, g.Validate(2), model.ErrConfiguration)
		})
	}
	require.NoError(t, gas(2).Validate(2))
}

func TestRegistry(t *testing.T) {
	wind := &Technology{
		Name: "windturbine", Sector: "power", Output: "electricity",
		CapacityToActivity: 31.54, Lifetime: 25, Utilization: Uniform(2, 1),
	}
	boiler := &Technology{
		Name: "gasboiler", Sector: "residential", Output: "heat",
		Inputs:             map[string]float64{"gas": 1.16},
		CapacityToActivity: 31.54, Lifetime: 10, Utilization: Uniform(2, 1),
	}
	reg, err := NewRegistry(2, wind, gas(2), boiler)
	require.NoError(t, err)

	assert.Equal(t, []string{"power", "residential"}, reg.Sectors())
	power := reg.Sector("power")
	require.Len(t, power, 2)
	assert.Equal(t, "gasCCGT", power[0].Name)
	assert.Equal(t, []string{"electricity"}, reg.Outputs("power"))
	assert.Equal(t, []string{"CO2f", "gas"}, reg.Inputs("power"))
	assert.Len(t, reg.All(), 3)

	got, ok := reg.Get(model.TechKey{Sector: "power", Technology: "windturbine"})
	require.True(t, ok)
	assert.Same(t, wind, got)

	err = reg.Add(gas(2))
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestStock_InstallAndRetire(t *testing.T) {
	reg, err := NewRegistry(1, gas(1))
	require.NoError(t, err)
	key := model.TechKey{Sector: "power", Technology: "gasCCGT"}

	s := NewStock()
	s.Install(key, 1990, 1)
	s.Install(key, 2020, 2)
	s.Install(key, 2020, 0.5)
	s.Install(key, 2021, 0)
	assert.InDelta(t, 3.5, s.Capacity(key), 1e-12)
	assert.Equal(t, []Vintage{{1990, 1}, {2020, 2.5}}, s.Vintages(key))

	frozen := s.Snapshot()
	clone := s.Clone()

	// 1990 + 35 = 2025 is the first year the old vintage is gone.
	retired := s.Retire(2024, reg)
	assert.Empty(t, retired)
	retired = s.Retire(2025, reg)
	assert.InDelta(t, 1.0, retired[key], 1e-12)
	assert.InDelta(t, 2.5, s.Capacity(key), 1e-12)

	assert.InDelta(t, 3.5, frozen[key], 1e-12)
	assert.InDelta(t, 3.5, clone.Capacity(key), 1e-12)

	s.Retire(2060, reg)
	assert.Empty(t, s.Keys())
}

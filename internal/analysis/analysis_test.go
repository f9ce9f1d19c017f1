package analysis

import (
	"testing"

	"energy-mca/internal/results"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePriceStats(t *testing.T) {
	rows := []results.PriceRow{
		{Year: 2020, Commodity: "electricity", Timeslice: 0, Price: 10},
		{Year: 2020, Commodity: "electricity", Timeslice: 1, Price: 30},
		{Year: 2020, Commodity: "electricity", Timeslice: 2, Price: 20},
		{Year: 2020, Commodity: "gas", Timeslice: 0, Price: 2},
		{Year: 2025, Commodity: "electricity", Timeslice: 0, Price: 5},
	}
	stats := ComputePriceStats(rows, []float64{0.5, 0.25, 0.25})
	require.Len(t, stats, 3)

	e := stats[0]
	assert.Equal(t, 2020, e.Year)
	assert.Equal(t, "electricity", e.Commodity)
	assert.Equal(t, 3, e.Count)
	assert.Equal(t, 10.0, e.Min)
	assert.Equal(t, 30.0, e.Max)
	assert.InDelta(t, 0.5*10+0.25*30+0.25*20, e.Mean, 1e-12)
	assert.Equal(t, 10.0, e.P05)
	assert.Equal(t, 30.0, e.P95)
	assert.Equal(t, 20.0, e.Spread)

	assert.Equal(t, "gas", stats[1].Commodity)
	assert.Equal(t, 2025, stats[2].Year)
}

func TestRankBySupply(t *testing.T) {
	rows := []results.FlowRow{
		{Year: 2020, Sector: "power", Technology: "gasCCGT", Commodity: "electricity", Timeslice: 0, Quantity: 1},
		{Year: 2020, Sector: "power", Technology: "gasCCGT", Commodity: "electricity", Timeslice: 1, Quantity: 1},
		{Year: 2020, Sector: "power", Technology: "windturbine", Commodity: "electricity", Timeslice: 0, Quantity: 6},
		{Year: 2020, Sector: "residential", Technology: "heatpump", Commodity: "heat", Timeslice: 0, Quantity: 2},
	}
	ranked := RankBySupply(rows)
	require.Len(t, ranked, 3)
	assert.Equal(t, "windturbine", ranked[0].Technology)
	assert.InDelta(t, 0.75, ranked[0].Share, 1e-12)
	// equal supply: sector order decides
	assert.Equal(t, "gasCCGT", ranked[1].Technology)
	assert.Equal(t, "heatpump", ranked[2].Technology)
	assert.InDelta(t, 1.0, ranked[2].Share, 1e-12)
}

package results

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"energy-mca/internal/dispatch"
	"energy-mca/internal/mca"
	"energy-mca/internal/model"
	"energy-mca/internal/technology"
	"energy-mca/internal/timeslice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) (*mca.Run, *timeslice.Set, *technology.Registry) {
	t.Helper()
	set, err := timeslice.Flatten(timeslice.Definition{
		Levels: []string{"hour"},
		Slices: []timeslice.Node{{Name: "day", Weight: 0.5}, {Name: "night", Weight: 0.5}},
	})
	require.NoError(t, err)

	reg, err := technology.NewRegistry(2,
		&technology.Technology{
			Name: "gasCCGT", Sector: "power", Output: "electricity", Inputs: map[string]float64{"gas": 2},
			CapacityToActivity: 1, Lifetime: 30, Utilization: technology.Uniform(2, 1),
		},
		&technology.Technology{
			Name: "windturbine", Sector: "power", Output: "electricity",
			CapacityToActivity: 1, Lifetime: 25, Utilization: technology.FromFactors(1, 0),
		},
	)
	require.NoError(t, err)

	power := &dispatch.Result{
		Sector: "power",
		Supply: map[model.TechTS]float64{
			{Technology: "windturbine", Timeslice: 0}: 2,
			{Technology: "gasCCGT", Timeslice: 1}:     1.5,
		},
		Consumption: map[model.FlowKey]float64{
			{Technology: "gasCCGT", Commodity: "gas", Timeslice: 1}: 3,
		},
		Surplus: model.CommodityTable{
			{Commodity: "electricity", Timeslice: 0}: 0.5,
		},
	}
	year := &mca.YearResult{
		Year:   2020,
		Status: model.StatusConverged,
		Capacities: technology.Capacities{
			{Sector: "power", Technology: "gasCCGT"}:     3,
			{Sector: "power", Technology: "windturbine"}: 4,
			{Sector: "power", Technology: "retired"}:     0,
		},
		Final: &mca.RoundRecord{
			Prices: model.CommodityTable{
				{Commodity: "electricity", Timeslice: 0}: 0.5,
				{Commodity: "electricity", Timeslice: 1}: 5,
				{Commodity: "gas", Timeslice: 0}:         2,
			},
			Sectors: map[string]*dispatch.Result{"power": power},
		},
	}
	return &mca.Run{Years: []*mca.YearResult{year}}, set, reg
}

func TestFromRun(t *testing.T) {
	run, set, reg := fixture(t)
	tables := FromRun(run, set, reg)

	require.Len(t, tables.Capacity, 2)
	assert.Equal(t, "gasCCGT", tables.Capacity[0].Technology)

	require.Len(t, tables.Supply, 2)
	assert.Equal(t, FlowRow{Year: 2020, Sector: "power", Technology: "gasCCGT", Commodity: "electricity", Timeslice: 1, Slice: "night", Quantity: 1.5}, tables.Supply[0])
	assert.Equal(t, "day", tables.Supply[1].Slice)

	// wind cannot run at night and has no row there
	windRows := tables.SupplyRows(Filter{Technology: "windturbine", Year: 2020, Commodity: "electricity", Sector: "power"})
	require.Len(t, windRows, 1)
	assert.Equal(t, 0, windRows[0].Timeslice)

	require.Len(t, tables.Consumption, 1)
	assert.Equal(t, "gas", tables.Consumption[0].Commodity)

	require.Len(t, tables.Surplus, 1)
	assert.Equal(t, FlowRow{Year: 2020, Sector: "power", Commodity: "electricity", Timeslice: 0, Slice: "day", Quantity: 0.5}, tables.Surplus[0])
	assert.Len(t, tables.SurplusRows(Filter{Sector: "power"}), 1)
	assert.Empty(t, tables.SurplusRows(Filter{Technology: "windturbine"}))
	assert.Len(t, tables.PriceRows(Filter{Commodity: "electricity"}), 2)
	assert.Equal(t, []string{"power"}, tables.Sectors())
	assert.Equal(t, []int{2020}, tables.Years())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSV(t *testing.T) {
	run, set, reg := fixture(t)
	dir := t.TempDir()
	require.NoError(t, WriteCSV(dir, FromRun(run, set, reg)))

	capacity := readCSV(t, filepath.Join(dir, CapacityFile))
	require.Len(t, capacity, 3)
	assert.Equal(t, []string{"year", "sector", "technology", "capacity"}, capacity[0])
	assert.Equal(t, []string{"2020", "power", "gasCCGT", "3.000000"}, capacity[1])

	prices := readCSV(t, filepath.Join(dir, PricesFile))
	assert.Len(t, prices, 4)

	supply := readCSV(t, filepath.Join(dir, "power", SupplyDir, "2020.csv"))
	require.Len(t, supply, 3)
	assert.Equal(t, "supply", supply[0][6])

	consumption := readCSV(t, filepath.Join(dir, "power", ConsumptionDir, "2020.csv"))
	require.Len(t, consumption, 2)
	assert.Equal(t, []string{"2020", "power", "gasCCGT", "gas", "1", "night", "3.000000"}, consumption[1])
}

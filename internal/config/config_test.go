package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"energy-mca/internal/config"
	"energy-mca/internal/model"
	"energy-mca/internal/timeslice"

	"github.com/smartystreets/goconvey/convey"
)

var (
	powerGas  = model.TechKey{Sector: "power", Technology: "gasCCGT"}
	powerWind = model.TechKey{Sector: "power", Technology: "windturbine"}
	heatpump  = model.TechKey{Sector: "residential", Technology: "heatpump"}
)

func heat(ts int) model.CommodityTS { return model.CommodityTS{Commodity: "heat", Timeslice: ts} }
func gas(ts int) model.CommodityTS  { return model.CommodityTS{Commodity: "gas", Timeslice: ts} }

func writeModel(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
years: [2020]
timeslices:
  levels: [hour]
  slices: [{name: day, weight: 1}, {name: night, weight: 1}]
sectors:
  - name: power
    technologies:
      - name: wind
        output: electricity
        lifetime: 20
`

func TestLoad(t *testing.T) {
	convey.Convey("Given the two-sector model on disk", t, func() {
		c, err := config.Load(filepath.Join("testdata", "model.yaml"))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then the technodata file is merged with inline overrides", func() {
			power := c.Sectors[1]
			convey.So(power.Name, convey.ShouldEqual, "power")
			convey.So(power.Technologies, convey.ShouldHaveLength, 2)
			gasCCGT := power.Technologies[0]
			convey.So(gasCCGT.Name, convey.ShouldEqual, "gasCCGT")
			convey.So(gasCCGT.VariableCost, convey.ShouldEqual, 3)
			convey.So(gasCCGT.FixedCost, convey.ShouldEqual, 0.5)
			convey.So(gasCCGT.Inputs["gas"], convey.ShouldEqual, 1.8)
		})

		convey.Convey("Then defaults are applied", func() {
			convey.So(c.Sectors[0].Technologies[0].CapacityToActivity, convey.ShouldEqual, 1)
		})

		convey.Convey("When the model is built", func() {
			m, err := c.Build()
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the timeslices are flattened in declaration order", func() {
				convey.So(m.Timeslices.Names(), convey.ShouldResemble, []string{"winter.day", "winter.night", "summer.day", "summer.night"})
				convey.So(m.Timeslices.Weight(0), convey.ShouldAlmostEqual, 0.25)
			})

			convey.Convey("Then utilization rows are broadcast and later rows win", func() {
				wind, ok := m.Registry.Get(powerWind)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(wind.Utilization.Factors(), convey.ShouldResemble, []float64{0.6, 0.2, 0.6, 0})

				ccgt, _ := m.Registry.Get(powerGas)
				convey.So(ccgt.MustRun(3), convey.ShouldBeTrue)
				convey.So(ccgt.MustRun(2), convey.ShouldBeFalse)

				hp, _ := m.Registry.Get(heatpump)
				convey.So(hp.Utilization.Factors(), convey.ShouldResemble, []float64{1, 1, 1, 1})
			})

			convey.Convey("Then demand merges the file with inline rows", func() {
				convey.So(m.Demand[2020][heat(0)], convey.ShouldAlmostEqual, 10)
				convey.So(m.Demand[2020][heat(3)], convey.ShouldAlmostEqual, 2)
				convey.So(m.Demand[2025][heat(1)], convey.ShouldAlmostEqual, 11)
			})

			convey.Convey("Then prices are resolved per timeslice", func() {
				convey.So(m.Prices[gas(0)], convey.ShouldEqual, 4)
				convey.So(m.Prices[gas(3)], convey.ShouldEqual, 2)
			})

			convey.Convey("Then existing capacity is installed by vintage", func() {
				convey.So(m.Stock.Capacity(powerGas), convey.ShouldEqual, 20)
				convey.So(m.Stock.Capacity(heatpump), convey.ShouldEqual, 40)
			})
		})

		convey.Convey("When the hour level is dropped", func() {
			c.Timeslices.DropLevels = []string{"hour"}
			m, err := c.Build()
			convey.So(err, convey.ShouldBeNil)

			convey.So(m.Timeslices.Names(), convey.ShouldResemble, []string{"winter", "summer"})

			wind, _ := m.Registry.Get(powerWind)
			convey.So(wind.Factor(0), convey.ShouldAlmostEqual, 0.4)
			convey.So(wind.Factor(1), convey.ShouldAlmostEqual, 0.3)

			ccgt, _ := m.Registry.Get(powerGas)
			convey.So(ccgt.MustRun(1), convey.ShouldBeFalse)

			convey.So(m.Demand[2020][heat(0)], convey.ShouldAlmostEqual, 20)
			convey.So(m.Demand[2020][heat(1)], convey.ShouldAlmostEqual, 4)
			convey.So(m.Prices[gas(0)], convey.ShouldAlmostEqual, 4)
			convey.So(m.Prices[gas(1)], convey.ShouldAlmostEqual, 2)
		})

		convey.Convey("When a seasonal aggregate grid is declared", func() {
			c.Timeslices.Aggregate = &timeslice.Definition{
				Levels: []string{"season"},
				Slices: []timeslice.Node{{Name: "winter", Weight: 1}, {Name: "summer", Weight: 1}},
			}
			m, err := c.Build()
			convey.So(err, convey.ShouldBeNil)

			convey.So(m.Timeslices.Names(), convey.ShouldResemble, []string{"winter", "summer"})

			wind, _ := m.Registry.Get(powerWind)
			convey.So(wind.Factor(0), convey.ShouldAlmostEqual, 0.4)
			convey.So(wind.Factor(1), convey.ShouldAlmostEqual, 0.3)

			ccgt, _ := m.Registry.Get(powerGas)
			convey.So(ccgt.MustRun(1), convey.ShouldBeFalse)

			convey.So(m.Demand[2020][heat(0)], convey.ShouldAlmostEqual, 20)
			convey.So(m.Demand[2020][heat(1)], convey.ShouldAlmostEqual, 4)
			convey.So(m.Prices[gas(0)], convey.ShouldAlmostEqual, 4)
		})

		convey.Convey("When the aggregate grid is declared in a different order", func() {
			c.Timeslices.Aggregate = &timeslice.Definition{
				Levels: []string{"season"},
				Slices: []timeslice.Node{{Name: "summer", Weight: 1}, {Name: "winter", Weight: 1}},
			}
			m, err := c.Build()
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Timeslices.Names(), convey.ShouldResemble, []string{"summer", "winter"})
			convey.So(m.Demand[2020][heat(0)], convey.ShouldAlmostEqual, 4)
			convey.So(m.Demand[2020][heat(1)], convey.ShouldAlmostEqual, 20)
		})

		convey.Convey("When the aggregate weights disagree with the fine grid", func() {
			c.Timeslices.Aggregate = &timeslice.Definition{
				Levels: []string{"season"},
				Slices: []timeslice.Node{{Name: "winter", Weight: 3}, {Name: "summer", Weight: 1}},
			}
			_, err := c.Build()
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "winter")
		})

		convey.Convey("When the aggregate grid misses a fine timeslice", func() {
			c.Timeslices.Aggregate = &timeslice.Definition{
				Levels: []string{"season"},
				Slices: []timeslice.Node{{Name: "winter", Weight: 1}},
			}
			_, err := c.Build()
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When both an aggregate grid and dropped levels are given", func() {
			c.Timeslices.DropLevels = []string{"hour"}
			c.Timeslices.Aggregate = &timeslice.Definition{
				Levels: []string{"season"},
				Slices: []timeslice.Node{{Name: "winter", Weight: 1}, {Name: "summer", Weight: 1}},
			}
			_, err := c.Build()
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})
	})
}

func TestLoad_Invalid(t *testing.T) {
	convey.Convey("Given malformed models", t, func() {
		convey.Convey("When a utilization row names an unknown level", func() {
			_, err := config.Load(writeModel(t, minimal+`        utilization: [{timeslice: {month: jan}, factor: 1}]
`))
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When a selector matches nothing", func() {
			_, err := config.Load(writeModel(t, minimal+`        utilization: [{timeslice: dusk, factor: 1}]
`))
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When existing capacity names an unknown technology", func() {
			_, err := config.Load(writeModel(t, minimal+`existing_capacity: [{sector: power, technology: coal, year: 2000, capacity: 1}]
`))
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
			convey.So(errors.Is(err, model.ErrUnknownTechnology), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "coal")
		})

		convey.Convey("When a sector is declared twice", func() {
			_, err := config.Load(writeModel(t, minimal+`  - name: power
    technologies: [{name: gas, output: electricity, lifetime: 20}]
`))
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When the technodata file is missing", func() {
			_, err := config.LoadUnchecked(writeModel(t, minimal+`  - name: industry
    technodata_file: nowhere.yaml
`))
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When no years are given", func() {
			_, err := config.ParseAndValidate([]byte(`sectors: [{name: power}]`))
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})
	})
}

func TestMergeTechnology(t *testing.T) {
	convey.Convey("Given a base technology and an override", t, func() {
		base := config.TechnologyConfig{
			Name: "boiler", Output: "heat", Inputs: map[string]float64{"gas": 1.1, "electricity": 0.01},
			Lifetime: 20, FixedCost: 2,
			Utilization: []config.UtilizationRow{{Factor: 1}},
		}
		override := config.TechnologyConfig{Name: "boiler", Inputs: map[string]float64{"gas": 1.05}, FixedCost: 3}

		out := config.MergeTechnology(base, override)
		convey.So(out.FixedCost, convey.ShouldEqual, 3)
		convey.So(out.Lifetime, convey.ShouldEqual, 20)
		convey.So(out.Inputs, convey.ShouldResemble, map[string]float64{"gas": 1.05, "electricity": 0.01})
		convey.So(out.Utilization, convey.ShouldHaveLength, 1)
		convey.So(base.Inputs["gas"], convey.ShouldEqual, 1.1)
	})
}

func TestLoadSettings(t *testing.T) {
	convey.Convey("Given the settings loader", t, func() {
		convey.Convey("When loading defaults only", func() {
			s, err := config.LoadSettings("")
			convey.So(err, convey.ShouldBeNil)
			convey.So(s.Tolerance, convey.ShouldEqual, 1e-4)
			convey.So(s.MaxRounds, convey.ShouldEqual, 100)
			convey.So(s.Addr, convey.ShouldEqual, ":8080")
		})

		convey.Convey("When loading a file", func() {
			s, err := config.LoadSettings(filepath.Join("testdata", "settings.yaml"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(s.Tolerance, convey.ShouldEqual, 0.001)
			convey.So(s.Damping, convey.ShouldEqual, 0.3)
			convey.So(s.AllowCycles, convey.ShouldBeTrue)
			convey.So(s.OnNonConvergence, convey.ShouldEqual, "abort")
			convey.So(s.DispatchOrder, convey.ShouldResemble, []string{"windturbine", "gasCCGT"})
			convey.So(s.CacheTTL.Minutes(), convey.ShouldEqual, 10)
			convey.So(s.CalmRounds, convey.ShouldEqual, 2)
		})

		convey.Convey("When the environment overrides the file", func() {
			t.Setenv("MCA_MAX_ROUNDS", "7")
			t.Setenv("MCA_PRICE_CEILING", "500")
			s, err := config.LoadSettings(filepath.Join("testdata", "settings.yaml"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(s.MaxRounds, convey.ShouldEqual, 7)
			convey.So(s.PriceCeiling, convey.ShouldEqual, 500)
			convey.So(s.Damping, convey.ShouldEqual, 0.3)
		})

		convey.Convey("When a setting is out of range", func() {
			t.Setenv("MCA_DAMPING", "1.5")
			_, err := config.LoadSettings("")
			convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
		})
	})
}

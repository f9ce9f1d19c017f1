// Package results turns cleared simulation state into flat tables.
package results

import (
	"sort"

	"energy-mca/internal/mca"
	"energy-mca/internal/technology"
	"energy-mca/internal/timeslice"
)

// CapacityRow is installed capacity of one technology in one year.
type CapacityRow struct {
	Year       int     `json:"year"`
	Sector     string  `json:"sector"`
	Technology string  `json:"technology"`
	Capacity   float64 `json:"capacity"`
}

// FlowRow is a supply or consumption quantity in one timeslice.
type FlowRow struct {
	Year       int     `json:"year"`
	Sector     string  `json:"sector"`
	Technology string  `json:"technology"`
	Commodity  string  `json:"commodity"`
	Timeslice  int     `json:"timeslice"`
	Slice      string  `json:"timeslice_name"`
	Quantity   float64 `json:"quantity"`
}

// PriceRow is the cleared price of a commodity in one timeslice.
type PriceRow struct {
	Year      int     `json:"year"`
	Commodity string  `json:"commodity"`
	Timeslice int     `json:"timeslice"`
	Slice     string  `json:"timeslice_name"`
	Price     float64 `json:"price"`
}

// Tables holds every reported quantity of a run. Rows with zero quantity are
// omitted, so a technology that cannot run in a timeslice has no row there.
type Tables struct {
	Capacity    []CapacityRow `json:"capacity"`
	Supply      []FlowRow     `json:"supply"`
	Consumption []FlowRow     `json:"consumption"`
	// Surplus is must-run output beyond demand. Its rows carry no technology.
	Surplus []FlowRow  `json:"surplus"`
	Prices  []PriceRow `json:"prices"`
}

// FromRun flattens a run.
func FromRun(run *mca.Run, set *timeslice.Set, reg *technology.Registry) *Tables {
	t := &Tables{}
	name := func(ts int) string {
		if ts < 0 || ts >= set.Len() {
			return ""
		}
		return set.At(ts).Name()
	}
	for _, y := range run.Years {
		for k, v := range y.Capacities {
			if v == 0 {
				continue
			}
			t.Capacity = append(t.Capacity, CapacityRow{Year: y.Year, Sector: k.Sector, Technology: k.Technology, Capacity: v})
		}
		for _, sec := range y.Sectors() {
			res, _ := y.Dispatch(sec)
			for k, v := range res.Supply {
				if v == 0 {
					continue
				}
				out := ""
				for _, tech := range reg.Sector(sec) {
					if tech.Name == k.Technology {
						out = tech.Output
						break
					}
				}
				t.Supply = append(t.Supply, FlowRow{
					Year: y.Year, Sector: sec, Technology: k.Technology, Commodity: out,
					Timeslice: k.Timeslice, Slice: name(k.Timeslice), Quantity: v,
				})
			}
			for k, v := range res.Consumption {
				if v == 0 {
					continue
				}
				t.Consumption = append(t.Consumption, FlowRow{
					Year: y.Year, Sector: sec, Technology: k.Technology, Commodity: k.Commodity,
					Timeslice: k.Timeslice, Slice: name(k.Timeslice), Quantity: v,
				})
			}
			for k, v := range res.Surplus {
				t.Surplus = append(t.Surplus, FlowRow{
					Year: y.Year, Sector: sec, Commodity: k.Commodity,
					Timeslice: k.Timeslice, Slice: name(k.Timeslice), Quantity: v,
				})
			}
		}
		for k, v := range y.Prices() {
			t.Prices = append(t.Prices, PriceRow{Year: y.Year, Commodity: k.Commodity, Timeslice: k.Timeslice, Slice: name(k.Timeslice), Price: v})
		}
	}
	t.sort()
	return t
}

func (t *Tables) sort() {
	sort.Slice(t.Capacity, func(i, j int) bool {
		a, b := t.Capacity[i], t.Capacity[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Sector != b.Sector {
			return a.Sector < b.Sector
		}
		return a.Technology < b.Technology
	})
	sortFlows(t.Supply)
	sortFlows(t.Consumption)
	sortFlows(t.Surplus)
	sort.Slice(t.Prices, func(i, j int) bool {
		a, b := t.Prices[i], t.Prices[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Commodity != b.Commodity {
			return a.Commodity < b.Commodity
		}
		return a.Timeslice < b.Timeslice
	})
}

func sortFlows(rows []FlowRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Year != b.Year:
			return a.Year < b.Year
		case a.Sector != b.Sector:
			return a.Sector < b.Sector
		case a.Technology != b.Technology:
			return a.Technology < b.Technology
		case a.Commodity != b.Commodity:
			return a.Commodity < b.Commodity
		default:
			return a.Timeslice < b.Timeslice
		}
	})
}

// Filter selects rows. Zero-valued fields match everything.
type Filter struct {
	Year       int
	Sector     string
	Technology string
	Commodity  string
}

func (f Filter) match(year int, sector, tech, commodity string) bool {
	return (f.Year == 0 || f.Year == year) &&
		(f.Sector == "" || f.Sector == sector) &&
		(f.Technology == "" || f.Technology == tech) &&
		(f.Commodity == "" || f.Commodity == commodity)
}

// CapacityRows returns the capacity rows matching f.
func (t *Tables) CapacityRows(f Filter) []CapacityRow {
	out := []CapacityRow{}
	for _, r := range t.Capacity {
		if f.match(r.Year, r.Sector, r.Technology, "") {
			out = append(out, r)
		}
	}
	return out
}

// SupplyRows returns the supply rows matching f.
func (t *Tables) SupplyRows(f Filter) []FlowRow { return filterFlows(t.Supply, f) }

// ConsumptionRows returns the consumption rows matching f.
func (t *Tables) ConsumptionRows(f Filter) []FlowRow { return filterFlows(t.Consumption, f) }

// SurplusRows returns the surplus rows matching f.
func (t *Tables) SurplusRows(f Filter) []FlowRow { return filterFlows(t.Surplus, f) }

// PriceRows returns the price rows matching f. Sector and technology are ignored.
func (t *Tables) PriceRows(f Filter) []PriceRow {
	out := []PriceRow{}
	for _, r := range t.Prices {
		if f.match(r.Year, "", "", r.Commodity) {
			out = append(out, r)
		}
	}
	return out
}

func filterFlows(rows []FlowRow, f Filter) []FlowRow {
	out := []FlowRow{}
	for _, r := range rows {
		if f.match(r.Year, r.Sector, r.Technology, r.Commodity) {
			out = append(out, r)
		}
	}
	return out
}

// Sectors lists the sectors with any supply or consumption row.
func (t *Tables) Sectors() []string {
	seen := map[string]bool{}
	for _, r := range t.Supply {
		seen[r.Sector] = true
	}
	for _, r := range t.Consumption {
		seen[r.Sector] = true
	}
	for _, r := range t.Capacity {
		seen[r.Sector] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Years lists the years present in the capacity or price tables.
func (t *Tables) Years() []int {
	seen := map[int]bool{}
	for _, r := range t.Capacity {
		seen[r.Year] = true
	}
	for _, r := range t.Prices {
		seen[r.Year] = true
	}
	out := make([]int, 0, len(seen))
	for y := range seen {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

package data

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"energy-mca/internal/model"
	"energy-mca/internal/timeslice"
)

// DemandRow is exogenous demand for one commodity in one year. Quantity is
// placed on every addressed timeslice; Annual is instead split over them in
// proportion to their weights. Exactly one of the two is used.
type DemandRow struct {
	Year      int      `yaml:"year" json:"year"`
	Commodity string   `yaml:"commodity" json:"commodity"`
	Timeslice Selector `yaml:"timeslice,omitempty" json:"timeslice,omitempty"`
	Quantity  float64  `yaml:"quantity,omitempty" json:"quantity,omitempty"`
	Annual    float64  `yaml:"annual,omitempty" json:"annual,omitempty"`
}

// DemandFile is the JSON shape of a demand projection.
type DemandFile struct {
	Unit string      `json:"unit,omitempty"`
	Data []DemandRow `json:"data"`
}

func LoadDemandJSON(path string) (*DemandFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f DemandFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// GroupByYear splits rows into year-keyed slices, keeping input order.
func GroupByYear(rows []DemandRow) map[int][]DemandRow {
	out := map[int][]DemandRow{}
	for _, r := range rows {
		out[r.Year] = append(out[r.Year], r)
	}
	return out
}

// BuildDemand resolves demand rows against set. A later row addressing the
// same commodity and timeslice as an earlier one replaces it.
func BuildDemand(rows []DemandRow, set *timeslice.Set) (map[int]model.CommodityTable, error) {
	out := map[int]model.CommodityTable{}
	years := GroupByYear(rows)
	keys := make([]int, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Ints(keys)

	for _, year := range keys {
		table := model.CommodityTable{}
		for i, r := range years[year] {
			field := fmt.Sprintf("demand[%d:%d]", year, i)
			if r.Commodity == "" {
				return nil, model.Configf(field, "commodity is required")
			}
			if r.Quantity < 0 || r.Annual < 0 {
				return nil, model.Configf(field, "demand must be >= 0")
			}
			if r.Quantity != 0 && r.Annual != 0 {
				return nil, model.Configf(field, "set either quantity or annual, not both")
			}
			idx, err := r.Timeslice.Resolve(set)
			if err != nil {
				return nil, model.Configf(field, "%v", err)
			}
			total := 0.0
			for _, ts := range idx {
				total += set.Weight(ts)
			}
			for _, ts := range idx {
				q := r.Quantity
				if r.Annual != 0 && total > 0 {
					q = r.Annual * set.Weight(ts) / total
				}
				table[model.CommodityTS{Commodity: r.Commodity, Timeslice: ts}] = q
			}
		}
		out[year] = table
	}
	return out, nil
}

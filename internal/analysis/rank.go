package analysis

import (
	"sort"

	"energy-mca/internal/results"
)

// TechnologyShare is a technology's annual output and its share of the
// commodity it produces.
type TechnologyShare struct {
	Year       int     `json:"year"`
	Sector     string  `json:"sector"`
	Technology string  `json:"technology"`
	Commodity  string  `json:"commodity"`
	Supply     float64 `json:"supply"`
	Share      float64 `json:"share"`
}

// RankBySupply totals supply per technology and year and sorts descending by
// supply. Ties keep sector then technology order.
func RankBySupply(rows []results.FlowRow) []TechnologyShare {
	type market struct {
		year      int
		commodity string
	}
	type key struct {
		market
		sector, tech string
	}
	totals := map[key]float64{}
	byCommodity := map[market]float64{}
	for _, r := range rows {
		m := market{r.Year, r.Commodity}
		totals[key{m, r.Sector, r.Technology}] += r.Quantity
		byCommodity[m] += r.Quantity
	}

	out := make([]TechnologyShare, 0, len(totals))
	for k, v := range totals {
		share := 0.0
		if total := byCommodity[k.market]; total > 0 {
			share = v / total
		}
		out = append(out, TechnologyShare{Year: k.year, Sector: k.sector, Technology: k.tech, Commodity: k.commodity, Supply: v, Share: share})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.Year != b.Year:
			return a.Year < b.Year
		case a.Supply != b.Supply:
			return a.Supply > b.Supply
		case a.Sector != b.Sector:
			return a.Sector < b.Sector
		default:
			return a.Technology < b.Technology
		}
	})
	return out
}

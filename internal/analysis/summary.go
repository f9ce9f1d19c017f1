package analysis

import (
	"energy-mca/internal/mca"
	"energy-mca/internal/results"
)

// YearSummary condenses one cleared year.
type YearSummary struct {
	Year     int     `json:"year"`
	Status   string  `json:"status"`
	Rounds   int     `json:"rounds"`
	Residual float64 `json:"residual"`
	Unmet    float64 `json:"unmet_demand"`
	Rationed int     `json:"rationed_markets"`
	Added    float64 `json:"capacity_added"`
	Retired  float64 `json:"capacity_retired"`
}

// RunSummary is what the CLI prints and the API returns after a run.
type RunSummary struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Converged  bool              `json:"converged"`
	Aborted    bool              `json:"aborted"`
	Order      []string          `json:"sector_order"`
	DurationMs int64             `json:"duration_ms"`
	Years      []YearSummary     `json:"years"`
	Prices     []PriceStats      `json:"prices"`
	Ranking    []TechnologyShare `json:"ranking"`
}

// Summarize builds the summary of a run from its tables.
func Summarize(run *mca.Run, t *results.Tables, weights []float64) RunSummary {
	s := RunSummary{
		ID:         run.ID.String(),
		Model:      run.Model,
		Converged:  run.Converged(),
		Aborted:    run.Aborted,
		Order:      run.Order,
		DurationMs: run.Duration.Milliseconds(),
		Prices:     ComputePriceStats(t.Prices, weights),
		Ranking:    RankBySupply(t.Supply),
	}
	for _, y := range run.Years {
		ys := YearSummary{
			Year:     y.Year,
			Status:   string(y.Status),
			Rounds:   y.Rounds,
			Residual: y.Residual,
			Unmet:    y.UnmetTotal(),
		}
		for _, w := range y.Warnings {
			if w.Rationed {
				ys.Rationed++
			}
		}
		for _, p := range run.Plans {
			if p.Year != y.Year {
				continue
			}
			for _, v := range p.Added {
				ys.Added += v
			}
			for _, v := range p.Retired {
				ys.Retired += v
			}
		}
		s.Years = append(s.Years, ys)
	}
	return s
}

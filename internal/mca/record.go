package mca

import (
	"fmt"
	"sort"

	"energy-mca/internal/dispatch"
	"energy-mca/internal/model"
	"energy-mca/internal/technology"
)

// RoundRecord is the immutable outcome of one clearing round. A new record
// supersedes the previous one; nothing edits a record after it is built.
type RoundRecord struct {
	Round int
	// Prices the round dispatched at, endogenous and exogenous.
	Prices model.CommodityTable
	// Demand on every endogenous commodity once all sectors ran.
	Demand model.CommodityTable
	// Faced is the demand each producing sector was dispatched against.
	Faced model.CommodityTable
	// Sectors holds each sector's dispatch.
	Sectors map[string]*dispatch.Result
	// Mismatch is the largest gap between the demand a sector served and the
	// demand its consumers placed on it by the end of the round.
	Mismatch    float64
	PriceChange float64
	Residual    float64
}

// YearResult is what the solver reports for one simulation year.
type YearResult struct {
	Year     int
	Status   model.Status
	Rounds   int
	Residual float64
	// Capacities dispatch ran against.
	Capacities technology.Capacities
	// Final is the last round. Its prices and quantities are the cleared state.
	Final *RoundRecord
	// History holds every round when round keeping is enabled.
	History  []*RoundRecord
	Warnings []model.UnmetDemandWarning
}

// Converged reports whether the year met tolerance.
func (y *YearResult) Converged() bool { return y.Status == model.StatusConverged }

// Prices returns the cleared prices.
func (y *YearResult) Prices() model.CommodityTable {
	if y.Final == nil {
		return model.CommodityTable{}
	}
	return y.Final.Prices
}

// Dispatch returns the cleared dispatch of one sector.
func (y *YearResult) Dispatch(sector string) (*dispatch.Result, bool) {
	if y.Final == nil {
		return nil, false
	}
	r, ok := y.Final.Sectors[sector]
	return r, ok
}

// Sectors lists the dispatched sectors by name.
func (y *YearResult) Sectors() []string {
	if y.Final == nil {
		return nil
	}
	out := make([]string, 0, len(y.Final.Sectors))
	for s := range y.Final.Sectors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Consumption returns the cleared input use of every sector.
func (y *YearResult) Consumption() map[string]model.CommodityTable {
	out := map[string]model.CommodityTable{}
	if y.Final == nil {
		return out
	}
	for s, r := range y.Final.Sectors {
		out[s] = r.Inputs()
	}
	return out
}

// UnmetTotal sums unmet demand over every sector and timeslice.
func (y *YearResult) UnmetTotal() float64 {
	sum := 0.0
	for _, w := range y.Warnings {
		sum += w.Quantity
	}
	return sum
}

// status is the per-year clearing state machine.
type status struct {
	current model.Status
}

var transitions = map[model.Status][]model.Status{
	model.StatusInitialized: {model.StatusIterating},
	model.StatusIterating:   {model.StatusIterating, model.StatusConverged, model.StatusMaxIterationsExceeded},
}

func newStatus() *status { return &status{current: model.StatusInitialized} }

func (s *status) to(next model.Status) error {
	for _, allowed := range transitions[s.current] {
		if allowed == next {
			s.current = next
			return nil
		}
	}
	return fmt.Errorf("invalid clearing transition %s -> %s", s.current, next)
}

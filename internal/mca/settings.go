package mca

import (
	"math"

	"energy-mca/internal/model"
)

// Non-convergence policies.
const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
)

// Settings are the solver constants. They are configuration driven.
type Settings struct {
	// Tolerance is the relative residual a round must reach to count as calm.
	Tolerance float64 `koanf:"tolerance" json:"tolerance"`
	// AbsoluteFloor replaces near-zero denominators in relative comparisons.
	AbsoluteFloor float64 `koanf:"absolute_floor" json:"absolute_floor"`
	// Damping in (0, 1] scales every price step.
	Damping   float64 `koanf:"damping" json:"damping"`
	MaxRounds int     `koanf:"max_rounds" json:"max_rounds"`
	// CalmRounds is how many consecutive rounds must stay within tolerance.
	CalmRounds   int     `koanf:"calm_rounds" json:"calm_rounds"`
	PriceFloor   float64 `koanf:"price_floor" json:"price_floor"`
	PriceCeiling float64 `koanf:"price_ceiling" json:"price_ceiling"`
	// KeepRounds retains every round record on the year result.
	KeepRounds  bool `koanf:"keep_rounds" json:"keep_rounds"`
	AllowCycles bool `koanf:"allow_cycles" json:"allow_cycles"`
	// OnNonConvergence is PolicyContinue or PolicyAbort.
	OnNonConvergence string `koanf:"on_non_convergence" json:"on_non_convergence"`
	// Workers bounds concurrent timeslice dispatch; 0 means GOMAXPROCS.
	Workers int `koanf:"workers" json:"workers"`
	// Ranker is "merit" or "fixed"; DispatchOrder feeds the fixed ranker.
	Ranker        string   `koanf:"ranker" json:"ranker"`
	DispatchOrder []string `koanf:"dispatch_order" json:"dispatch_order,omitempty"`
}

// DefaultSettings returns the defaults applied before any file or env layer.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:        1e-4,
		AbsoluteFloor:    1e-6,
		Damping:          0.5,
		MaxRounds:        100,
		CalmRounds:       2,
		PriceFloor:       0,
		PriceCeiling:     1e4,
		OnNonConvergence: PolicyContinue,
		Ranker:           "merit",
	}
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	switch {
	case !(s.Tolerance > 0) || math.IsInf(s.Tolerance, 0):
		return model.Configf("settings.tolerance", "must be > 0, got %g", s.Tolerance)
	case !(s.AbsoluteFloor > 0):
		return model.Configf("settings.absolute_floor", "must be > 0, got %g", s.AbsoluteFloor)
	case !(s.Damping > 0 && s.Damping <= 1):
		return model.Configf("settings.damping", "must be in (0, 1], got %g", s.Damping)
	case s.MaxRounds < 1:
		return model.Configf("settings.max_rounds", "must be >= 1, got %d", s.MaxRounds)
	case s.CalmRounds < 1:
		return model.Configf("settings.calm_rounds", "must be >= 1, got %d", s.CalmRounds)
	case math.IsNaN(s.PriceFloor) || math.IsNaN(s.PriceCeiling) || s.PriceCeiling <= s.PriceFloor:
		return model.Configf("settings.price_ceiling", "ceiling %g must exceed floor %g", s.PriceCeiling, s.PriceFloor)
	case s.Workers < 0:
		return model.Configf("settings.workers", "must be >= 0, got %d", s.Workers)
	}
	switch s.OnNonConvergence {
	case PolicyContinue, PolicyAbort:
	default:
		return model.Configf("settings.on_non_convergence", "must be %q or %q, got %q", PolicyContinue, PolicyAbort, s.OnNonConvergence)
	}
	switch s.Ranker {
	case "merit", "fixed":
	default:
		return model.Configf("settings.ranker", "unknown ranker %q", s.Ranker)
	}
	return nil
}

func (s Settings) clamp(p float64) float64 {
	return math.Min(s.PriceCeiling, math.Max(s.PriceFloor, p))
}

// relative is |a-b| scaled by the larger magnitude, never by less than the floor.
func (s Settings) relative(a, b float64) float64 {
	return math.Abs(a-b) / math.Max(math.Max(math.Abs(a), math.Abs(b)), s.AbsoluteFloor)
}

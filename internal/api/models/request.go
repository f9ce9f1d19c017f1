package models

import "energy-mca/internal/timeslice"

// SimulationRequest represents the request body for running a simulation.
// Either ModelYAML or ModelFile must be set.
type SimulationRequest struct {
	// ModelYAML is a complete model definition in YAML.
	ModelYAML string `json:"model_yaml,omitempty"`
	// ModelFile names a model in the server's model directory.
	ModelFile string            `json:"model_file,omitempty"`
	Settings  SettingsOverrides `json:"settings,omitempty"`
	Options   SimulationOptions `json:"options,omitempty"`
}

// SettingsOverrides replaces individual solver settings for one run.
// Unset fields keep the server defaults.
type SettingsOverrides struct {
	Tolerance        *float64 `json:"tolerance,omitempty"`
	Damping          *float64 `json:"damping,omitempty"`
	MaxRounds        *int     `json:"max_rounds,omitempty"`
	CalmRounds       *int     `json:"calm_rounds,omitempty"`
	PriceFloor       *float64 `json:"price_floor,omitempty"`
	PriceCeiling     *float64 `json:"price_ceiling,omitempty"`
	KeepRounds       *bool    `json:"keep_rounds,omitempty"`
	AllowCycles      *bool    `json:"allow_cycles,omitempty"`
	OnNonConvergence *string  `json:"on_non_convergence,omitempty"`
	Ranker           *string  `json:"ranker,omitempty"`
	DispatchOrder    []string `json:"dispatch_order,omitempty"`
}

// SimulationOptions contains optional simulation parameters
type SimulationOptions struct {
	IncludeTables bool `json:"include_tables,omitempty"` // default: false
}

// TimesliceRequest asks for a timeslice tree to be flattened.
type TimesliceRequest struct {
	Definition timeslice.Definition `json:"definition" binding:"required"`
	DropLevels []string             `json:"drop_levels,omitempty"`
}

package models

import (
	"energy-mca/internal/analysis"
	"energy-mca/internal/results"
)

// Simulation statuses.
const (
	StatusConverged   = "converged"
	StatusApproximate = "approximate"
	StatusAborted     = "aborted"
)

// SimulationResponse represents the response from a simulation run
type SimulationResponse struct {
	ID       string              `json:"id"`
	Status   string              `json:"status"`
	Message  string              `json:"message,omitempty"`
	Summary  analysis.RunSummary `json:"summary"`
	Warnings []WarningInfo       `json:"warnings,omitempty"`
	Tables   *results.Tables     `json:"tables,omitempty"`
}

// WarningInfo is one unmet demand warning of one year.
type WarningInfo struct {
	Year      int     `json:"year"`
	Sector    string  `json:"sector"`
	Commodity string  `json:"commodity"`
	Timeslice int     `json:"timeslice"`
	Quantity  float64 `json:"quantity"`
	Rationed  bool    `json:"rationed"`
}

// SimulationList lists the simulations still held by the server.
type SimulationList struct {
	IDs []string `json:"ids"`
}

// CapacityResponse wraps capacity rows.
type CapacityResponse struct {
	ID   string                `json:"id"`
	Rows []results.CapacityRow `json:"rows"`
}

// FlowResponse wraps supply or consumption rows.
type FlowResponse struct {
	ID   string            `json:"id"`
	Rows []results.FlowRow `json:"rows"`
}

// PriceResponse wraps price rows.
type PriceResponse struct {
	ID   string             `json:"id"`
	Rows []results.PriceRow `json:"rows"`
}

// RankResponse ranks technologies by cleared supply.
type RankResponse struct {
	ID       string                     `json:"id"`
	Rankings []analysis.TechnologyShare `json:"rankings"`
}

// TimesliceInfo is one flattened timeslice.
type TimesliceInfo struct {
	Index  int      `json:"index"`
	Name   string   `json:"name"`
	Path   []string `json:"path"`
	Weight float64  `json:"weight"`
}

// TimesliceResponse is a flattened timeslice set.
type TimesliceResponse struct {
	Levels     []string        `json:"levels"`
	Timeslices []TimesliceInfo `json:"timeslices"`
}

// ModelInfo represents information about a model file on the server
type ModelInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Years   []int    `json:"years"`
	Sectors []string `json:"sectors"`
}

// RankerInfo represents information about a dispatch ranker
type RankerInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a ranker setting
type ParameterInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "float", "int", "string", "[]string"
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

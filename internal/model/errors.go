package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching. The typed errors below unwrap to these.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrCyclicDependency  = errors.New("cyclic sector dependency")
	ErrNonConvergence    = errors.New("market clearing did not converge")
	ErrUnknownTechnology = errors.New("unknown technology")
)

// ConfigurationError reports malformed or inconsistent input tables.
// It is fatal: callers surface it immediately and do not retry.
type ConfigurationError struct {
	// Field is a dotted path to the offending input, e.g. "sectors[power].technologies[gasCCGT]".
	Field  string
	Reason string
	// Err is the cause wrapped with %w, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// Configf builds a ConfigurationError with a formatted reason. A %w verb
// keeps its operand matchable with errors.Is.
func Configf(field, format string, args ...any) *ConfigurationError {
	err := fmt.Errorf(format, args...)
	return &ConfigurationError{Field: field, Reason: err.Error(), Err: errors.Unwrap(err)}
}

// CyclicDependencyError lists the groups of sectors that depend on each
// other's outputs. Each cycle is sorted by sector name.
type CyclicDependencyError struct {
	Cycles [][]string
}

func (e *CyclicDependencyError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		parts = append(parts, "["+strings.Join(c, " <-> ")+"]")
	}
	return fmt.Sprintf("cyclic sector dependency: %s", strings.Join(parts, ", "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// UnmetDemandWarning is a non-fatal signal carried through dispatch and
// clearing results. It is never returned as an error.
type UnmetDemandWarning struct {
	Sector    string
	Commodity string
	Timeslice int
	Quantity  float64
	// Rationed is set when the market price hit the ceiling and the shortfall
	// was accepted as the cleared outcome.
	Rationed bool
}

func (w UnmetDemandWarning) String() string {
	return fmt.Sprintf("unmet demand %s/%s ts=%d: %.6g", w.Sector, w.Commodity, w.Timeslice, w.Quantity)
}

package simulation

import "errors"

// Error classes for the simulation core. Configuration and candle problems
// fail fast before any tick mutates state; ordering violations abort the run.
// Arithmetic anomalies (negative densities, non-positive triggers) are not
// errors: they are clamped locally and surfaced through logs and metrics.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrOrderingViolation = errors.New("ordering violation")
)

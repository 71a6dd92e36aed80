package simulation

import (
	"fmt"

	"LiqMap/internal/domain/models"
)

// TriggerPrice returns the liquidation price for a position opened at entry
// with the given leverage and maintenance margin rate:
//
//	long:  entry × (1 − 1/L + m/L)
//	short: entry × (1 + 1/L − m/L)
//
// Pure and deterministic. The rounding behavior of float64 here is part of
// the contract consumers rely on; do not reorder the arithmetic.
func TriggerPrice(entry float64, leverage int, side models.Side, marginRate float64) (float64, error) {
	if entry <= 0 {
		return 0, fmt.Errorf("%w: entry price %v", ErrInvalidInput, entry)
	}
	if leverage <= 0 {
		return 0, fmt.Errorf("%w: leverage %d", ErrInvalidInput, leverage)
	}
	if marginRate < 0 || marginRate >= 1 {
		return 0, fmt.Errorf("%w: margin rate %v outside [0,1)", ErrInvalidInput, marginRate)
	}

	l := float64(leverage)
	switch side {
	case models.SideLong:
		return entry * (1 - 1/l + marginRate/l), nil
	case models.SideShort:
		return entry * (1 + 1/l - marginRate/l), nil
	default:
		return 0, fmt.Errorf("%w: side %q", ErrInvalidInput, side)
	}
}

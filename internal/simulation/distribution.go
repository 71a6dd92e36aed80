package simulation

import (
	"fmt"
	"math"
)

// LeverageTier is one slice of the leverage population distribution: the
// share of a synthesized open-interest delta assumed to trade at Leverage.
type LeverageTier struct {
	Leverage int
	Weight   float64
}

// Distribution maps leverage tiers to weights. The split is an estimate of
// the trading population, not observed data, so it is injected configuration
// rather than a constant.
type Distribution []LeverageTier

// weightTolerance bounds float drift when checking the weights sum to 1.
const weightTolerance = 1e-9

// Validate checks tier sanity: positive distinct leverages, non-negative
// weights, and a total weight of 1.0.
func (d Distribution) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("%w: empty leverage distribution", ErrInvalidInput)
	}
	seen := make(map[int]bool, len(d))
	sum := 0.0
	for _, t := range d {
		if t.Leverage <= 0 {
			return fmt.Errorf("%w: non-positive leverage %d", ErrInvalidInput, t.Leverage)
		}
		if seen[t.Leverage] {
			return fmt.Errorf("%w: duplicate leverage tier %d", ErrInvalidInput, t.Leverage)
		}
		seen[t.Leverage] = true
		if t.Weight < 0 {
			return fmt.Errorf("%w: negative weight %v for %dx", ErrInvalidInput, t.Weight, t.Leverage)
		}
		sum += t.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: tier weights sum to %v, want 1.0", ErrInvalidInput, sum)
	}
	return nil
}

// DefaultDistribution is the stock population estimate used when no
// calibrated table is configured.
func DefaultDistribution() Distribution {
	return Distribution{
		{Leverage: 5, Weight: 0.15},
		{Leverage: 10, Weight: 0.30},
		{Leverage: 25, Weight: 0.25},
		{Leverage: 50, Weight: 0.20},
		{Leverage: 100, Weight: 0.10},
	}
}

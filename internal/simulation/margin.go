package simulation

import (
	"fmt"
	"sort"
)

// MarginProvider resolves the maintenance margin rate for a position of the
// given notional size. Exchanges publish either a flat rate or a table keyed
// by notional tier; both are supported behind this interface so an external
// collaborator can supply the exchange's table.
type MarginProvider interface {
	MarginRate(notional float64) float64
}

// FlatMargin applies one maintenance margin rate regardless of size.
type FlatMargin struct {
	Rate float64
}

func (f FlatMargin) MarginRate(notional float64) float64 { return f.Rate }

// NewFlatMargin validates and returns a flat margin provider.
func NewFlatMargin(rate float64) (FlatMargin, error) {
	if rate < 0 || rate >= 1 {
		return FlatMargin{}, fmt.Errorf("%w: margin rate %v outside [0,1)", ErrInvalidInput, rate)
	}
	return FlatMargin{Rate: rate}, nil
}

// MarginTier is one row of a notional-tiered maintenance margin table.
type MarginTier struct {
	MaxNotional float64 // upper bound of the tier, inclusive
	Rate        float64
}

// TieredMargin resolves the rate from a notional-tiered table. The last
// tier's rate applies above its bound.
type TieredMargin struct {
	tiers []MarginTier
}

// NewTieredMargin builds a tiered provider. Tiers are sorted by bound and
// every rate must lie in [0,1).
func NewTieredMargin(tiers []MarginTier) (*TieredMargin, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty margin tier table", ErrInvalidInput)
	}
	sorted := make([]MarginTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxNotional < sorted[j].MaxNotional })
	for _, t := range sorted {
		if t.Rate < 0 || t.Rate >= 1 {
			return nil, fmt.Errorf("%w: margin rate %v outside [0,1)", ErrInvalidInput, t.Rate)
		}
		if t.MaxNotional <= 0 {
			return nil, fmt.Errorf("%w: non-positive tier bound %v", ErrInvalidInput, t.MaxNotional)
		}
	}
	return &TieredMargin{tiers: sorted}, nil
}

func (t *TieredMargin) MarginRate(notional float64) float64 {
	for _, tier := range t.tiers {
		if notional <= tier.MaxNotional {
			return tier.Rate
		}
	}
	return t.tiers[len(t.tiers)-1].Rate
}

package simulation

import (
	"sort"

	"LiqMap/internal/domain/models"
)

// minVolume is the smallest position volume worth tracking. Positions that
// shrink below it after proportional closure are dropped so the volume > 0
// invariant holds and the index does not accumulate dust.
const minVolume = 1e-9

// PriceIndex is the authoritative in-memory index of active positions keyed
// by trigger price. Owned exclusively by one Engine for the duration of a
// run; the Aggregator only reads it.
type PriceIndex struct {
	levels map[float64][]*models.LiquidationPosition
	count  int
}

func NewPriceIndex() *PriceIndex {
	return &PriceIndex{levels: make(map[float64][]*models.LiquidationPosition)}
}

// Add inserts a position under its trigger price.
func (ix *PriceIndex) Add(p *models.LiquidationPosition) {
	ix.levels[p.TriggerPrice] = append(ix.levels[p.TriggerPrice], p)
	ix.count++
}

// Len returns the number of active positions.
func (ix *PriceIndex) Len() int { return ix.count }

// Prices returns all indexed trigger prices sorted ascending.
func (ix *PriceIndex) Prices() []float64 {
	ps := make([]float64, 0, len(ix.levels))
	for p := range ix.levels {
		ps = append(ps, p)
	}
	sort.Float64s(ps)
	return ps
}

// Level returns the positions sharing a trigger price.
func (ix *PriceIndex) Level(price float64) []*models.LiquidationPosition {
	return ix.levels[price]
}

// SetLevel replaces a level's positions, removing the level when empty.
func (ix *PriceIndex) SetLevel(price float64, ps []*models.LiquidationPosition) {
	ix.count -= len(ix.levels[price])
	if len(ps) == 0 {
		delete(ix.levels, price)
		return
	}
	ix.levels[price] = ps
	ix.count += len(ps)
}

// Each visits every level. Iteration order is unspecified; callers that emit
// ordered output must sort (see Prices).
func (ix *PriceIndex) Each(fn func(price float64, ps []*models.LiquidationPosition)) {
	for price, ps := range ix.levels {
		fn(price, ps)
	}
}

// TotalVolume sums active volume per side.
func (ix *PriceIndex) TotalVolume() (long, short float64) {
	for _, ps := range ix.levels {
		for _, p := range ps {
			if p.Side == models.SideLong {
				long += p.Volume
			} else {
				short += p.Volume
			}
		}
	}
	return long, short
}

// Clear drops every level.
func (ix *PriceIndex) Clear() {
	ix.levels = make(map[float64][]*models.LiquidationPosition)
	ix.count = 0
}

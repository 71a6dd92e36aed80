package simulation

import (
	"fmt"
	"math"
	"sort"

	"LiqMap/internal/domain/models"
)

// Aggregator projects an engine's active-position index into a discretized
// price-bucketed density snapshot. Cells with zero density are omitted;
// levels come out sorted ascending by price.
type Aggregator struct {
	bucketSize float64
}

func NewAggregator(bucketSize float64) (*Aggregator, error) {
	if bucketSize <= 0 {
		return nil, fmt.Errorf("%w: bucket size %v", ErrInvalidInput, bucketSize)
	}
	return &Aggregator{bucketSize: bucketSize}, nil
}

// Snapshot materializes the current index state for one tick. Called
// immediately after Engine.Apply; res supplies the tick's own counters.
func (a *Aggregator) Snapshot(symbol string, ix *PriceIndex, res TickResult) *models.HeatmapSnapshot {
	cells := make(map[float64]*models.HeatmapLevel)
	ix.Each(func(trigger float64, ps []*models.LiquidationPosition) {
		bucket := a.Bucket(trigger)
		cell := cells[bucket]
		if cell == nil {
			cell = &models.HeatmapLevel{Price: bucket}
			cells[bucket] = cell
		}
		for _, p := range ps {
			if p.Side == models.SideLong {
				cell.LongDensity += p.Volume
			} else {
				cell.ShortDensity += p.Volume
			}
		}
	})

	prices := make([]float64, 0, len(cells))
	for p := range cells {
		prices = append(prices, p)
	}
	sort.Float64s(prices)

	levels := make([]models.HeatmapLevel, 0, len(prices))
	totalLong, totalShort := 0.0, 0.0
	for _, p := range prices {
		cell := *cells[p]
		// densities are sums of positive volumes, but clamp anyway so a
		// drifted index can never emit a negative cell
		if cell.LongDensity < 0 {
			cell.LongDensity = 0
		}
		if cell.ShortDensity < 0 {
			cell.ShortDensity = 0
		}
		if cell.LongDensity == 0 && cell.ShortDensity == 0 {
			continue
		}
		totalLong += cell.LongDensity
		totalShort += cell.ShortDensity
		levels = append(levels, cell)
	}

	return &models.HeatmapSnapshot{
		Timestamp: res.Timestamp,
		Symbol:    symbol,
		Levels:    levels,
		Meta: models.SnapshotMeta{
			TotalLongVolume:   totalLong,
			TotalShortVolume:  totalShort,
			PositionsCreated:  res.PositionsCreated,
			PositionsConsumed: res.PositionsConsumed,
		},
	}
}

// Bucket rounds a trigger price to the nearest configured bucket boundary.
func (a *Aggregator) Bucket(price float64) float64 {
	return math.Round(price/a.bucketSize) * a.bucketSize
}

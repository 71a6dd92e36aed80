package simulation

import (
	"fmt"
	"math"
	"sort"

	"LiqMap/internal/domain/models"
)

// SidePolicy decides how a synthesized open-interest delta splits between
// long and short positions. There is no ground truth for this split, so it
// sits behind an interface; alternative heuristics (e.g. taker buy/sell
// ratios) can be substituted without engine changes.
type SidePolicy interface {
	// LongFraction returns the share of the delta opened long, in [0,1].
	LongFraction(c models.Candle) float64
}

// CandleDirectionPolicy infers the side bias from the candle's direction:
// an up candle gets a long-biased majority, a down candle a short-biased
// one, a doji an even split. This is a heuristic, not observed fact.
type CandleDirectionPolicy struct {
	Bias float64 // majority share, e.g. 0.7
}

// NewCandleDirectionPolicy validates the bias (must be in [0.5, 1]).
func NewCandleDirectionPolicy(bias float64) (CandleDirectionPolicy, error) {
	if bias < 0.5 || bias > 1 {
		return CandleDirectionPolicy{}, fmt.Errorf("%w: side bias %v outside [0.5,1]", ErrInvalidInput, bias)
	}
	return CandleDirectionPolicy{Bias: bias}, nil
}

func (p CandleDirectionPolicy) LongFraction(c models.Candle) float64 {
	switch {
	case c.Close > c.Open:
		return p.Bias
	case c.Close < c.Open:
		return 1 - p.Bias
	default:
		return 0.5
	}
}

// ClosurePolicy removes active volume from the index when open interest
// drops. Which positions actually closed is unobservable, so the removal
// strategy is a documented policy choice.
type ClosurePolicy interface {
	// Remove takes up to target volume out of the index, using ref as the
	// current market context. Returns the volume removed and the number of
	// arithmetic anomalies clamped along the way.
	Remove(ix *PriceIndex, target float64, ref models.Candle) (removed float64, anomalies int)
}

// ProportionalClosure scales every active position down pro-rata. The
// default: it is side- and price-neutral and keeps replay deterministic
// regardless of map iteration order.
type ProportionalClosure struct{}

func (ProportionalClosure) Remove(ix *PriceIndex, target float64, ref models.Candle) (float64, int) {
	long, short := ix.TotalVolume()
	total := long + short
	if total <= 0 || target <= 0 {
		return 0, 0
	}
	if total <= target+minVolume {
		ix.Clear()
		return total, 0
	}

	factor := 1 - target/total
	anomalies := 0
	for _, price := range ix.Prices() {
		kept := ix.Level(price)[:0]
		for _, p := range ix.Level(price) {
			p.Volume *= factor
			if p.Volume < 0 {
				// float drift past zero: clamp and drop
				p.Volume = 0
				anomalies++
				continue
			}
			if p.Volume < minVolume {
				continue
			}
			kept = append(kept, p)
		}
		ix.SetLevel(price, kept)
	}
	return target, anomalies
}

// NearestFirstClosure drains positions whose trigger price is closest to the
// candle close first, on the assumption that positions near the money are
// the most likely voluntary exits. Alternative to ProportionalClosure.
type NearestFirstClosure struct{}

func (NearestFirstClosure) Remove(ix *PriceIndex, target float64, ref models.Candle) (float64, int) {
	if target <= 0 || ix.Len() == 0 {
		return 0, 0
	}
	prices := ix.Prices()
	sort.Slice(prices, func(i, j int) bool {
		di, dj := math.Abs(prices[i]-ref.Close), math.Abs(prices[j]-ref.Close)
		if di != dj {
			return di < dj
		}
		return prices[i] < prices[j]
	})

	removed := 0.0
	anomalies := 0
	for _, price := range prices {
		remaining := target - removed
		if remaining <= minVolume {
			break
		}
		ps := ix.Level(price)
		levelVol := 0.0
		for _, p := range ps {
			levelVol += p.Volume
		}
		if levelVol <= remaining+minVolume {
			ix.SetLevel(price, nil)
			removed += levelVol
			continue
		}
		// partial drain: scale the level pro-rata
		factor := 1 - remaining/levelVol
		kept := ps[:0]
		for _, p := range ps {
			p.Volume *= factor
			if p.Volume < 0 {
				p.Volume = 0
				anomalies++
				continue
			}
			if p.Volume < minVolume {
				continue
			}
			kept = append(kept, p)
		}
		ix.SetLevel(price, kept)
		removed += remaining
	}
	return removed, anomalies
}

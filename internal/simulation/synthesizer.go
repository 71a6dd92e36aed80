package simulation

import (
	"fmt"

	"LiqMap/internal/domain/models"
)

// Synthesizer converts a positive open-interest delta into a batch of
// leveraged positions whose volumes sum to the delta, split across the
// configured leverage-tier distribution.
type Synthesizer struct {
	dist   Distribution
	margin MarginProvider
	side   SidePolicy
}

// NewSynthesizer validates the distribution and returns a synthesizer.
func NewSynthesizer(dist Distribution, margin MarginProvider, side SidePolicy) (*Synthesizer, error) {
	if err := dist.Validate(); err != nil {
		return nil, err
	}
	if margin == nil {
		return nil, fmt.Errorf("%w: nil margin provider", ErrInvalidInput)
	}
	if side == nil {
		return nil, fmt.Errorf("%w: nil side policy", ErrInvalidInput)
	}
	return &Synthesizer{dist: dist, margin: margin, side: side}, nil
}

// Synthesize builds positions for delta notional volume created during c.
// The candle close is taken as the entry price for every tier; each tier
// yields up to two positions (one per side). Tiers or sides whose share is
// below the representable minimum are skipped rather than creating
// zero-volume positions. Returned positions timestamp at the candle bucket
// with no consumption time.
func (s *Synthesizer) Synthesize(c models.Candle, delta float64) ([]*models.LiquidationPosition, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("%w: non-positive delta %v", ErrInvalidInput, delta)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: candle: %v", ErrInvalidInput, err)
	}

	longFrac := s.side.LongFraction(c)
	if longFrac < 0 {
		longFrac = 0
	}
	if longFrac > 1 {
		longFrac = 1
	}

	out := make([]*models.LiquidationPosition, 0, len(s.dist)*2)
	for _, tier := range s.dist {
		tierVol := delta * tier.Weight
		for _, part := range [2]struct {
			side models.Side
			vol  float64
		}{
			{models.SideLong, tierVol * longFrac},
			{models.SideShort, tierVol * (1 - longFrac)},
		} {
			if part.vol < minVolume {
				continue
			}
			rate := s.margin.MarginRate(part.vol)
			trigger, err := TriggerPrice(c.Close, tier.Leverage, part.side, rate)
			if err != nil {
				return nil, err
			}
			if trigger <= 0 {
				// degenerate tier (1x long at zero margin); skip rather
				// than index an untriggerable level
				continue
			}
			out = append(out, &models.LiquidationPosition{
				Symbol:       c.Symbol,
				EntryPrice:   c.Close,
				TriggerPrice: trigger,
				Volume:       part.vol,
				Side:         part.side,
				Leverage:     tier.Leverage,
				CreatedAt:    c.Bucket,
			})
		}
	}
	return out, nil
}

package models

import "time"

// Side of a synthetic leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// LiquidationPosition is a synthetic leveraged position tracked by the
// simulation. Created in batches when open interest rises; the trigger price
// is fixed at creation and never recomputed. ConsumedAt is set once when the
// engine detects a price crossing, after which the position stops counting
// toward any snapshot.
type LiquidationPosition struct {
	Symbol       string
	EntryPrice   float64
	TriggerPrice float64
	Volume       float64
	Side         Side
	Leverage     int
	CreatedAt    time.Time
	ConsumedAt   *time.Time
}

// Active reports whether the position still contributes to snapshots.
func (p *LiquidationPosition) Active() bool { return p.ConsumedAt == nil }

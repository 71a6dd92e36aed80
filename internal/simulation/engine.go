package simulation

import (
	"fmt"
	"time"

	"LiqMap/internal/domain/models"
	applogger "LiqMap/pkg/logger"
)

// TickResult summarizes the state transitions applied during one tick.
type TickResult struct {
	Timestamp         time.Time
	PositionsCreated  int
	PositionsConsumed int
	CreatedVolume     float64
	ConsumedVolume    float64
	ClosedVolume      float64
	Anomalies         int
}

// Engine is the single-threaded state machine over the active-position
// index. Each tick runs, in strict order: a consumption pass (price
// crossings), then either a creation pass (positive OI delta) or a closure
// pass (negative delta). Ticks must arrive in strictly increasing timestamp
// order; a violation rejects the tick without touching the index.
//
// An Engine serves exactly one symbol and owns its index exclusively.
// Concurrent symbols are separate engines on separate goroutines.
type Engine struct {
	symbol  string
	synth   *Synthesizer
	closure ClosurePolicy
	ix      *PriceIndex
	last    time.Time
	l       *applogger.Logger
}

func NewEngine(symbol string, synth *Synthesizer, closure ClosurePolicy) (*Engine, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol empty", ErrInvalidInput)
	}
	if synth == nil {
		return nil, fmt.Errorf("%w: nil synthesizer", ErrInvalidInput)
	}
	if closure == nil {
		closure = ProportionalClosure{}
	}
	return &Engine{symbol: symbol, synth: synth, closure: closure, ix: NewPriceIndex()}, nil
}

// SetLogger injects a structured logger for anomaly diagnostics.
func (e *Engine) SetLogger(l *applogger.Logger) { e.l = l }

// Index exposes the active-position index for read-only projection by the
// aggregator. Callers must not mutate it.
func (e *Engine) Index() *PriceIndex { return e.ix }

// Symbol returns the symbol this engine simulates.
func (e *Engine) Symbol() string { return e.symbol }

// Apply advances the simulation by one tick. oiDelta is the signed
// open-interest change paired with the candle; a missing sample is zero.
func (e *Engine) Apply(c models.Candle, oiDelta float64) (TickResult, error) {
	// Preconditions first: nothing below may run against a bad tick.
	if err := c.Validate(); err != nil {
		return TickResult{}, fmt.Errorf("%w: candle: %v", ErrInvalidInput, err)
	}
	if !e.last.IsZero() && !c.Bucket.After(e.last) {
		return TickResult{}, fmt.Errorf("%w: tick %s not after %s",
			ErrOrderingViolation, c.Bucket.Format(time.RFC3339), e.last.Format(time.RFC3339))
	}

	res := TickResult{Timestamp: c.Bucket}

	// 1. Consumption pass: positions whose trigger the candle's range
	// crossed leave the index for good.
	for _, price := range e.ix.Prices() {
		ps := e.ix.Level(price)
		kept := ps[:0]
		for _, p := range ps {
			if crossed(p.Side, price, c) {
				t := c.Bucket
				p.ConsumedAt = &t
				res.PositionsConsumed++
				res.ConsumedVolume += p.Volume
				continue
			}
			kept = append(kept, p)
		}
		e.ix.SetLevel(price, kept)
	}

	// 2. Creation or closure pass, never both in one tick.
	switch {
	case oiDelta > 0:
		created, err := e.synth.Synthesize(c, oiDelta)
		if err != nil {
			return TickResult{}, err
		}
		for _, p := range created {
			e.ix.Add(p)
			res.CreatedVolume += p.Volume
		}
		res.PositionsCreated = len(created)
	case oiDelta < 0:
		removed, anomalies := e.closure.Remove(e.ix, -oiDelta, c)
		res.ClosedVolume = removed
		res.Anomalies += anomalies
		if anomalies > 0 && e.l != nil {
			e.l.Warn("closure clamped negative volumes",
				applogger.String("symbol", e.symbol),
				applogger.Int("count", anomalies),
				applogger.String("tick", c.Bucket.Format(time.RFC3339)),
			)
		}
	}

	e.last = c.Bucket
	return res, nil
}

// crossed reports whether the candle's range reached the trigger price.
func crossed(side models.Side, trigger float64, c models.Candle) bool {
	if side == models.SideLong {
		return c.Low <= trigger
	}
	return c.High >= trigger
}

package models

import (
	"fmt"
	"time"
)

// Candle represents one fixed-interval OHLCV bar for a symbol.
// Immutable once read from the market data store.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate checks the OHLC invariants.
func (c Candle) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if c.Bucket.IsZero() {
		return fmt.Errorf("bucket time zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("high %v below open/close", c.High)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("low %v above open/close", c.Low)
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume")
	}
	return nil
}

// OpenInterestSample is a point-in-time total notional of open positions,
// with the signed delta from the prior sample. Supplied externally.
type OpenInterestSample struct {
	Symbol    string
	Timestamp time.Time
	Value     float64
	Delta     float64
}

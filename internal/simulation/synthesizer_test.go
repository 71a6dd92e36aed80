package simulation

import (
	"errors"
	"math"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
)

func testCandle(ts time.Time, open, high, low, close float64) models.Candle {
	return models.Candle{
		Bucket: ts, Symbol: "BTCUSDT",
		Open: open, High: high, Low: low, Close: close, Volume: 100,
	}
}

func newTestSynthesizer(t *testing.T) *Synthesizer {
	t.Helper()
	margin, err := NewFlatMargin(0.004)
	if err != nil {
		t.Fatalf("flat margin: %v", err)
	}
	side, err := NewCandleDirectionPolicy(0.7)
	if err != nil {
		t.Fatalf("side policy: %v", err)
	}
	s, err := NewSynthesizer(DefaultDistribution(), margin, side)
	if err != nil {
		t.Fatalf("synthesizer: %v", err)
	}
	return s
}

func TestSynthesizeVolumesSumToDelta(t *testing.T) {
	s := newTestSynthesizer(t)
	c := testCandle(time.Unix(1700000000, 0), 50000, 51200, 49900, 51000)

	ps, err := s.Synthesize(c, 1_000_000)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	sum := 0.0
	for _, p := range ps {
		if p.Volume <= 0 {
			t.Fatalf("zero-volume position emitted")
		}
		if p.EntryPrice != c.Close {
			t.Fatalf("entry %v, want close %v", p.EntryPrice, c.Close)
		}
		if !p.CreatedAt.Equal(c.Bucket) {
			t.Fatalf("created at %v, want %v", p.CreatedAt, c.Bucket)
		}
		if p.ConsumedAt != nil {
			t.Fatalf("fresh position already consumed")
		}
		sum += p.Volume
	}
	if math.Abs(sum-1_000_000) > 1e-6 {
		t.Fatalf("volumes sum to %v, want 1000000", sum)
	}
	// five tiers, two sides each
	if len(ps) != 10 {
		t.Fatalf("got %d positions, want 10", len(ps))
	}
}

func TestSynthesizeSideBias(t *testing.T) {
	s := newTestSynthesizer(t)
	up := testCandle(time.Unix(1700000000, 0), 50000, 51200, 49900, 51000)

	ps, err := s.Synthesize(up, 1000)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	long, short := 0.0, 0.0
	for _, p := range ps {
		if p.Side == models.SideLong {
			long += p.Volume
		} else {
			short += p.Volume
		}
	}
	if math.Abs(long-700) > 1e-9 || math.Abs(short-300) > 1e-9 {
		t.Fatalf("up candle split long=%v short=%v, want 700/300", long, short)
	}
}

func TestSynthesizeDistinctTriggersPerTier(t *testing.T) {
	s := newTestSynthesizer(t)
	c := testCandle(time.Unix(1700000000, 0), 50000, 51200, 49900, 51000)

	ps, err := s.Synthesize(c, 1_000_000)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	seen := make(map[float64]bool)
	for _, p := range ps {
		if seen[p.TriggerPrice] {
			t.Fatalf("duplicate trigger %v", p.TriggerPrice)
		}
		seen[p.TriggerPrice] = true
		if p.Side == models.SideLong && p.TriggerPrice >= c.Close {
			t.Fatalf("long trigger %v not below entry %v", p.TriggerPrice, c.Close)
		}
		if p.Side == models.SideShort && p.TriggerPrice <= c.Close {
			t.Fatalf("short trigger %v not above entry %v", p.TriggerPrice, c.Close)
		}
	}
}

func TestSynthesizeSkipsDustTiers(t *testing.T) {
	s := newTestSynthesizer(t)
	c := testCandle(time.Unix(1700000000, 0), 50000, 51200, 49900, 51000)

	// delta so small every tier share rounds below the representable minimum
	ps, err := s.Synthesize(c, 1e-12)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(ps) != 0 {
		t.Fatalf("expected no positions for dust delta, got %d", len(ps))
	}
}

func TestSynthesizeRejectsBadInputs(t *testing.T) {
	s := newTestSynthesizer(t)
	c := testCandle(time.Unix(1700000000, 0), 50000, 51200, 49900, 51000)

	if _, err := s.Synthesize(c, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero delta: expected ErrInvalidInput, got %v", err)
	}
	bad := c
	bad.High = 40000 // high below open violates OHLC invariant
	if _, err := s.Synthesize(bad, 1000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad candle: expected ErrInvalidInput, got %v", err)
	}
}

func TestDistributionValidate(t *testing.T) {
	if err := DefaultDistribution().Validate(); err != nil {
		t.Fatalf("default distribution invalid: %v", err)
	}
	bad := Distribution{{Leverage: 10, Weight: 0.5}, {Leverage: 25, Weight: 0.4}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("weights not summing to 1: expected ErrInvalidInput, got %v", err)
	}
	dup := Distribution{{Leverage: 10, Weight: 0.5}, {Leverage: 10, Weight: 0.5}}
	if err := dup.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate tier: expected ErrInvalidInput, got %v", err)
	}
}

func TestTieredMarginLookup(t *testing.T) {
	tm, err := NewTieredMargin([]MarginTier{
		{MaxNotional: 50_000, Rate: 0.004},
		{MaxNotional: 250_000, Rate: 0.005},
		{MaxNotional: 1_000_000, Rate: 0.01},
	})
	if err != nil {
		t.Fatalf("tiered margin: %v", err)
	}
	if r := tm.MarginRate(10_000); r != 0.004 {
		t.Fatalf("rate for 10k = %v, want 0.004", r)
	}
	if r := tm.MarginRate(100_000); r != 0.005 {
		t.Fatalf("rate for 100k = %v, want 0.005", r)
	}
	if r := tm.MarginRate(5_000_000); r != 0.01 {
		t.Fatalf("rate above table = %v, want top tier 0.01", r)
	}
}

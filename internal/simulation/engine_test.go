package simulation

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine("BTCUSDT", newTestSynthesizer(t), ProportionalClosure{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func tick(i int) time.Time {
	return time.Unix(1700000000, 0).Add(time.Duration(i) * 5 * time.Minute)
}

func activeVolume(ix *PriceIndex) float64 {
	long, short := ix.TotalVolume()
	return long + short
}

func TestEngineCrossingDetection(t *testing.T) {
	e := newTestEngine(t)
	e.ix.Add(&models.LiquidationPosition{
		Symbol: "BTCUSDT", EntryPrice: 100, TriggerPrice: 95,
		Volume: 10, Side: models.SideLong, Leverage: 10, CreatedAt: tick(0),
	})

	// low reaches the trigger: consumed this tick
	res, err := e.Apply(testCandle(tick(1), 100, 100.5, 94, 96), 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.PositionsConsumed != 1 || res.ConsumedVolume != 10 {
		t.Fatalf("consumed=%d vol=%v, want 1/10", res.PositionsConsumed, res.ConsumedVolume)
	}
	if e.ix.Len() != 0 {
		t.Fatalf("consumed position still indexed")
	}
}

func TestEngineNoCrossingAboveTrigger(t *testing.T) {
	e := newTestEngine(t)
	e.ix.Add(&models.LiquidationPosition{
		Symbol: "BTCUSDT", EntryPrice: 100, TriggerPrice: 95,
		Volume: 10, Side: models.SideLong, Leverage: 10, CreatedAt: tick(0),
	})

	res, err := e.Apply(testCandle(tick(1), 100, 100.5, 95.5, 96), 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.PositionsConsumed != 0 {
		t.Fatalf("position consumed without crossing")
	}
	if e.ix.Len() != 1 {
		t.Fatalf("active position dropped")
	}
}

func TestEngineShortCrossing(t *testing.T) {
	e := newTestEngine(t)
	e.ix.Add(&models.LiquidationPosition{
		Symbol: "BTCUSDT", EntryPrice: 100, TriggerPrice: 110,
		Volume: 7, Side: models.SideShort, Leverage: 10, CreatedAt: tick(0),
	})

	res, err := e.Apply(testCandle(tick(1), 105, 111, 104, 108), 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.PositionsConsumed != 1 {
		t.Fatalf("short not consumed when high crossed trigger")
	}
}

func TestEngineOrderingRejectionLeavesIndexUntouched(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Apply(testCandle(tick(1), 50000, 51200, 49900, 51000), 1_000_000); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := activeVolume(e.ix)
	count := e.ix.Len()

	// same timestamp must be rejected
	if _, err := e.Apply(testCandle(tick(1), 51000, 51500, 50800, 51200), 500); !errors.Is(err, ErrOrderingViolation) {
		t.Fatalf("expected ErrOrderingViolation, got %v", err)
	}
	// older timestamp too
	if _, err := e.Apply(testCandle(tick(0), 51000, 51500, 50800, 51200), 500); !errors.Is(err, ErrOrderingViolation) {
		t.Fatalf("expected ErrOrderingViolation, got %v", err)
	}

	if activeVolume(e.ix) != before || e.ix.Len() != count {
		t.Fatalf("rejected tick mutated the index")
	}
}

func TestEngineRejectsInvalidCandle(t *testing.T) {
	e := newTestEngine(t)
	bad := testCandle(tick(1), 100, 90, 80, 95) // high < open
	if _, err := e.Apply(bad, 1000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if e.ix.Len() != 0 {
		t.Fatalf("invalid candle mutated the index")
	}
}

func TestEngineConservation(t *testing.T) {
	e := newTestEngine(t)
	candles := []models.Candle{
		testCandle(tick(1), 50000, 51200, 49900, 51000),
		testCandle(tick(2), 51000, 51500, 47000, 48000),
		testCandle(tick(3), 48000, 49500, 47800, 49000),
		testCandle(tick(4), 49000, 49200, 48100, 48500),
	}
	deltas := []float64{1_000_000, 250_000, -400_000, 0}

	prev := 0.0
	for i, c := range candles {
		res, err := e.Apply(c, deltas[i])
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		now := activeVolume(e.ix)
		want := prev + res.CreatedVolume - res.ConsumedVolume - res.ClosedVolume
		if math.Abs(now-want) > 1e-6 {
			t.Fatalf("tick %d: active volume %v, conservation expects %v", i, now, want)
		}
		prev = now
	}
}

func TestEngineProportionalClosureRemovesExactVolume(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Apply(testCandle(tick(1), 50000, 51200, 49900, 51000), 1_000_000); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := activeVolume(e.ix)

	// quiet candle, no crossings, OI drops by 300k
	res, err := e.Apply(testCandle(tick(2), 51000, 51050, 50950, 51000), -300_000)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if math.Abs(res.ClosedVolume-300_000) > 1e-6 {
		t.Fatalf("closed %v, want 300000", res.ClosedVolume)
	}
	if math.Abs(activeVolume(e.ix)-(before-300_000)) > 1e-6 {
		t.Fatalf("active volume %v after closure, want %v", activeVolume(e.ix), before-300_000)
	}
}

func TestEngineClosureBeyondActiveClearsIndex(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Apply(testCandle(tick(1), 50000, 51200, 49900, 51000), 1000); err != nil {
		t.Fatalf("apply: %v", err)
	}
	res, err := e.Apply(testCandle(tick(2), 51000, 51050, 50950, 51000), -5000)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if e.ix.Len() != 0 {
		t.Fatalf("index not cleared when closure exceeds active volume")
	}
	if res.ClosedVolume > 1000+1e-6 {
		t.Fatalf("closed %v, cannot exceed active 1000", res.ClosedVolume)
	}
}

func TestEngineMonotonicConsumption(t *testing.T) {
	e := newTestEngine(t)
	agg, err := NewAggregator(100)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	if _, err := e.Apply(testCandle(tick(1), 50000, 51200, 49900, 51000), 1_000_000); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// crash candle consumes every long
	res, err := e.Apply(testCandle(tick(2), 51000, 51000, 100, 40000), 0)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.PositionsConsumed == 0 {
		t.Fatalf("crash candle consumed nothing")
	}
	snap := agg.Snapshot("BTCUSDT", e.Index(), res)
	consumedBuckets := make(map[float64]bool)
	for _, lvl := range snap.Levels {
		if lvl.LongDensity > 0 && lvl.Price < 40000 {
			consumedBuckets[lvl.Price] = true
		}
	}
	if len(consumedBuckets) != 0 {
		t.Fatalf("consumed long levels reappeared in snapshot: %v", consumedBuckets)
	}

	// later quiet ticks must never resurrect them
	for i := 3; i < 6; i++ {
		res, err = e.Apply(testCandle(tick(i), 40000, 40100, 39900, 40000), 0)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if res.PositionsConsumed != 0 {
			t.Fatalf("tick %d: consumed positions reappeared and were consumed again", i)
		}
	}
}

func TestEngineIdempotentReplay(t *testing.T) {
	run := func() []byte {
		e := newTestEngine(t)
		agg, err := NewAggregator(100)
		if err != nil {
			t.Fatalf("aggregator: %v", err)
		}
		candles := []models.Candle{
			testCandle(tick(1), 50000, 51200, 49900, 51000),
			testCandle(tick(2), 51000, 51500, 47000, 48000),
			testCandle(tick(3), 48000, 49500, 47800, 49000),
		}
		deltas := []float64{1_000_000, -200_000, 300_000}
		var out []byte
		for i, c := range candles {
			res, err := e.Apply(c, deltas[i])
			if err != nil {
				t.Fatalf("tick %d: %v", i, err)
			}
			b, err := json.Marshal(agg.Snapshot("BTCUSDT", e.Index(), res))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			out = append(out, b...)
		}
		return out
	}

	a, b := run(), run()
	if string(a) != string(b) {
		t.Fatalf("replay produced different snapshot bytes")
	}
}

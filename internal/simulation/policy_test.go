package simulation

import (
	"math"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
)

func TestCandleDirectionPolicy(t *testing.T) {
	p, err := NewCandleDirectionPolicy(0.7)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	ts := time.Unix(1700000000, 0)
	if f := p.LongFraction(testCandle(ts, 100, 110, 99, 105)); math.Abs(f-0.7) > 1e-12 {
		t.Fatalf("up candle fraction %v, want 0.7", f)
	}
	// 1-bias in float64 is not exactly 0.3
	if f := p.LongFraction(testCandle(ts, 105, 106, 95, 100)); math.Abs(f-0.3) > 1e-12 {
		t.Fatalf("down candle fraction %v, want 0.3", f)
	}
	if f := p.LongFraction(testCandle(ts, 100, 101, 99, 100)); math.Abs(f-0.5) > 1e-12 {
		t.Fatalf("doji fraction %v, want 0.5", f)
	}
	if _, err := NewCandleDirectionPolicy(0.3); err == nil {
		t.Fatalf("bias below 0.5 accepted")
	}
}

func seedIndex() *PriceIndex {
	ix := NewPriceIndex()
	now := time.Unix(1700000000, 0)
	for _, p := range []struct {
		trigger, vol float64
		side         models.Side
	}{
		{45000, 100, models.SideLong},
		{48000, 200, models.SideLong},
		{52000, 300, models.SideShort},
		{55000, 400, models.SideShort},
	} {
		ix.Add(&models.LiquidationPosition{
			Symbol: "BTCUSDT", EntryPrice: 50000, TriggerPrice: p.trigger,
			Volume: p.vol, Side: p.side, Leverage: 10, CreatedAt: now,
		})
	}
	return ix
}

func TestProportionalClosureScalesProRata(t *testing.T) {
	ix := seedIndex()
	ref := testCandle(time.Unix(1700000300, 0), 50000, 50100, 49900, 50000)

	removed, anomalies := ProportionalClosure{}.Remove(ix, 500, ref)
	if anomalies != 0 {
		t.Fatalf("unexpected anomalies: %d", anomalies)
	}
	if math.Abs(removed-500) > 1e-9 {
		t.Fatalf("removed %v, want 500", removed)
	}
	// 500 of 1000: every position halves
	for _, price := range ix.Prices() {
		for _, p := range ix.Level(price) {
			var want float64
			switch price {
			case 45000:
				want = 50
			case 48000:
				want = 100
			case 52000:
				want = 150
			case 55000:
				want = 200
			}
			if math.Abs(p.Volume-want) > 1e-9 {
				t.Fatalf("level %v volume %v, want %v", price, p.Volume, want)
			}
		}
	}
}

func TestProportionalClosureDrainsEverything(t *testing.T) {
	ix := seedIndex()
	ref := testCandle(time.Unix(1700000300, 0), 50000, 50100, 49900, 50000)
	removed, _ := ProportionalClosure{}.Remove(ix, 10_000, ref)
	if math.Abs(removed-1000) > 1e-9 {
		t.Fatalf("removed %v, want full 1000", removed)
	}
	if ix.Len() != 0 {
		t.Fatalf("index not empty after over-removal")
	}
}

func TestNearestFirstClosureDrainsNearestLevel(t *testing.T) {
	ix := seedIndex()
	// close=51500: nearest level is 52000 (d=500), then 48000 (d=3500)
	ref := testCandle(time.Unix(1700000300, 0), 51000, 51600, 50900, 51500)

	removed, _ := NearestFirstClosure{}.Remove(ix, 350, ref)
	if math.Abs(removed-350) > 1e-9 {
		t.Fatalf("removed %v, want 350", removed)
	}
	// 52000 held 300 and drains fully; the remaining 50 comes off 48000
	if ps := ix.Level(52000); len(ps) != 0 {
		t.Fatalf("nearest level 52000 not fully drained")
	}
	ps := ix.Level(48000)
	if len(ps) != 1 || math.Abs(ps[0].Volume-150) > 1e-9 {
		t.Fatalf("level 48000 volume %v, want 150", ps[0].Volume)
	}
	// far levels untouched
	if ps := ix.Level(45000); len(ps) != 1 || ps[0].Volume != 100 {
		t.Fatalf("level 45000 touched")
	}
	if ps := ix.Level(55000); len(ps) != 1 || ps[0].Volume != 400 {
		t.Fatalf("level 55000 touched")
	}
}

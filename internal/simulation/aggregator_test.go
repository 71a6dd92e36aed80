package simulation

import (
	"math"
	"sort"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
)

func TestAggregatorBucketsAndSorts(t *testing.T) {
	agg, err := NewAggregator(100)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	ix := NewPriceIndex()
	now := time.Unix(1700000000, 0)
	add := func(trigger, vol float64, side models.Side) {
		ix.Add(&models.LiquidationPosition{
			Symbol: "BTCUSDT", EntryPrice: 50000, TriggerPrice: trigger,
			Volume: vol, Side: side, Leverage: 10, CreatedAt: now,
		})
	}
	add(45040, 10, models.SideLong)  // bucket 45000
	add(45049, 5, models.SideLong)   // bucket 45000, same cell
	add(45051, 3, models.SideLong)   // bucket 45100
	add(54960, 7, models.SideShort)  // bucket 55000
	add(54940, 2, models.SideShort)  // bucket 54900

	snap := agg.Snapshot("BTCUSDT", ix, TickResult{Timestamp: now, PositionsCreated: 5})

	if !sort.SliceIsSorted(snap.Levels, func(i, j int) bool {
		return snap.Levels[i].Price < snap.Levels[j].Price
	}) {
		t.Fatalf("levels not sorted ascending: %+v", snap.Levels)
	}
	if len(snap.Levels) != 4 {
		t.Fatalf("got %d levels, want 4", len(snap.Levels))
	}

	byPrice := make(map[float64]models.HeatmapLevel)
	for _, lvl := range snap.Levels {
		byPrice[lvl.Price] = lvl
	}
	if got := byPrice[45000].LongDensity; math.Abs(got-15) > 1e-9 {
		t.Fatalf("bucket 45000 long density %v, want 15", got)
	}
	if got := byPrice[45100].LongDensity; math.Abs(got-3) > 1e-9 {
		t.Fatalf("bucket 45100 long density %v, want 3", got)
	}
	if got := byPrice[55000].ShortDensity; math.Abs(got-7) > 1e-9 {
		t.Fatalf("bucket 55000 short density %v, want 7", got)
	}

	if math.Abs(snap.Meta.TotalLongVolume-18) > 1e-9 || math.Abs(snap.Meta.TotalShortVolume-9) > 1e-9 {
		t.Fatalf("meta totals %v/%v, want 18/9", snap.Meta.TotalLongVolume, snap.Meta.TotalShortVolume)
	}
	if snap.Meta.PositionsCreated != 5 || snap.Meta.PositionsConsumed != 0 {
		t.Fatalf("meta counters %+v", snap.Meta)
	}
}

func TestAggregatorSparseOmitsEmptyIndex(t *testing.T) {
	agg, err := NewAggregator(100)
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	snap := agg.Snapshot("BTCUSDT", NewPriceIndex(), TickResult{Timestamp: time.Unix(1700000000, 0)})
	if len(snap.Levels) != 0 {
		t.Fatalf("empty index produced %d levels", len(snap.Levels))
	}
	if snap.Meta.TotalLongVolume != 0 || snap.Meta.TotalShortVolume != 0 {
		t.Fatalf("empty index produced non-zero totals")
	}
}

func TestAggregatorRejectsBadBucket(t *testing.T) {
	if _, err := NewAggregator(0); err == nil {
		t.Fatalf("expected error for zero bucket size")
	}
	if _, err := NewAggregator(-100); err == nil {
		t.Fatalf("expected error for negative bucket size")
	}
}

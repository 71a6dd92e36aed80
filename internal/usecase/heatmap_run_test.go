package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
	"LiqMap/internal/simulation"
)

func newTestFactory(t *testing.T) *SimFactory {
	t.Helper()
	margin, err := simulation.NewFlatMargin(0.004)
	if err != nil {
		t.Fatalf("flat margin: %v", err)
	}
	side, err := simulation.NewCandleDirectionPolicy(0.7)
	if err != nil {
		t.Fatalf("side policy: %v", err)
	}
	return &SimFactory{
		Dist:    simulation.DefaultDistribution(),
		Margin:  margin,
		Side:    side,
		Closure: simulation.ProportionalClosure{},
		Bucket:  100,
	}
}

func bucketTime(i int) time.Time {
	return time.Unix(1700000000, 0).Add(time.Duration(i) * 5 * time.Minute)
}

func candleAt(ts time.Time, open, high, low, close float64) models.Candle {
	return models.Candle{
		Bucket: ts, Symbol: "BTCUSDT",
		Open: open, High: high, Low: low, Close: close,
		Volume: 1,
	}
}

func TestMergeTicksAlignsSamplesToIntervals(t *testing.T) {
	candles := []models.Candle{
		candleAt(bucketTime(0), 50000, 50100, 49900, 50050),
		candleAt(bucketTime(1), 50050, 50200, 50000, 50100),
		candleAt(bucketTime(2), 50100, 50300, 50050, 50200),
	}
	samples := []models.OpenInterestSample{
		{Timestamp: bucketTime(0).Add(-time.Minute), Delta: 999},  // before first candle: dropped
		{Timestamp: bucketTime(0), Delta: 100},                    // interval start is inclusive
		{Timestamp: bucketTime(0).Add(2 * time.Minute), Delta: 50},
		{Timestamp: bucketTime(1).Add(4 * time.Minute), Delta: -30},
		{Timestamp: bucketTime(3), Delta: 777}, // past the last interval: dropped
	}

	ticks := MergeTicks(candles, samples, domrepo.TF5m)
	if len(ticks) != 3 {
		t.Fatalf("got %d ticks, want 3", len(ticks))
	}
	want := []float64{150, -30, 0}
	for i, w := range want {
		if math.Abs(ticks[i].OIDelta-w) > 1e-9 {
			t.Fatalf("tick %d delta %v, want %v", i, ticks[i].OIDelta, w)
		}
	}
	for i := range ticks {
		if !ticks[i].Candle.Bucket.Equal(candles[i].Bucket) {
			t.Fatalf("tick %d candle misaligned", i)
		}
	}
}

func TestMergeTicksEmptyInputs(t *testing.T) {
	if got := MergeTicks(nil, nil, domrepo.TF5m); len(got) != 0 {
		t.Fatalf("nil candles produced %d ticks", len(got))
	}
	candles := []models.Candle{candleAt(bucketTime(0), 1, 2, 0.5, 1.5)}
	ticks := MergeTicks(candles, nil, domrepo.TF5m)
	if len(ticks) != 1 || ticks[0].OIDelta != 0 {
		t.Fatalf("no samples should yield one zero-delta tick, got %+v", ticks)
	}
}

// Two runners built from the same factory must produce byte-identical
// snapshot streams for the same ticks.
func TestRunnerDeterministicReplay(t *testing.T) {
	f := newTestFactory(t)
	ticks := []Tick{
		{Candle: candleAt(bucketTime(0), 50000, 51100, 49950, 51000), OIDelta: 1_000_000},
		{Candle: candleAt(bucketTime(1), 51000, 51050, 50950, 51000), OIDelta: 0},
		{Candle: candleAt(bucketTime(2), 51000, 51020, 48900, 49000), OIDelta: -500_000},
		{Candle: candleAt(bucketTime(3), 49000, 49500, 48800, 49200), OIDelta: 250_000},
	}

	run := func() []*models.HeatmapSnapshot {
		engine, err := f.NewEngine("BTCUSDT")
		if err != nil {
			t.Fatalf("engine: %v", err)
		}
		agg, err := f.NewAggregator()
		if err != nil {
			t.Fatalf("aggregator: %v", err)
		}
		out, err := NewRunner(engine, agg, nil).Run(context.Background(), ticks)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return out
	}

	a, b := run(), run()
	if len(a) != len(ticks) || len(b) != len(ticks) {
		t.Fatalf("snapshot counts %d/%d, want %d", len(a), len(b), len(ticks))
	}
	for i := range a {
		ja, err := json.Marshal(a[i])
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		jb, err := json.Marshal(b[i])
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(ja) != string(jb) {
			t.Fatalf("tick %d diverged:\n%s\n%s", i, ja, jb)
		}
	}
}

func TestRunnerRunRejectsInvalidCandle(t *testing.T) {
	f := newTestFactory(t)
	engine, err := f.NewEngine("BTCUSDT")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	agg, err := f.NewAggregator()
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	r := NewRunner(engine, agg, nil)

	bad := candleAt(bucketTime(0), 100, 90, 110, 95) // high < low
	out, err := r.Run(context.Background(), []Tick{{Candle: bad}})
	if err == nil {
		t.Fatalf("invalid candle accepted")
	}
	if !errors.Is(err, simulation.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	if len(out) != 0 {
		t.Fatalf("failed tick emitted %d snapshots", len(out))
	}
}

func TestRunnerRunHonorsCancellation(t *testing.T) {
	f := newTestFactory(t)
	engine, err := f.NewEngine("BTCUSDT")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	agg, err := f.NewAggregator()
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	r := NewRunner(engine, agg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := r.Run(ctx, []Tick{{Candle: candleAt(bucketTime(0), 1, 2, 0.5, 1.5)}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(out) != 0 {
		t.Fatalf("cancelled run emitted %d snapshots", len(out))
	}
}

// Different symbols advance on independent locks; each goroutine replays its
// own ordered tick stream and all must complete without ordering errors.
func TestLiveSetStepsSymbolsConcurrently(t *testing.T) {
	s := NewLiveSet(newTestFactory(t), nil, nil)
	ctx := context.Background()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}
	const ticksPer = 50

	var wg sync.WaitGroup
	errCh := make(chan error, len(symbols))
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < ticksPer; i++ {
				c := candleAt(bucketTime(i), 50000, 50100, 49900, 50050)
				c.Symbol = sym
				if _, err := s.Step(ctx, sym, Tick{Candle: c, OIDelta: 1000}); err != nil {
					errCh <- fmt.Errorf("%s tick %d: %w", sym, i, err)
					return
				}
			}
		}(sym)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent step: %v", err)
	}
	if got := len(s.Symbols()); got != len(symbols) {
		t.Fatalf("got %d runners, want %d", got, len(symbols))
	}
}

func TestLiveSetIsolatesSymbols(t *testing.T) {
	s := NewLiveSet(newTestFactory(t), nil, nil)
	ctx := context.Background()

	tk := Tick{Candle: candleAt(bucketTime(0), 50000, 50100, 49900, 50050), OIDelta: 1000}
	if _, err := s.Step(ctx, "BTCUSDT", tk); err != nil {
		t.Fatalf("btc step: %v", err)
	}
	ethTick := tk
	ethTick.Candle.Symbol = "ETHUSDT"
	if _, err := s.Step(ctx, "ETHUSDT", ethTick); err != nil {
		t.Fatalf("eth step: %v", err)
	}

	syms := s.Symbols()
	if len(syms) != 2 {
		t.Fatalf("got %d runners, want 2: %v", len(syms), syms)
	}
}

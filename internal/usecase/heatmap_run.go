package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
	"LiqMap/internal/simulation"
	applogger "LiqMap/pkg/logger"
)

// Tick pairs one candle with the net open-interest delta observed over the
// candle's interval.
type Tick struct {
	Candle  models.Candle
	OIDelta float64
}

// MergeTicks aligns open-interest samples to candle intervals. A sample
// belongs to the candle whose interval [bucket, bucket+tf) contains its
// timestamp; deltas within one interval sum. Samples outside every interval
// are dropped. Both inputs must be sorted ascending.
func MergeTicks(candles []models.Candle, samples []models.OpenInterestSample, tf domrepo.Timeframe) []Tick {
	ticks := make([]Tick, len(candles))
	dur := tf.Duration()

	j := 0
	for i, c := range candles {
		ticks[i] = Tick{Candle: c}
		end := c.Bucket.Add(dur)

		for j < len(samples) && samples[j].Timestamp.Before(c.Bucket) {
			j++
		}
		for j < len(samples) && samples[j].Timestamp.Before(end) {
			ticks[i].OIDelta += samples[j].Delta
			j++
		}
	}
	return ticks
}

// SimFactory builds simulation engines and aggregators from one shared
// policy configuration, so live runners, backfill jobs, and ad-hoc
// simulations all use identical rules.
type SimFactory struct {
	Dist    simulation.Distribution
	Margin  simulation.MarginProvider
	Side    simulation.SidePolicy
	Closure simulation.ClosurePolicy
	Bucket  float64
}

// NewEngine creates a fresh engine for symbol.
func (f *SimFactory) NewEngine(symbol string) (*simulation.Engine, error) {
	synth, err := simulation.NewSynthesizer(f.Dist, f.Margin, f.Side)
	if err != nil {
		return nil, err
	}
	return simulation.NewEngine(symbol, synth, f.Closure)
}

// NewAggregator creates an aggregator with the configured price bucket.
func (f *SimFactory) NewAggregator() (*simulation.Aggregator, error) {
	return simulation.NewAggregator(f.Bucket)
}

// Runner advances one engine tick by tick and turns each tick into a
// snapshot.
type Runner struct {
	engine  *simulation.Engine
	agg     *simulation.Aggregator
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewRunner(engine *simulation.Engine, agg *simulation.Aggregator, metrics domrepo.Metrics) *Runner {
	return &Runner{engine: engine, agg: agg, metrics: metrics}
}

// SetLogger injects a structured logger.
func (r *Runner) SetLogger(l *applogger.Logger) { r.l = l }

// Symbol returns the engine's symbol.
func (r *Runner) Symbol() string { return r.engine.Symbol() }

// Step applies one tick and returns the resulting snapshot.
func (r *Runner) Step(ctx context.Context, t Tick) (*models.HeatmapSnapshot, error) {
	start := time.Now()
	res, err := r.engine.Apply(t.Candle, t.OIDelta)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordError("engine_apply")
		}
		return nil, err
	}

	snap := r.agg.Snapshot(r.engine.Symbol(), r.engine.Index(), res)
	if r.metrics != nil {
		r.metrics.RecordTick(r.engine.Symbol())
		r.metrics.RecordPositions(r.engine.Symbol(), res.PositionsCreated, res.PositionsConsumed)
		r.metrics.RecordActiveVolume(r.engine.Symbol(), snap.Meta.TotalLongVolume, snap.Meta.TotalShortVolume)
		r.metrics.RecordLatency("tick_apply", time.Since(start).Seconds())
	}
	return snap, nil
}

// Run replays ticks in order and returns one snapshot per tick. Cancellation
// is honored at tick boundaries; a partially applied tick never leaks out.
func (r *Runner) Run(ctx context.Context, ticks []Tick) ([]*models.HeatmapSnapshot, error) {
	out := make([]*models.HeatmapSnapshot, 0, len(ticks))
	for i, t := range ticks {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		snap, err := r.Step(ctx, t)
		if err != nil {
			if r.l != nil {
				r.l.Error("tick apply failed",
					applogger.String("symbol", r.engine.Symbol()),
					applogger.Int("tick", i),
					applogger.Error(err),
				)
			}
			return out, fmt.Errorf("tick %d: %w", i, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// LiveSet holds one live runner per symbol. Each runner carries its own lock,
// so steps for the same symbol serialize while different symbols advance
// concurrently. The set lock guards only the map.
type LiveSet struct {
	mu      sync.Mutex
	runners map[string]*liveRunner
	factory *SimFactory
	metrics domrepo.Metrics
	l       *applogger.Logger
}

type liveRunner struct {
	mu sync.Mutex
	r  *Runner
}

func NewLiveSet(factory *SimFactory, metrics domrepo.Metrics, l *applogger.Logger) *LiveSet {
	return &LiveSet{
		runners: make(map[string]*liveRunner),
		factory: factory,
		metrics: metrics,
		l:       l,
	}
}

// Step advances the runner for symbol, creating it on first use.
func (s *LiveSet) Step(ctx context.Context, symbol string, t Tick) (*models.HeatmapSnapshot, error) {
	lr, err := s.runner(symbol)
	if err != nil {
		return nil, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.r.Step(ctx, t)
}

func (s *LiveSet) runner(symbol string) (*liveRunner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lr, ok := s.runners[symbol]; ok {
		return lr, nil
	}

	engine, err := s.factory.NewEngine(symbol)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	agg, err := s.factory.NewAggregator()
	if err != nil {
		return nil, fmt.Errorf("new aggregator: %w", err)
	}
	engine.SetLogger(s.l)
	r := NewRunner(engine, agg, s.metrics)
	r.SetLogger(s.l)

	lr := &liveRunner{r: r}
	s.runners[symbol] = lr
	return lr, nil
}

// Symbols returns symbols with live runners.
func (s *LiveSet) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.runners))
	for sym := range s.runners {
		out = append(out, sym)
	}
	return out
}

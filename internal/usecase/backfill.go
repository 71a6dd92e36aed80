package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "LiqMap/internal/domain/repository"
	"LiqMap/pkg/cache"
	applogger "LiqMap/pkg/logger"
	"LiqMap/pkg/queue"
)

// BackfillPayload describes one historical recompute request.
type BackfillPayload struct {
	Symbol    string    `json:"symbol"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Timeframe string    `json:"timeframe"`
}

// BackfillJob recomputes snapshots over a historical range and persists them.
// Queued so large ranges run off the request path; a per-symbol lock keeps
// overlapping requests from racing each other.
type BackfillJob struct {
	heatmap *HeatmapUseCase
	snaps   domrepo.SnapshotStore
	locks   cache.Service
	l       *applogger.Logger
}

func NewBackfillJob(heatmap *HeatmapUseCase, snaps domrepo.SnapshotStore, locks cache.Service, l *applogger.Logger) *BackfillJob {
	return &BackfillJob{heatmap: heatmap, snaps: snaps, locks: locks, l: l}
}

func (j *BackfillJob) Name() string { return "heatmap-backfill" }

func (j *BackfillJob) Type() string { return "backfill" }

func (j *BackfillJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[BackfillPayload](payload)
	if err != nil {
		return fmt.Errorf("backfill payload: %w", err)
	}
	if p.Symbol == "" {
		return fmt.Errorf("backfill: symbol required")
	}

	lockKey := cache.Key("backfill:lock", p.Symbol)
	if j.locks != nil {
		ok, err := j.locks.TryLock(ctx, lockKey, 10*time.Minute)
		if err != nil {
			return fmt.Errorf("backfill lock: %w", err)
		}
		if !ok {
			j.l.Warn("backfill already running", applogger.String("symbol", p.Symbol))
			return nil
		}
		defer func() { _ = j.locks.Unlock(context.Background(), lockKey) }()
	}

	start := time.Now()
	snaps, err := j.heatmap.Simulate(ctx, SimulateParams{
		Symbol:    p.Symbol,
		From:      p.From,
		To:        p.To,
		Timeframe: domrepo.NormalizeTimeframe(p.Timeframe),
	})
	if err != nil {
		return fmt.Errorf("backfill simulate: %w", err)
	}
	if len(snaps) == 0 {
		j.l.Info("backfill: empty range", applogger.String("symbol", p.Symbol))
		return nil
	}

	if err := j.snaps.StoreBatch(ctx, snaps); err != nil {
		return fmt.Errorf("backfill store: %w", err)
	}

	j.l.Info("backfill complete",
		applogger.String("symbol", p.Symbol),
		applogger.Int("snapshots", len(snaps)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

var _ queue.Job = (*BackfillJob)(nil)

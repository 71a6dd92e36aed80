package usecase

import (
	"context"
	"fmt"
	"time"

	"LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
	xutil "LiqMap/pkg/util"
)

// HeatmapUseCase provides business logic for querying stored snapshots and
// running ad-hoc simulations over historical ranges.
type HeatmapUseCase struct {
	snaps   domrepo.SnapshotStore
	market  domrepo.MarketDataStore
	factory *SimFactory
}

func NewHeatmapUseCase(snaps domrepo.SnapshotStore, market domrepo.MarketDataStore, factory *SimFactory) *HeatmapUseCase {
	return &HeatmapUseCase{snaps: snaps, market: market, factory: factory}
}

type GetHeatmapParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Limit  int
}

type GetHeatmapResult struct {
	Symbol    string                    `json:"symbol"`
	From      time.Time                 `json:"from"`
	To        time.Time                 `json:"to"`
	Count     int                       `json:"count"`
	Snapshots []*models.HeatmapSnapshot `json:"snapshots"`
}

func (uc *HeatmapUseCase) GetHeatmap(ctx context.Context, p GetHeatmapParams) (*GetHeatmapResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 10000 {
		p.Limit = 10000
	}

	snaps, err := uc.snaps.Query(ctx, p.Symbol, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get heatmap: %w", err)
	}

	return &GetHeatmapResult{
		Symbol:    p.Symbol,
		From:      p.From,
		To:        p.To,
		Count:     len(snaps),
		Snapshots: snaps,
	}, nil
}

// GetLatest returns the most recent stored snapshot for symbol.
func (uc *HeatmapUseCase) GetLatest(ctx context.Context, symbol string) (*models.HeatmapSnapshot, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	snap, err := uc.snaps.Latest(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get latest: %w", err)
	}
	return snap, nil
}

type SimulateParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
}

// Simulate replays the historical range through a fresh engine and returns
// the resulting snapshots without persisting them. Deterministic: the same
// range always yields byte-identical output.
func (uc *HeatmapUseCase) Simulate(ctx context.Context, p SimulateParams) ([]*models.HeatmapSnapshot, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		p.Timeframe = domrepo.DefaultTimeframe()
	}
	// Align to candle boundaries so identical logical ranges hit identical rows.
	p.From, p.To = xutil.AlignFromTo(p.From, p.To, string(p.Timeframe))

	candles, err := uc.market.GetCandles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("simulate candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, nil
	}
	samples, err := uc.market.GetOpenInterest(ctx, p.Symbol, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("simulate open interest: %w", err)
	}

	engine, err := uc.factory.NewEngine(p.Symbol)
	if err != nil {
		return nil, err
	}
	agg, err := uc.factory.NewAggregator()
	if err != nil {
		return nil, err
	}

	runner := NewRunner(engine, agg, nil)
	return runner.Run(ctx, MergeTicks(candles, samples, p.Timeframe))
}

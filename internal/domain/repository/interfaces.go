package repository

import (
	"context"
	"time"

	"LiqMap/internal/domain/models"
)

// MarketDataStore provides read-only access to candles and open-interest
// samples. Populated by an external ingestion collaborator.
type MarketDataStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetOpenInterest(ctx context.Context, symbol string, from, to time.Time) ([]models.OpenInterestSample, error)
}

// SnapshotStore persists computed heatmap snapshots and serves range queries.
type SnapshotStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, s *models.HeatmapSnapshot) error
	StoreBatch(ctx context.Context, ss []*models.HeatmapSnapshot) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.HeatmapSnapshot, error)
	Latest(ctx context.Context, symbol string) (*models.HeatmapSnapshot, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotPublisher pushes snapshots to downstream consumers (Kafka, WS).
type SnapshotPublisher interface {
	Publish(ctx context.Context, s *models.HeatmapSnapshot) error
	PublishBatch(ctx context.Context, ss []*models.HeatmapSnapshot) error
	Close() error
}

// Metrics records operational counters for the simulation service.
type Metrics interface {
	RecordTick(symbol string)
	RecordPositions(symbol string, created, consumed int)
	RecordActiveVolume(symbol string, long, short float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"LiqMap/internal/domain/models"
	drepo "LiqMap/internal/domain/repository"
)

// SnapshotProcessor routes computed snapshots to storage and Kafka.
type SnapshotProcessor struct {
	pub     drepo.SnapshotPublisher
	store   drepo.SnapshotStore
	metrics drepo.Metrics
	backend string
}

// NewSnapshotProcessor creates a new SnapshotProcessor. Backend selects the
// destination: "clickhouse", "kafka", or "both".
func NewSnapshotProcessor(
	pub drepo.SnapshotPublisher,
	store drepo.SnapshotStore,
	metrics drepo.Metrics,
	backend string,
) *SnapshotProcessor {
	return &SnapshotProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single snapshot to the configured backend.
func (p *SnapshotProcessor) Process(ctx context.Context, s *models.HeatmapSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, s)
	case "clickhouse":
		err = p.store.Store(ctx, s)
	case "both":
		if err = p.store.Store(ctx, s); err == nil {
			err = p.pub.Publish(ctx, s)
		}
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process snapshot: %w", err)
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch routes multiple snapshots in a batch.
func (p *SnapshotProcessor) ProcessBatch(ctx context.Context, snaps []*models.HeatmapSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, snaps)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, snaps)
	case "both":
		if err = p.store.StoreBatch(ctx, snaps); err == nil {
			err = p.pub.PublishBatch(ctx, snaps)
		}
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *SnapshotProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}

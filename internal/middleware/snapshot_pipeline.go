package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
)

// Sink is the minimal downstream interface the pipeline needs.
type Sink interface {
	Deliver(ctx context.Context, s *models.HeatmapSnapshot) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, s *models.HeatmapSnapshot) error

func (f SinkFunc) Deliver(ctx context.Context, s *models.HeatmapSnapshot) error { return f(ctx, s) }

// SnapshotPipeline sits between the simulation runner and downstream sinks
// (storage, Kafka, WebSocket). It validates snapshots and buffers them when a
// sink is unavailable, flushing in the background with backoff.
type SnapshotPipeline struct {
	sink    Sink
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan *models.HeatmapSnapshot
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*SnapshotPipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewSnapshotPipeline creates a new pipeline.
func NewSnapshotPipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		sink:    sink,
		metrics: metrics,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.HeatmapSnapshot, p.bufSize)
	return p
}

// Start launches background flushing of buffered snapshots.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case s := <-p.bufCh:
				if s == nil {
					continue
				}
				if err := p.sink.Deliver(ctx, s); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- s:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and forwards a snapshot downstream, buffering on errors.
// Exactly one retry path owns a failed snapshot: once buffered, the error is
// absorbed so the caller does not also redeliver it. The error propagates
// only when the buffer is full and nothing holds the snapshot.
func (p *SnapshotPipeline) Process(ctx context.Context, s *models.HeatmapSnapshot) error {
	start := time.Now()
	if err := validateSnapshot(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if err := p.sink.Deliver(ctx, s); err != nil {
		p.metrics.RecordError("pipeline_deliver")
		select {
		case p.bufCh <- s:
			return nil
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			return fmt.Errorf("pipeline downstream: %w", err)
		}
	}
	p.metrics.RecordLatency("pipeline_deliver", time.Since(start).Seconds())
	return nil
}

func validateSnapshot(s *models.HeatmapSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot nil")
	}
	if s.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp zero")
	}
	for _, lv := range s.Levels {
		if lv.LongDensity < 0 || lv.ShortDensity < 0 {
			return fmt.Errorf("negative density at price %v", lv.Price)
		}
	}
	return nil
}

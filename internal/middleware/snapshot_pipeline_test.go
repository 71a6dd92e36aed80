package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"LiqMap/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordTick(string) {}
func (nopMetrics) RecordPositions(string, int, int) {}
func (nopMetrics) RecordActiveVolume(string, float64, float64) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLatency(string, float64) {}

// flakySink fails the first failFor deliveries, then succeeds.
type flakySink struct {
	mu        sync.Mutex
	failFor   int
	attempts  int
	delivered []*models.HeatmapSnapshot
}

func (f *flakySink) Deliver(_ context.Context, s *models.HeatmapSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failFor {
		return fmt.Errorf("sink down")
	}
	f.delivered = append(f.delivered, s)
	return nil
}

func (f *flakySink) stats() (attempts, delivered int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, len(f.delivered)
}

func pipelineSnapshot(sym string) *models.HeatmapSnapshot {
	return &models.HeatmapSnapshot{
		Timestamp: time.Unix(1700000000, 0),
		Symbol:    sym,
		Levels:    []models.HeatmapLevel{{Price: 50000, LongDensity: 1}},
	}
}

// A buffered snapshot is owned by the background flusher alone: Process
// reports success, so the caller must not retry, and the flusher delivers it
// exactly once.
func TestProcessAbsorbsErrorAfterBuffering(t *testing.T) {
	sink := &flakySink{failFor: 1}
	p := NewSnapshotPipeline(sink, nopMetrics{}, WithBufferSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, pipelineSnapshot("BTCUSDT")); err != nil {
		t.Fatalf("buffered snapshot surfaced an error: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, delivered := sink.stats(); delivered == 1 {
			break
		}
		if time.Now().After(deadline) {
			attempts, delivered := sink.stats()
			t.Fatalf("flush never landed: attempts=%d delivered=%d", attempts, delivered)
		}
		time.Sleep(10 * time.Millisecond)
	}

	attempts, delivered := sink.stats()
	if delivered != 1 {
		t.Fatalf("delivered %d times, want exactly 1", delivered)
	}
	if attempts != 2 {
		t.Fatalf("sink attempts %d, want 2 (initial failure + flush)", attempts)
	}
}

// When the buffer is full nothing holds the snapshot, so the error must
// propagate for the caller's retry to take over.
func TestProcessPropagatesWhenBufferFull(t *testing.T) {
	sink := &flakySink{failFor: 1 << 30}
	p := NewSnapshotPipeline(sink, nopMetrics{}, WithBufferSize(1))

	ctx := context.Background()
	if err := p.Process(ctx, pipelineSnapshot("BTCUSDT")); err != nil {
		t.Fatalf("first failure should buffer and absorb, got %v", err)
	}
	if err := p.Process(ctx, pipelineSnapshot("BTCUSDT")); err == nil {
		t.Fatalf("second failure with full buffer returned nil")
	}
}

func TestProcessRejectsInvalidSnapshots(t *testing.T) {
	sink := &flakySink{}
	p := NewSnapshotPipeline(sink, nopMetrics{})
	ctx := context.Background()

	cases := []*models.HeatmapSnapshot{
		nil,
		{Timestamp: time.Unix(1700000000, 0)}, // no symbol
		{Symbol: "BTCUSDT"},                   // zero timestamp
		{
			Symbol:    "BTCUSDT",
			Timestamp: time.Unix(1700000000, 0),
			Levels:    []models.HeatmapLevel{{Price: 50000, LongDensity: -1}},
		},
	}
	for i, s := range cases {
		if err := p.Process(ctx, s); err == nil {
			t.Fatalf("case %d accepted", i)
		}
	}
	if attempts, _ := sink.stats(); attempts != 0 {
		t.Fatalf("invalid snapshots reached the sink %d times", attempts)
	}
}

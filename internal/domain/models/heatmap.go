package models

import "time"

// HeatmapLevel is the aggregated density at one discretized price level for
// one time step. Derived, recomputed per snapshot.
type HeatmapLevel struct {
	Price        float64 `json:"price"`
	LongDensity  float64 `json:"long_density"`
	ShortDensity float64 `json:"short_density"`
}

// SnapshotMeta carries per-tick run metadata. Counters reflect only the
// tick's own transitions, not cumulative totals.
type SnapshotMeta struct {
	TotalLongVolume   float64 `json:"total_long_volume"`
	TotalShortVolume  float64 `json:"total_short_volume"`
	PositionsCreated  int     `json:"positions_created"`
	PositionsConsumed int     `json:"positions_consumed"`
}

// HeatmapSnapshot is the complete liquidation density map at one time step.
// Self-contained and immutable; one per input tick, ordered by timestamp.
// Levels are sorted ascending by price on output.
type HeatmapSnapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Symbol    string         `json:"symbol"`
	Levels    []HeatmapLevel `json:"levels"`
	Meta      SnapshotMeta   `json:"meta"`
}

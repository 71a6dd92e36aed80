package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal        *prometheus.CounterVec
	positionsCreated  *prometheus.CounterVec
	positionsConsumed *prometheus.CounterVec
	activeVolume      *prometheus.GaugeVec
	errorsTotal       *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqmap_ticks_total",
				Help: "Total simulation ticks processed",
			},
			[]string{"symbol"},
		),
		positionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqmap_positions_created_total",
				Help: "Synthetic positions created from open-interest increases",
			},
			[]string{"symbol"},
		),
		positionsConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqmap_positions_consumed_total",
				Help: "Positions consumed by price crossings",
			},
			[]string{"symbol"},
		),
		activeVolume: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "liqmap_active_volume",
				Help: "Active notional volume in the position index",
			},
			[]string{"symbol", "side"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liqmap_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liqmap_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts one processed simulation tick.
func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordPositions counts a tick's created/consumed transitions.
func (r *Recorder) RecordPositions(symbol string, created, consumed int) {
	if created > 0 {
		r.positionsCreated.WithLabelValues(symbol).Add(float64(created))
	}
	if consumed > 0 {
		r.positionsConsumed.WithLabelValues(symbol).Add(float64(consumed))
	}
}

// RecordActiveVolume gauges the index's active volume per side.
func (r *Recorder) RecordActiveVolume(symbol string, long, short float64) {
	r.activeVolume.WithLabelValues(symbol, "long").Set(long)
	r.activeVolume.WithLabelValues(symbol, "short").Set(short)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

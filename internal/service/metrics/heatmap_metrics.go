package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	HeatmapLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "liqmap",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of heatmap endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	HeatmapErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "liqmap",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by heatmap endpoint",
		},
		[]string{"endpoint"},
	)

	WSSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "liqmap",
			Subsystem: "ws",
			Name:      "subscribers",
			Help:      "Connected websocket snapshot subscribers",
		},
		[]string{"symbol"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(HeatmapLatency, HeatmapErrors, WSSubscribers)
	})
}

package usecase

import (
	"context"
	"encoding/json"
	"time"

	"LiqMap/internal/domain/models"
	domrepo "LiqMap/internal/domain/repository"
	"LiqMap/internal/middleware"
	pkgkafka "LiqMap/pkg/kafka"
)

// KafkaBarsHandler consumes closed bars from Kafka and advances the live
// simulation. Each bar produces one snapshot pushed through the pipeline.
type KafkaBarsHandler struct {
	topic    string
	live     *LiveSet
	pipeline *middleware.SnapshotPipeline
	metrics  domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, live *LiveSet, pipeline *middleware.SnapshotPipeline, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, live: live, pipeline: pipeline, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, o, h, l, c, v, oi_delta}
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol  string  `json:"symbol"`
		T       int64   `json:"t"`
		O       float64 `json:"o"`
		H       float64 `json:"h"`
		L       float64 `json:"l"`
		C       float64 `json:"c"`
		V       float64 `json:"v"`
		OIDelta float64 `json:"oi_delta"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	// E2E latency from bar close to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	tick := Tick{
		Candle: models.Candle{
			Bucket: time.Unix(m.T, 0).UTC(),
			Symbol: m.Symbol,
			Open:   m.O,
			High:   m.H,
			Low:    m.L,
			Close:  m.C,
			Volume: m.V,
		},
		OIDelta: m.OIDelta,
	}

	snap, err := h.live.Step(ctx, m.Symbol, tick)
	if err != nil {
		h.metrics.RecordError("consumer_step")
		return err
	}

	return h.pipeline.Process(ctx, snap)
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)

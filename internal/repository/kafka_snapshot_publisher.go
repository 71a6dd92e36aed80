package repository

import (
	"context"

	"LiqMap/internal/domain/models"
	"LiqMap/internal/domain/repository"
	pkgkafka "LiqMap/pkg/kafka"
)

// KafkaSnapshotPublisher implements SnapshotPublisher for Kafka. Keyed by
// symbol so consumers see per-symbol snapshots in order.
type KafkaSnapshotPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSnapshotPublisher creates a Kafka publisher.
func NewKafkaSnapshotPublisher(producer *pkgkafka.Producer, topic string) repository.SnapshotPublisher {
	return &KafkaSnapshotPublisher{producer: producer, topic: topic}
}

func (p *KafkaSnapshotPublisher) Publish(ctx context.Context, snap *models.HeatmapSnapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(snap.Symbol), snap)
}

func (p *KafkaSnapshotPublisher) PublishBatch(ctx context.Context, snaps []*models.HeatmapSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(snaps))
	for i, snap := range snaps {
		msgs[i] = pkgkafka.Message{Key: []byte(snap.Symbol), Value: snap}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSnapshotPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

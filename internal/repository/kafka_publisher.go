package repository

import (
	"context"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"
	pkgkafka "PriceSentinel/pkg/kafka"
)

// KafkaSignalPublisher publishes signals keyed by symbol so one symbol stays on one partition.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, s models.Signal) error {
	payload, err := models.NewSignalEvent(s).Marshal()
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, p.topic, []byte(s.Symbol), payload)
}

// Close is a no-op; the producer is shared with the log collector and closed by its owner.
func (p *KafkaSignalPublisher) Close() error { return nil }

var _ repository.SignalPublisher = (*KafkaSignalPublisher)(nil)

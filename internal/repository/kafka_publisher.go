package repository

import (
	"context"

	"QuantMini/internal/domain/models"
	domrepo "QuantMini/internal/domain/repository"
	pkgkafka "QuantMini/pkg/kafka"
)

// KafkaEventPublisher implements EventPublisher on a Kafka topic keyed by symbol.
type KafkaEventPublisher struct {
	p     *pkgkafka.Producer
	topic string
}

// NewKafkaEventPublisher creates the publisher.
func NewKafkaEventPublisher(p *pkgkafka.Producer, topic string) domrepo.EventPublisher {
	return &KafkaEventPublisher{p: p, topic: topic}
}

func (k *KafkaEventPublisher) PublishFactorsComputed(ctx context.Context, ev *models.FactorsComputed) error {
	if ev == nil {
		return nil
	}
	return k.p.Publish(ctx, k.topic, []byte(ev.Symbol), ev)
}

func (k *KafkaEventPublisher) Close() error { return k.p.Close() }

// NoopEventPublisher discards events; used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishFactorsComputed(context.Context, *models.FactorsComputed) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }

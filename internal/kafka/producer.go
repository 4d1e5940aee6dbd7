package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer is a thin wrapper around segmentio/kafka-go Writer, used by the
// delivery tracker to republish delayed check jobs.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{w: w}
}

// Publish writes one message keyed by key (keeps jobs for the same message on
// one partition, preserving per-message ordering).
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (p *Producer) Close() error { return p.w.Close() }

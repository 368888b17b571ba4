package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher writes every ledger event to topic, keyed by user id so one user's events
// stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(partitionKey),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

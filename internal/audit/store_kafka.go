package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"idvault/internal/platform/kafka/producer"
	id "idvault/pkg/domain"
)

// KafkaStore publishes audit events to a Kafka topic, keyed by account so
// each account's events stay ordered within a partition. It satisfies Store
// as a write-only sink; reading events back is the consumer's concern.
type KafkaStore struct {
	producer *producer.Producer
	topic    string
}

// NewKafka constructs a Kafka-backed audit sink.
func NewKafka(p *producer.Producer, topic string) *KafkaStore {
	return &KafkaStore{producer: p, topic: topic}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.AccountID.String()),
		Value: value,
		Headers: map[string]string{
			"action": event.Action,
		},
	})
}

// ListByAccount is not supported on the Kafka sink.
func (s *KafkaStore) ListByAccount(context.Context, id.AccountID) ([]Event, error) {
	return nil, fmt.Errorf("kafka audit sink is write-only")
}

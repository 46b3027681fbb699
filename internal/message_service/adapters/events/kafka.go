package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// KeyedProducer writes a keyed record. messagebroker.KafkaProducer implements it.
type KeyedProducer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaPublisher writes lifecycle events as JSON keyed by chat id, so one chat's events
// land on one partition in order.
type KafkaPublisher struct {
	producer KeyedProducer
}

func NewKafkaPublisher(producer KeyedProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	return p.producer.Publish(ctx, event.ChatID, payload)
}

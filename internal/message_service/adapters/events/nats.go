package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/lynqchat/golang_services/internal/platform/messagebroker"
)

// SubjectWildcard matches every lifecycle subject. Each event is published on its type,
// e.g. "message.sent".
const SubjectWildcard = "message.>"

// Broker is the part of messagebroker.NATSClient used here.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject, queueGroup string, handler func(msg messagebroker.Message)) (messagebroker.Subscription, error)
}

type NATSPublisher struct {
	broker Broker
}

func NewNATSPublisher(broker Broker) *NATSPublisher {
	return &NATSPublisher{broker: broker}
}

func (p *NATSPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	return p.broker.Publish(ctx, string(event.Type), payload)
}

// NATSChangeStream feeds every instance's live feeds from lifecycle events published by
// any instance. It subscribes without a queue group so each instance sees every event.
type NATSChangeStream struct {
	broker Broker
	logger *slog.Logger
}

func NewNATSChangeStream(broker Broker, logger *slog.Logger) *NATSChangeStream {
	return &NATSChangeStream{broker: broker, logger: logger.With("component", "nats_change_stream")}
}

func (s *NATSChangeStream) Changes(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	out := make(chan domain.ChangeEvent, 64)
	var (
		mu     sync.Mutex
		closed bool
	)
	sub, err := s.broker.Subscribe(ctx, SubjectWildcard, "", func(msg messagebroker.Message) {
		var event domain.LifecycleEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.WarnContext(ctx, "Undecodable lifecycle event", "subject", msg.Subject, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- domain.ChangeEvent{Op: event.ChangeOp(), ChatID: event.ChatID, MessageID: event.MessageID}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("NATS unsubscribe failed", "error", err)
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

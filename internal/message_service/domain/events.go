package domain

import "time"

// LifecycleEventType names a message lifecycle transition.
type LifecycleEventType string

const (
	EventMessageSent      LifecycleEventType = "message.sent"
	EventMessageDelivered LifecycleEventType = "message.delivered"
	EventMessageRead      LifecycleEventType = "message.read"
	EventMessageDeleted   LifecycleEventType = "message.deleted"
	EventMessageDestroyed LifecycleEventType = "message.destroyed"
)

// LifecycleEvent is published after a lifecycle write succeeds.
type LifecycleEvent struct {
	Type       LifecycleEventType `json:"type"`
	MessageID  string             `json:"message_id"`
	ChatID     string             `json:"chat_id"`
	SenderID   string             `json:"sender_id,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// ChangeOp maps a lifecycle event to the store change it implies.
func (e LifecycleEvent) ChangeOp() ChangeOp {
	switch e.Type {
	case EventMessageSent:
		return ChangeInsert
	case EventMessageDeleted, EventMessageDestroyed:
		return ChangeDelete
	default:
		return ChangeUpdate
	}
}

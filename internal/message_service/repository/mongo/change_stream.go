package mongo

import (
	"context"
	"fmt"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type changeDocument struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *struct {
		ChatID string `bson:"chat_id"`
	} `bson:"fullDocument"`
	FullDocumentBeforeChange *struct {
		ChatID string `bson:"chat_id"`
	} `bson:"fullDocumentBeforeChange"`
}

// toEvent maps a change stream document. ok is false for operations that do not affect
// individual messages, except drops and invalidations which refresh every chat.
func (c changeDocument) toEvent() (domain.ChangeEvent, bool) {
	ev := domain.ChangeEvent{MessageID: c.DocumentKey.ID}
	switch c.OperationType {
	case "insert", "replace":
		ev.Op = domain.ChangeInsert
	case "update":
		ev.Op = domain.ChangeUpdate
	case "delete":
		ev.Op = domain.ChangeDelete
	case "drop", "dropDatabase", "rename", "invalidate":
		return domain.ChangeEvent{Op: domain.ChangeDelete}, true
	default:
		return domain.ChangeEvent{}, false
	}
	if c.FullDocument != nil {
		ev.ChatID = c.FullDocument.ChatID
	} else if c.FullDocumentBeforeChange != nil {
		ev.ChatID = c.FullDocumentBeforeChange.ChatID
	}
	return ev, true
}

// Changes watches the collection. Deletes carry a chat id only when pre-images are enabled
// on the collection; otherwise they refresh every chat.
func (r *MessageRepository) Changes(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	opts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	stream, err := r.coll.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, fmt.Errorf("watch messages: %w", err)
	}

	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		defer stream.Close(context.WithoutCancel(ctx))
		for stream.Next(ctx) {
			var doc changeDocument
			if err := bson.Unmarshal(stream.Current, &doc); err != nil {
				r.logger.WarnContext(ctx, "Undecodable change event", "error", err)
				continue
			}
			ev, ok := doc.toEvent()
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "Message change stream ended", "error", err)
		}
	}()
	return out, nil
}

package mongo

import (
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

type metadataDocument struct {
	Name         string `bson:"name,omitempty"`
	Size         *int64 `bson:"size,omitempty"`
	MimeType     string `bson:"mime_type,omitempty"`
	ThumbnailURL string `bson:"thumbnail_url,omitempty"`
}

// messageDocument is the stored shape of a message. Timestamp is omitted on insert so the
// server can assign it.
type messageDocument struct {
	ID                  string           `bson:"_id"`
	SenderID            string           `bson:"sender_id"`
	ChatID              string           `bson:"chat_id"`
	Type                string           `bson:"type"`
	Content             string           `bson:"content"`
	Metadata            metadataDocument `bson:"metadata"`
	Timestamp           time.Time        `bson:"timestamp,omitempty"`
	Status              string           `bson:"status"`
	IsRead              bool             `bson:"is_read"`
	SelfDestructSeconds int              `bson:"self_destruct_seconds"`
	ReplyToID           string           `bson:"reply_to_id,omitempty"`
}

func toDocument(m *domain.Message) messageDocument {
	return messageDocument{
		ID:       m.ID,
		SenderID: m.SenderID,
		ChatID:   m.ChatID,
		Type:     string(m.Type),
		Content:  m.Content,
		Metadata: metadataDocument{
			Name:         m.Metadata.Name,
			Size:         m.Metadata.Size,
			MimeType:     m.Metadata.MimeType,
			ThumbnailURL: m.Metadata.ThumbnailURL,
		},
		Timestamp:           m.Timestamp,
		Status:              string(m.Status),
		IsRead:              m.IsRead,
		SelfDestructSeconds: m.SelfDestructSeconds,
		ReplyToID:           m.ReplyToID,
	}
}

func (d messageDocument) toDomain() *domain.Message {
	return &domain.Message{
		ID:       d.ID,
		SenderID: d.SenderID,
		ChatID:   d.ChatID,
		Type:     domain.MessageType(d.Type),
		Content:  d.Content,
		Metadata: domain.Metadata{
			Name:         d.Metadata.Name,
			Size:         d.Metadata.Size,
			MimeType:     d.Metadata.MimeType,
			ThumbnailURL: d.Metadata.ThumbnailURL,
		},
		Timestamp:           d.Timestamp.UTC(),
		Status:              domain.Status(d.Status),
		IsRead:              d.IsRead,
		SelfDestructSeconds: d.SelfDestructSeconds,
		ReplyToID:           d.ReplyToID,
	}
}

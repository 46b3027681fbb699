package http

import (
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// SendMessageRequest DTO for POST /v1/messages
type SendMessageRequest struct {
	ChatID    string `json:"chat_id" validate:"required,max=128"`
	Type      string `json:"type" validate:"omitempty,oneof=text image video document"`
	Content   string `json:"content" validate:"required"`
	ReplyToID string `json:"reply_to_id,omitempty" validate:"omitempty,max=128"`
	Metadata  *struct {
		Name     string `json:"name" validate:"required"`
		Size     *int64 `json:"size" validate:"required,min=0"`
		MimeType string `json:"mime_type,omitempty"`
	} `json:"metadata,omitempty"`
	// SelfDestructSeconds overrides the sender's stored preference when present.
	SelfDestructSeconds *int `json:"self_destruct_seconds,omitempty" validate:"omitempty,min=0"`
}

// SendMessageResponse DTO
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
}

type MetadataResponse struct {
	Name          string `json:"name,omitempty"`
	Size          *int64 `json:"size,omitempty"`
	SizeFormatted string `json:"size_formatted,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
}

// MessageResponse carries the stored content plus, for text, the decoded text.
type MessageResponse struct {
	ID                  string            `json:"id"`
	SenderID            string            `json:"sender_id"`
	ChatID              string            `json:"chat_id"`
	Type                string            `json:"type"`
	Content             string            `json:"content"`
	Text                string            `json:"text,omitempty"`
	Metadata            *MetadataResponse `json:"metadata,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
	Status              string            `json:"status"`
	IsRead              bool              `json:"is_read"`
	SelfDestructSeconds int               `json:"self_destruct_seconds,omitempty"`
	ReplyToID           string            `json:"reply_to_id,omitempty"`
}

func toMessageResponse(m *domain.Message) MessageResponse {
	resp := MessageResponse{
		ID:                  m.ID,
		SenderID:            m.SenderID,
		ChatID:              m.ChatID,
		Type:                string(m.Type),
		Content:             m.Content,
		Timestamp:           m.Timestamp,
		Status:              string(m.Status),
		IsRead:              m.IsRead,
		SelfDestructSeconds: m.SelfDestructSeconds,
		ReplyToID:           m.ReplyToID,
	}
	if m.Type == domain.MessageTypeText {
		if text, err := domain.DecodeText(m.Content); err == nil {
			resp.Text = text
		}
	}
	if !m.Metadata.IsZero() {
		meta := &MetadataResponse{
			Name:         m.Metadata.Name,
			Size:         m.Metadata.Size,
			MimeType:     m.Metadata.MimeType,
			ThumbnailURL: m.Metadata.ThumbnailURL,
		}
		if m.Metadata.Size != nil {
			meta.SizeFormatted = domain.FormatFileSize(*m.Metadata.Size)
		}
		resp.Metadata = meta
	}
	return resp
}

func toMessageResponses(msgs []*domain.Message) []MessageResponse {
	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = toMessageResponse(m)
	}
	return out
}

// SearchResponse DTO for GET /v1/chats/{chatID}/search
type SearchResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// PreferenceResponse DTO for /v1/preferences
type PreferenceResponse struct {
	SelfDestructSeconds int `json:"self_destruct_seconds"`
}

// UpdatePreferenceRequest DTO for PATCH /v1/preferences. Omitted fields are left unchanged.
type UpdatePreferenceRequest struct {
	SelfDestructSeconds *int `json:"self_destruct_seconds" validate:"omitempty,min=0"`
}

// HealthResponse is the body of /health. BlobStore carries the blob circuit breaker state
// when one is configured.
type HealthResponse struct {
	Status    string `json:"status"`
	BlobStore string `json:"blob_store,omitempty"`
}

// GenericErrorResponse is the body of every error reply.
type GenericErrorResponse struct {
	Error string `json:"error"`
}

package domain

import (
	"strconv"
	"strings"
)

// Draft is a message before validation. Content is plaintext for text messages and a blob
// URL for media.
type Draft struct {
	SenderID            string
	ChatID              string
	Type                MessageType
	Content             string
	Metadata            Metadata
	ReplyToID           string
	SelfDestructSeconds int
}

// Validate checks a draft and returns the message that would be persisted.
// The returned message has no ID or timestamp yet, carries status sent, and stores text
// content in encoded form.
func Validate(d Draft) (*Message, error) {
	if strings.TrimSpace(d.SenderID) == "" {
		return nil, &ValidationError{Field: "sender_id", Reason: "is required"}
	}
	if strings.TrimSpace(d.ChatID) == "" {
		return nil, &ValidationError{Field: "chat_id", Reason: "is required"}
	}
	if !d.Type.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "must be one of text, image, video, document"}
	}

	msg := &Message{
		SenderID:            d.SenderID,
		ChatID:              d.ChatID,
		Type:                d.Type,
		Status:              StatusSent,
		IsRead:              false,
		SelfDestructSeconds: NormalizeSelfDestruct(d.SelfDestructSeconds),
		ReplyToID:           d.ReplyToID,
	}

	if d.Type == MessageTypeText {
		if d.Content == "" {
			return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
		}
		msg.Content = EncodeText(d.Content)
		return msg, nil
	}

	if d.Content == "" {
		return nil, &ValidationError{Field: "content", Reason: "must reference an uploaded blob"}
	}
	if d.Metadata.Name == "" {
		return nil, &ValidationError{Field: "metadata.name", Reason: "is required for media"}
	}
	if d.Metadata.Size == nil {
		return nil, &ValidationError{Field: "metadata.size", Reason: "is required for media"}
	}
	if *d.Metadata.Size < 0 {
		return nil, &ValidationError{Field: "metadata.size", Reason: "must not be negative"}
	}
	msg.Content = d.Content
	msg.Metadata = d.Metadata
	return msg, nil
}

// NormalizeSelfDestruct clamps a self-destruct delay to a non-negative number of seconds.
func NormalizeSelfDestruct(seconds int) int {
	if seconds < 0 {
		return 0
	}
	return seconds
}

// ParseSelfDestruct converts a stored preference value to seconds; invalid input means never.
func ParseSelfDestruct(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return NormalizeSelfDestruct(n)
}

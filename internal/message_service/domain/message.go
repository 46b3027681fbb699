package domain

import "time"

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeDocument:
		return true
	}
	return false
}

// IsMedia reports whether the content of a message of this type is a blob reference.
func (t MessageType) IsMedia() bool {
	return t.Valid() && t != MessageTypeText
}

// Status is the delivery state of a message. It only ever moves forward.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses; unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.Rank() > 0 }

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// Skipping a step (sent -> read) is forward; staying or going back is not.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.Rank() > s.Rank()
}

// StatusesBelow returns every known status ranked lower than s.
// Store adapters use it to build conditional updates.
func StatusesBelow(s Status) []Status {
	var out []Status
	for _, st := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// Metadata describes a media attachment. It is empty for text messages.
type Metadata struct {
	Name         string `json:"name,omitempty"`
	Size         *int64 `json:"size,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// IsZero reports whether no metadata field is set.
func (m Metadata) IsZero() bool {
	return m.Name == "" && m.Size == nil && m.MimeType == "" && m.ThumbnailURL == ""
}

// Message is a single chat message as persisted by a MessageRepository.
//
// ID, SenderID, ChatID, Type and SelfDestructSeconds never change after creation.
// Content holds the encoded text for text messages and the blob URL for media.
type Message struct {
	ID                  string      `json:"id"`
	SenderID            string      `json:"sender_id"`
	ChatID              string      `json:"chat_id"`
	Type                MessageType `json:"type"`
	Content             string      `json:"content"`
	Metadata            Metadata    `json:"metadata"`
	Timestamp           time.Time   `json:"timestamp"`
	Status              Status      `json:"status"`
	IsRead              bool        `json:"is_read"`
	SelfDestructSeconds int         `json:"self_destruct_seconds"`
	ReplyToID           string      `json:"reply_to_id,omitempty"`
}

// IsInboundFor reports whether viewerID is a recipient of m (not its sender).
func (m *Message) IsInboundFor(viewerID string) bool {
	return m.SenderID != viewerID
}

// BlobRefs returns the blob URLs owned by m: the content blob and the thumbnail, if any.
func (m *Message) BlobRefs() []string {
	if !m.Type.IsMedia() {
		return nil
	}
	var refs []string
	if m.Content != "" {
		refs = append(refs, m.Content)
	}
	if m.Metadata.ThumbnailURL != "" {
		refs = append(refs, m.Metadata.ThumbnailURL)
	}
	return refs
}

const (
	// FeedLimit bounds a live feed snapshot.
	FeedLimit = 100
	// SearchLimit bounds a search result.
	SearchLimit = 20
	// SearchSentinel is appended to a prefix to form the exclusive upper bound of a range query.
	SearchSentinel = "\uf8ff"
)

package domain

import (
	"context"
	"strconv"
	"time"
)

// MessageRepository persists messages. Implementations rely on the backend's per-document
// atomicity; status and read updates are conditional writes, never read-modify-write.
type MessageRepository interface {
	// Create assigns ID and Timestamp and stores msg. The returned message is the stored copy.
	Create(ctx context.Context, msg *Message) (*Message, error)
	// GetByID returns ErrNotFound when the message does not exist.
	GetByID(ctx context.Context, id string) (*Message, error)
	// AdvanceStatus moves the status forward. It reports false without error when the stored
	// status is already at or past next, and ErrNotFound when the message does not exist.
	AdvanceStatus(ctx context.Context, id string, next Status) (bool, error)
	// MarkRead sets IsRead and status read. It reports false when already read.
	MarkRead(ctx context.Context, id string) (bool, error)
	// Delete removes the record; ErrNotFound when already gone.
	Delete(ctx context.Context, id string) error
	// ListRecent returns the newest limit messages of a chat in ascending timestamp order.
	ListRecent(ctx context.Context, chatID string, limit int) ([]*Message, error)
	// SearchContentRange returns messages of a chat with lo <= content < hi, ordered by content.
	SearchContentRange(ctx context.Context, chatID, lo, hi string, limit int) ([]*Message, error)
}

// BlobStore holds media attachments addressed by URL.
type BlobStore interface {
	// Put stores data under key and returns its retrieval URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Delete removes the blob at url; ErrBlobNotFound when it does not exist.
	Delete(ctx context.Context, url string) error
	// Exists reports whether a blob is present at url.
	Exists(ctx context.Context, url string) (bool, error)
}

// ChangeOp is the kind of write that produced a ChangeEvent.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent notifies that a message in ChatID changed. An empty ChatID means the source
// could not tell which chat was affected and every subscription must refresh.
type ChangeEvent struct {
	Op        ChangeOp
	ChatID    string
	MessageID string
}

// ChangeStream delivers store change notifications until ctx is done. The returned channel
// is closed when the stream ends.
type ChangeStream interface {
	Changes(ctx context.Context) (<-chan ChangeEvent, error)
}

// EventPublisher emits lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

// MediaKey is the object key of an upload: media/<unix millis>_<tag>_<file name>. tag keeps
// uploads of the same name within one millisecond apart.
func MediaKey(at time.Time, tag, fileName string) string {
	return "media/" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + tag + "_" + fileName
}

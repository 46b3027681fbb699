package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NotifyChannel is the LISTEN/NOTIFY channel written by the messages trigger.
const NotifyChannel = "message_changes"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
	id                    TEXT PRIMARY KEY,
	seq                   BIGSERIAL,
	sender_id             TEXT NOT NULL,
	chat_id               TEXT NOT NULL,
	type                  TEXT NOT NULL,
	content               TEXT NOT NULL,
	metadata              JSONB NOT NULL DEFAULT '{}',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	status                TEXT NOT NULL,
	status_rank           SMALLINT NOT NULL,
	is_read               BOOLEAN NOT NULL DEFAULT FALSE,
	self_destruct_seconds INTEGER NOT NULL DEFAULT 0,
	reply_to_id           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS messages_chat_created_idx ON messages (chat_id, created_at DESC, seq DESC);
CREATE INDEX IF NOT EXISTS messages_chat_content_idx ON messages (chat_id, content COLLATE "C");

CREATE OR REPLACE FUNCTION notify_message_change() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('message_changes', json_build_object('op', 'delete', 'chat_id', OLD.chat_id, 'id', OLD.id)::text);
		RETURN OLD;
	END IF;
	PERFORM pg_notify('message_changes', json_build_object('op', lower(TG_OP), 'chat_id', NEW.chat_id, 'id', NEW.id)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_notify ON messages;
CREATE TRIGGER messages_notify AFTER INSERT OR UPDATE OR DELETE ON messages
	FOR EACH ROW EXECUTE FUNCTION notify_message_change();
`

const messageColumns = `id, sender_id, chat_id, type, content, metadata, created_at, status, is_read, self_destruct_seconds, reply_to_id`

// MessageRepository stores messages in PostgreSQL. Ordering ties on created_at are broken
// by the insertion sequence.
type MessageRepository struct {
	db     DBTX
	logger *slog.Logger
}

func NewMessageRepository(db DBTX, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger.With("repository", "postgres_messages")}
}

// EnsureSchema creates the messages table, its indexes and the change trigger.
func (r *MessageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure messages schema: %w", err)
	}
	return nil
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta, err := json.Marshal(metadataColumn(msg.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO messages (id, sender_id, chat_id, type, content, metadata, status, status_rank, is_read, self_destruct_seconds, reply_to_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at`
	var createdAt time.Time
	err = r.db.QueryRow(ctx, query,
		id, msg.SenderID, msg.ChatID, string(msg.Type), msg.Content, meta,
		string(msg.Status), msg.Status.Rank(), msg.IsRead, msg.SelfDestructSeconds, msg.ReplyToID,
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// A retried insert of the same id keeps the first copy.
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	stored := *msg
	stored.ID = id
	stored.Timestamp = createdAt.UTC()
	return &stored, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, id string, next domain.Status) (bool, error) {
	query := `
		UPDATE messages SET status = $2, status_rank = $3, is_read = is_read OR $4
		WHERE id = $1 AND status_rank < $3`
	tag, err := r.db.Exec(ctx, query, id, string(next), next.Rank(), next == domain.StatusRead)
	if err != nil {
		return false, fmt.Errorf("advance status of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.existsOrNotFound(ctx, id)
	}
	return true, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE messages SET is_read = TRUE, status = $2, status_rank = $3
		WHERE id = $1 AND (NOT is_read OR status_rank < $3)`
	tag, err := r.db.Exec(ctx, query, id, string(domain.StatusRead), domain.StatusRead.Rank())
	if err != nil {
		return false, fmt.Errorf("mark %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.existsOrNotFound(ctx, id)
	}
	return true, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `, seq FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at, seq`
	msgs, err := r.queryMessages(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages of %s: %w", chatID, err)
	}
	return msgs, nil
}

// SearchContentRange compares bytewise so the range bounds match regardless of the
// database collation.
func (r *MessageRepository) SearchContentRange(ctx context.Context, chatID, lo, hi string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE chat_id = $1 AND content COLLATE "C" >= $2 AND content COLLATE "C" < $3
		ORDER BY content COLLATE "C", created_at
		LIMIT $4`
	msgs, err := r.queryMessages(ctx, query, chatID, lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages of %s: %w", chatID, err)
	}
	return msgs, nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *MessageRepository) existsOrNotFound(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check message %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

type metadataJSON struct {
	Name         string `json:"name,omitempty"`
	Size         *int64 `json:"size,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func metadataColumn(m domain.Metadata) metadataJSON {
	return metadataJSON{Name: m.Name, Size: m.Size, MimeType: m.MimeType, ThumbnailURL: m.ThumbnailURL}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg       domain.Message
		msgType   string
		status    string
		meta      []byte
		createdAt time.Time
	)
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.ChatID, &msgType, &msg.Content, &meta, &createdAt,
		&status, &msg.IsRead, &msg.SelfDestructSeconds, &msg.ReplyToID,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		var m metadataJSON
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", msg.ID, err)
		}
		msg.Metadata = domain.Metadata{Name: m.Name, Size: m.Size, MimeType: m.MimeType, ThumbnailURL: m.ThumbnailURL}
	}
	msg.Type = domain.MessageType(msgType)
	msg.Status = domain.Status(status)
	msg.Timestamp = createdAt.UTC()
	return &msg, nil
}

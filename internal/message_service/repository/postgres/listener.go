package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// Listener turns NOTIFY payloads from the messages trigger into change events. It holds
// one pooled connection for as long as the stream is open.
type Listener struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewListener(pool *pgxpool.Pool, logger *slog.Logger) *Listener {
	return &Listener{pool: pool, logger: logger.With("component", "postgres_listener")}
}

func (l *Listener) Changes(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen on %s: %w", NotifyChannel, err)
	}

	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		// The connection still has LISTEN registered, so it must not go back to the pool.
		defer func() {
			_ = conn.Conn().Close(context.WithoutCancel(ctx))
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.ErrorContext(ctx, "Notification wait failed", "error", err)
				}
				return
			}
			ev, err := decodeNotification(n.Payload)
			if err != nil {
				l.logger.WarnContext(ctx, "Undecodable notification", "payload", n.Payload, "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type notification struct {
	Op     string `json:"op"`
	ChatID string `json:"chat_id"`
	ID     string `json:"id"`
}

func decodeNotification(payload string) (domain.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return domain.ChangeEvent{}, err
	}
	ev := domain.ChangeEvent{ChatID: n.ChatID, MessageID: n.ID}
	switch n.Op {
	case "insert":
		ev.Op = domain.ChangeInsert
	case "update":
		ev.Op = domain.ChangeUpdate
	case "delete":
		ev.Op = domain.ChangeDelete
	default:
		return domain.ChangeEvent{}, fmt.Errorf("unknown operation %q", n.Op)
	}
	return ev, nil
}

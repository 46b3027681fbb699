package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// ReadReceiptTracker flips messages to read.
type ReadReceiptTracker struct {
	repo   domain.MessageRepository
	events domain.EventPublisher
	clock  clock.Clock
	logger *slog.Logger
}

// NewReadReceiptTracker creates a tracker. events may be nil; clk nil means wall clock.
func NewReadReceiptTracker(repo domain.MessageRepository, events domain.EventPublisher, clk clock.Clock, logger *slog.Logger) *ReadReceiptTracker {
	if events == nil {
		events = noopPublisher{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &ReadReceiptTracker{
		repo:   repo,
		events: events,
		clock:  clk,
		logger: logger.With("component", "read_receipts"),
	}
}

// MarkRead sets IsRead and status read on id. Marking an already read message is a no-op.
// It does not check who is reading; callers filter out the sender's own messages.
func (t *ReadReceiptTracker) MarkRead(ctx context.Context, id string) error {
	changed, err := t.repo.MarkRead(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			readReceiptsCounter.WithLabelValues("not_found").Inc()
			return err
		}
		readReceiptsCounter.WithLabelValues("error").Inc()
		t.logger.ErrorContext(ctx, "Failed to mark message as read", "message_id", id, "error", err)
		return &domain.StoreError{Op: "mark_read", Err: err}
	}
	if !changed {
		readReceiptsCounter.WithLabelValues("already_read").Inc()
		return nil
	}
	readReceiptsCounter.WithLabelValues("marked").Inc()
	t.logger.DebugContext(ctx, "Message marked as read", "message_id", id)

	ev := domain.LifecycleEvent{Type: domain.EventMessageRead, MessageID: id, OccurredAt: t.clock.Now().UTC()}
	if msg, getErr := t.repo.GetByID(ctx, id); getErr == nil {
		ev.ChatID = msg.ChatID
		ev.SenderID = msg.SenderID
	}
	if err := t.events.Publish(ctx, ev); err != nil {
		t.logger.WarnContext(ctx, "Failed to publish lifecycle event", "event", ev.Type, "message_id", id, "error", err)
	}
	return nil
}

// MarkReadBy is MarkRead guarded against the sender reading their own message.
func (t *ReadReceiptTracker) MarkReadBy(ctx context.Context, id, viewerID string) error {
	msg, err := t.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return &domain.StoreError{Op: "get", Err: err}
	}
	if !msg.IsInboundFor(viewerID) {
		return domain.ErrSelfRead
	}
	if msg.IsRead {
		return nil
	}
	return t.MarkRead(ctx, id)
}

// ObserveSnapshot marks every unread message in a feed snapshot that viewerID did not send.
// Failures are logged only. It returns how many messages it attempted to mark.
func (t *ReadReceiptTracker) ObserveSnapshot(ctx context.Context, viewerID string, msgs []*domain.Message) int {
	attempted := 0
	for _, m := range msgs {
		if m.IsRead || !m.IsInboundFor(viewerID) {
			continue
		}
		attempted++
		if err := t.MarkRead(ctx, m.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				t.logger.DebugContext(ctx, "Message vanished before read receipt", "message_id", m.ID)
				continue
			}
			t.logger.WarnContext(ctx, "Read receipt failed", "message_id", m.ID, "viewer_id", viewerID, "error", err)
		}
	}
	return attempted
}

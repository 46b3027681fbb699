package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/lynqchat/golang_services/internal/public_api_service/middleware"
)

const defaultHeartbeat = 25 * time.Second

type LiveFeed interface {
	Subscribe(chatID string, onUpdate func([]*domain.Message), onError func(error)) func()
}

// FeedHandler streams chat snapshots as server-sent events. Every snapshot it delivers
// marks the viewer's unread inbound messages read, as an open chat view does.
type FeedHandler struct {
	feed      LiveFeed
	receipts  ReadReceipts
	heartbeat time.Duration
	logger    *slog.Logger
}

func NewFeedHandler(feed LiveFeed, receipts ReadReceipts, heartbeat time.Duration, logger *slog.Logger) *FeedHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &FeedHandler{feed: feed, receipts: receipts, heartbeat: heartbeat, logger: logger.With("handler", "feed")}
}

func (h *FeedHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chats/{chatID}/feed", h.handleFeed)
}

func (h *FeedHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		jsonError(w, logger, "User not authenticated", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, logger, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	chatID := chi.URLParam(r, "chatID")
	logger = logger.With("auth_user_id", authUser.ID, "chat_id", chatID)

	// Holds at most the latest snapshot; older ones are superseded.
	snapshots := make(chan []*domain.Message, 1)
	failures := make(chan error, 1)
	unsubscribe := h.feed.Subscribe(chatID,
		func(msgs []*domain.Message) {
			for {
				select {
				case snapshots <- msgs:
					return
				default:
				}
				select {
				case <-snapshots:
				default:
				}
			}
		},
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	openFeedStreams.Inc()
	defer openFeedStreams.Dec()
	logger.InfoContext(ctx, "Feed stream opened")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Feed stream closed")
			return
		case msgs := <-snapshots:
			h.receipts.ObserveSnapshot(ctx, authUser.ID, msgs)
			if err := writeEvent(w, "snapshot", toMessageResponses(msgs)); err != nil {
				logger.WarnContext(ctx, "Feed write failed", "error", err)
				return
			}
			flusher.Flush()
		case err := <-failures:
			logger.WarnContext(ctx, "Feed query failed", "error", err)
			if err := writeEvent(w, "error", GenericErrorResponse{Error: "Feed temporarily unavailable"}); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

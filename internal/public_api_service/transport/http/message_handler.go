package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/lynqchat/golang_services/internal/message_service/app"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
	prefdomain "github.com/lynqchat/golang_services/internal/preference_service/domain"
	"github.com/lynqchat/golang_services/internal/public_api_service/middleware"
)

type MessagePipeline interface {
	Send(ctx context.Context, req app.SendRequest) (string, error)
	SendMedia(ctx context.Context, req app.SendRequest, upload app.MediaUpload) (string, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	Delete(ctx context.Context, id string) error
}

type ReadReceipts interface {
	MarkReadBy(ctx context.Context, id, viewerID string) error
	ObserveSnapshot(ctx context.Context, viewerID string, msgs []*domain.Message) int
}

type MessageSearcher interface {
	Search(ctx context.Context, chatID, prefix string) ([]*domain.Message, error)
}

type Preferences interface {
	Get(ctx context.Context, userID string) (prefdomain.Preference, error)
	SelfDestructFor(ctx context.Context, userID string) int
	Update(ctx context.Context, userID string, update prefdomain.PreferenceUpdate) (prefdomain.Preference, error)
}

type MessageHandler struct {
	pipeline       MessagePipeline
	receipts       ReadReceipts
	searcher       MessageSearcher
	prefs          Preferences
	validate       *validator.Validate
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewMessageHandler(
	pipeline MessagePipeline,
	receipts ReadReceipts,
	searcher MessageSearcher,
	prefs Preferences,
	validate *validator.Validate,
	maxUploadBytes int64,
	logger *slog.Logger,
) *MessageHandler {
	return &MessageHandler{
		pipeline:       pipeline,
		receipts:       receipts,
		searcher:       searcher,
		prefs:          prefs,
		validate:       validate,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With("handler", "message"),
	}
}

// RegisterRoutes registers message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleSendMessage)
	r.Post("/messages/media", h.handleSendMedia)
	r.Get("/messages/{messageID}", h.handleGetMessage)
	r.Delete("/messages/{messageID}", h.handleDeleteMessage)
	r.Post("/messages/{messageID}/read", h.handleMarkRead)
	r.Get("/chats/{chatID}/search", h.handleSearch)
}

// requestLogger returns the handler logger scoped to the request and its caller.
func (h *MessageHandler) requestLogger(w http.ResponseWriter, r *http.Request) (*slog.Logger, middleware.AuthenticatedUser, bool) {
	logger := h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
	authUser, ok := middleware.UserFromContext(r.Context())
	if !ok {
		logger.WarnContext(r.Context(), "User not authenticated")
		jsonError(w, logger, "User not authenticated", http.StatusUnauthorized)
		return nil, authUser, false
	}
	return logger.With("auth_user_id", authUser.ID), authUser, true
}

func (h *MessageHandler) selfDestructFor(ctx context.Context, userID string, override *int) int {
	if override != nil {
		return *override
	}
	return h.prefs.SelfDestructFor(ctx, userID)
}

func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger, authUser, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode send message request", "error", err)
		jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		logger.WarnContext(ctx, "Validation failed for send message", "error", err)
		jsonError(w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	sendReq := app.SendRequest{
		SenderID:            authUser.ID,
		ChatID:              req.ChatID,
		Type:                domain.MessageTypeText,
		Content:             req.Content,
		ReplyToID:           req.ReplyToID,
		SelfDestructSeconds: h.selfDestructFor(ctx, authUser.ID, req.SelfDestructSeconds),
	}
	if req.Type != "" {
		sendReq.Type = domain.MessageType(req.Type)
	}
	if req.Metadata != nil {
		sendReq.Metadata = domain.Metadata{Name: req.Metadata.Name, Size: req.Metadata.Size, MimeType: req.Metadata.MimeType}
	}

	id, err := h.pipeline.Send(ctx, sendReq)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "send_message")
		return
	}
	logger.InfoContext(ctx, "Message sent", "message_id", id, "chat_id", req.ChatID)
	writeJSON(w, http.StatusCreated, SendMessageResponse{MessageID: id})
}

// handleSendMedia expects multipart/form-data with chat_id, an optional reply_to_id and
// self_destruct_seconds, and the attachment in file.
func (h *MessageHandler) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger, authUser, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, logger, "Attachment too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.WarnContext(ctx, "Failed to parse multipart form", "error", err)
		jsonError(w, logger, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	chatID := r.FormValue("chat_id")
	if chatID == "" {
		jsonError(w, logger, "chat_id is required", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, logger, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read uploaded file", "error", err)
		jsonError(w, logger, "Failed to read attachment", http.StatusBadRequest)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	var override *int
	if raw := r.FormValue("self_destruct_seconds"); raw != "" {
		seconds := domain.ParseSelfDestruct(raw)
		override = &seconds
	}

	sendReq := app.SendRequest{
		SenderID:            authUser.ID,
		ChatID:              chatID,
		ReplyToID:           r.FormValue("reply_to_id"),
		SelfDestructSeconds: h.selfDestructFor(ctx, authUser.ID, override),
	}
	upload := app.MediaUpload{FileName: header.Filename, ContentType: contentType, Data: data}

	id, err := h.pipeline.SendMedia(ctx, sendReq, upload)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "send_media")
		return
	}
	logger.InfoContext(ctx, "Media message sent", "message_id", id, "chat_id", chatID, "size", len(data))
	writeJSON(w, http.StatusCreated, SendMessageResponse{MessageID: id})
}

func (h *MessageHandler) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger, _, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")

	msg, err := h.pipeline.Get(ctx, messageID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "get_message")
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

// handleDeleteMessage lets the sender delete their own message.
func (h *MessageHandler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger, authUser, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")

	msg, err := h.pipeline.Get(ctx, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "delete_message")
		return
	}
	if msg.SenderID != authUser.ID {
		logger.WarnContext(ctx, "User attempted to delete another user's message", "message_id", messageID, "sender_id", msg.SenderID)
		jsonError(w, logger, "Forbidden: only the sender can delete a message", http.StatusForbidden)
		return
	}

	if err := h.pipeline.Delete(ctx, messageID); err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "delete_message")
		return
	}
	logger.InfoContext(ctx, "Message deleted", "message_id", messageID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger, authUser, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")

	if err := h.receipts.MarkReadBy(ctx, messageID, authUser.ID); err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "mark_read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger, _, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	chatID := chi.URLParam(r, "chatID")

	msgs, err := h.searcher.Search(ctx, chatID, r.URL.Query().Get("q"))
	if err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Messages: toMessageResponses(msgs)})
}

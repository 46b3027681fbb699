package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// SelfDestructScheduler registers and cancels per-message expiry.
type SelfDestructScheduler interface {
	Schedule(messageID string, msgType domain.MessageType, blobRefs []string, delaySeconds int)
	Cancel(messageID string) bool
}

// SendRequest is the input of Pipeline.Send. Content is plaintext for text messages and a
// blob URL for media. SelfDestructSeconds is supplied by the caller, usually from the
// sender's stored preference.
type SendRequest struct {
	SenderID            string
	ChatID              string
	Type                domain.MessageType
	Content             string
	Metadata            domain.Metadata
	ReplyToID           string
	SelfDestructSeconds int
}

// Pipeline is the delivery pipeline: validate, persist, acknowledge delivery, schedule expiry.
type Pipeline struct {
	repo      domain.MessageRepository
	blobs     domain.BlobStore
	scheduler SelfDestructScheduler
	events    domain.EventPublisher
	clock     clock.Clock
	uploadTag func() string
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. events may be nil.
func NewPipeline(
	repo domain.MessageRepository,
	blobs domain.BlobStore,
	scheduler SelfDestructScheduler,
	events domain.EventPublisher,
	clk clock.Clock,
	logger *slog.Logger,
) *Pipeline {
	if events == nil {
		events = noopPublisher{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Pipeline{
		repo:      repo,
		blobs:     blobs,
		scheduler: scheduler,
		events:    events,
		clock:     clk,
		uploadTag: newUploadTag,
		logger:    logger.With("component", "delivery_pipeline"),
	}
}

// Send validates and persists a message and returns its id.
//
// A failure of the delivered acknowledgement is logged and leaves the message in status
// sent; it is never returned and never rolls back the persisted record.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (string, error) {
	timer := prometheus.NewTimer(sendDurationHist.WithLabelValues(string(req.Type)))
	defer timer.ObserveDuration()

	draft, err := domain.Validate(domain.Draft{
		SenderID:            req.SenderID,
		ChatID:              req.ChatID,
		Type:                req.Type,
		Content:             req.Content,
		Metadata:            req.Metadata,
		ReplyToID:           req.ReplyToID,
		SelfDestructSeconds: req.SelfDestructSeconds,
	})
	if err != nil {
		messagesSentCounter.WithLabelValues(string(req.Type), "validation_error").Inc()
		p.logger.InfoContext(ctx, "Rejected message draft", "chat_id", req.ChatID, "sender_id", req.SenderID, "error", err)
		return "", err
	}

	stored, err := p.repo.Create(ctx, draft)
	if err != nil {
		messagesSentCounter.WithLabelValues(string(req.Type), "store_error").Inc()
		p.logger.ErrorContext(ctx, "Failed to persist message", "chat_id", req.ChatID, "sender_id", req.SenderID, "error", err)
		return "", &domain.StoreError{Op: "create", Err: err}
	}
	logger := p.logger.With("message_id", stored.ID, "chat_id", stored.ChatID)
	logger.InfoContext(ctx, "Message persisted", "type", stored.Type, "self_destruct_seconds", stored.SelfDestructSeconds)
	p.publish(ctx, domain.EventMessageSent, stored)

	// The acknowledgement must survive the caller hanging up after the persist.
	ackCtx := context.WithoutCancel(ctx)
	if _, err := p.repo.AdvanceStatus(ackCtx, stored.ID, domain.StatusDelivered); err != nil {
		deliveredAckFailuresCounter.Inc()
		logger.ErrorContext(ctx, "Delivered acknowledgement failed, message stays in status sent", "error", err)
	} else {
		p.publish(ackCtx, domain.EventMessageDelivered, stored)
	}

	if stored.SelfDestructSeconds > 0 {
		p.scheduler.Schedule(stored.ID, stored.Type, stored.BlobRefs(), stored.SelfDestructSeconds)
	}

	messagesSentCounter.WithLabelValues(string(stored.Type), "success").Inc()
	return stored.ID, nil
}

// SendMedia uploads an attachment and sends it. When the send fails the uploaded blobs are
// removed again.
func (p *Pipeline) SendMedia(ctx context.Context, req SendRequest, upload MediaUpload) (string, error) {
	if req.Type == "" {
		req.Type = MediaTypeFor(upload.ContentType)
	}
	if !req.Type.IsMedia() {
		return "", &domain.ValidationError{Field: "type", Reason: "must be image, video or document for uploads"}
	}

	ref, err := p.UploadMedia(ctx, upload)
	if err != nil {
		messagesSentCounter.WithLabelValues(string(req.Type), "blob_error").Inc()
		return "", err
	}

	size := ref.Size
	req.Content = ref.URL
	req.Metadata = domain.Metadata{
		Name:         ref.Name,
		Size:         &size,
		MimeType:     ref.MimeType,
		ThumbnailURL: ref.ThumbnailURL,
	}

	id, err := p.Send(ctx, req)
	if err != nil {
		cleanupCtx := context.WithoutCancel(ctx)
		for _, url := range ref.urls() {
			if delErr := p.blobs.Delete(cleanupCtx, url); delErr != nil && !errors.Is(delErr, domain.ErrBlobNotFound) {
				p.logger.ErrorContext(ctx, "Failed to remove upload of unsent message", "blob_url", url, "error", delErr)
			}
		}
		return "", err
	}
	return id, nil
}

// Get returns a stored message; domain.ErrNotFound when it does not exist.
func (p *Pipeline) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return msg, nil
}

// Delete removes a message on explicit request. Attachments are deleted first; if that fails
// the record is kept and a *domain.BlobError is returned. Deleting a missing message is a no-op.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	logger := p.logger.With("message_id", id)

	msg, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.scheduler.Cancel(id)
			logger.DebugContext(ctx, "Delete requested for missing message")
			return nil
		}
		return &domain.StoreError{Op: "get", Err: err}
	}

	for _, url := range msg.BlobRefs() {
		if err := p.blobs.Delete(ctx, url); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
			logger.ErrorContext(ctx, "Failed to delete attachment, keeping message", "blob_url", url, "error", err)
			return &domain.BlobError{Op: "delete", Ref: url, Err: err}
		}
	}

	if err := p.repo.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.ErrorContext(ctx, "Failed to delete message", "error", err)
		return &domain.StoreError{Op: "delete", Err: err}
	}
	if p.scheduler.Cancel(id) {
		logger.InfoContext(ctx, "Cancelled pending self-destruct")
	}
	logger.InfoContext(ctx, "Message deleted", "chat_id", msg.ChatID)
	p.publish(ctx, domain.EventMessageDeleted, msg)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, typ domain.LifecycleEventType, msg *domain.Message) {
	ev := domain.LifecycleEvent{
		Type:       typ,
		MessageID:  msg.ID,
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		OccurredAt: p.clock.Now().UTC(),
	}
	if err := p.events.Publish(ctx, ev); err != nil {
		p.logger.WarnContext(ctx, "Failed to publish lifecycle event", "event", typ, "message_id", msg.ID, "error", err)
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.LifecycleEvent) error { return nil }

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// MessageRepository is an in-process domain.MessageRepository and domain.ChangeStream.
// It backs local development and tests; data does not survive a restart.
type MessageRepository struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
	lastTS   time.Time
	now      func() time.Time

	subsMu sync.Mutex
	subs   map[*changeSub]struct{}
}

// Option configures a MessageRepository.
type Option func(*MessageRepository)

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(r *MessageRepository) { r.now = now }
}

// NewMessageRepository creates an empty repository.
func NewMessageRepository(opts ...Option) *MessageRepository {
	r := &MessageRepository{
		messages: make(map[string]*domain.Message),
		now:      time.Now,
		subs:     make(map[*changeSub]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	r.mu.Lock()
	ts := r.now().UTC()
	if !ts.After(r.lastTS) {
		ts = r.lastTS.Add(time.Nanosecond)
	}
	r.lastTS = ts
	stored.Timestamp = ts
	r.messages[stored.ID] = &stored
	r.mu.Unlock()

	r.emit(domain.ChangeEvent{Op: domain.ChangeInsert, ChatID: stored.ChatID, MessageID: stored.ID})
	out := stored
	return &out, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, id string, next domain.Status) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	m, ok := r.messages[id]
	if !ok {
		r.mu.Unlock()
		return false, domain.ErrNotFound
	}
	if !m.Status.CanAdvanceTo(next) {
		r.mu.Unlock()
		return false, nil
	}
	m.Status = next
	if next == domain.StatusRead {
		m.IsRead = true
	}
	chatID := m.ChatID
	r.mu.Unlock()

	r.emit(domain.ChangeEvent{Op: domain.ChangeUpdate, ChatID: chatID, MessageID: id})
	return true, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	m, ok := r.messages[id]
	if !ok {
		r.mu.Unlock()
		return false, domain.ErrNotFound
	}
	if m.IsRead && m.Status == domain.StatusRead {
		r.mu.Unlock()
		return false, nil
	}
	m.IsRead = true
	m.Status = domain.StatusRead
	chatID := m.ChatID
	r.mu.Unlock()

	r.emit(domain.ChangeEvent{Op: domain.ChangeUpdate, ChatID: chatID, MessageID: id})
	return true, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	m, ok := r.messages[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(r.messages, id)
	chatID := m.ChatID
	r.mu.Unlock()

	r.emit(domain.ChangeEvent{Op: domain.ChangeDelete, ChatID: chatID, MessageID: id})
	return nil
}

func (r *MessageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.collect(func(m *domain.Message) bool { return m.ChatID == chatID })
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *MessageRepository) SearchContentRange(ctx context.Context, chatID, lo, hi string, limit int) ([]*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.collect(func(m *domain.Message) bool {
		return m.ChatID == chatID && m.Content >= lo && m.Content < hi
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Content != out[j].Content {
			return out[i].Content < out[j].Content
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored messages.
func (r *MessageRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

func (r *MessageRepository) collect(keep func(*domain.Message) bool) []*domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Message, 0)
	for _, m := range r.messages {
		if keep(m) {
			c := *m
			out = append(out, &c)
		}
	}
	return out
}

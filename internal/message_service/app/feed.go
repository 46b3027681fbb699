package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// ErrFeedClosed is reported to onError when a subscription is made on a closed feed.
var ErrFeedClosed = errors.New("live feed closed")

const defaultStreamRetryDelay = time.Second

// Feed serves live snapshots of a chat: the most recent messages in ascending timestamp
// order, once on subscribe and again after every change to the chat.
type Feed struct {
	repo   domain.MessageRepository
	limit  int
	logger *slog.Logger

	// delay before reopening a change stream that ended
	retryDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewFeed creates a feed that queries repo. limit <= 0 means domain.FeedLimit.
func NewFeed(repo domain.MessageRepository, limit int, logger *slog.Logger) *Feed {
	if limit <= 0 {
		limit = domain.FeedLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		repo:       repo,
		limit:      limit,
		logger:     logger.With("component", "live_feed"),
		retryDelay: defaultStreamRetryDelay,
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[string]map[*subscription]struct{}),
	}
}

type subscription struct {
	feed     *Feed
	chatID   string
	onUpdate func([]*domain.Message)
	onError  func(error)

	wake chan struct{}
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	idle    *sync.Cond
	stopped bool
	running bool
}

// Subscribe starts a standing query on chatID. onUpdate receives full snapshots, never
// concurrently for one subscription. Query errors go to onError, or to the log when onError
// is nil. The returned function detaches the subscription and is idempotent. It waits for an
// in-flight callback to return, so once it returns no callback is running or will start.
// A callback that wants to detach its own subscription must call it on another goroutine.
func (f *Feed) Subscribe(chatID string, onUpdate func([]*domain.Message), onError func(error)) func() {
	s := &subscription{
		feed:     f,
		chatID:   chatID,
		onUpdate: onUpdate,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		s.reportError(ErrFeedClosed)
		return func() {}
	}
	chatSubs, ok := f.subs[chatID]
	if !ok {
		chatSubs = make(map[*subscription]struct{})
		f.subs[chatID] = chatSubs
	}
	chatSubs[s] = struct{}{}
	f.mu.Unlock()

	feedSubscriptionsGauge.Inc()
	f.logger.Debug("Feed subscription added", "chat_id", chatID)

	s.poke() // initial snapshot
	go s.run()
	return s.stop
}

// Notify refreshes the subscriptions affected by ev.
func (f *Feed) Notify(ev domain.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ChatID == "" {
		for _, chatSubs := range f.subs {
			for s := range chatSubs {
				s.poke()
			}
		}
		return
	}
	for s := range f.subs[ev.ChatID] {
		s.poke()
	}
}

// Run feeds change notifications from stream into Notify until ctx is done. When the stream
// ends early it is reopened and every subscription is refreshed.
func (f *Feed) Run(ctx context.Context, stream domain.ChangeStream) error {
	for {
		changes, err := stream.Changes(ctx)
		if err != nil {
			f.logger.ErrorContext(ctx, "Could not open change stream", "error", err)
		} else {
			f.consume(ctx, changes)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.WarnContext(ctx, "Change stream ended, reopening", "retry_in", f.retryDelay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.retryDelay):
		}
		f.Notify(domain.ChangeEvent{})
	}
}

func (f *Feed) consume(ctx context.Context, changes <-chan domain.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			f.Notify(ev)
		}
	}
}

// Subscribers returns the number of active subscriptions on chatID.
func (f *Feed) Subscribers(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[chatID])
}

// Close detaches every subscription. Later Subscribe calls report ErrFeedClosed.
func (f *Feed) Close() {
	f.mu.Lock()
	f.closed = true
	var all []*subscription
	for _, chatSubs := range f.subs {
		for s := range chatSubs {
			all = append(all, s)
		}
	}
	f.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	f.cancel()
}

func (f *Feed) remove(s *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chatSubs := f.subs[s.chatID]
	if _, ok := chatSubs[s]; !ok {
		return
	}
	delete(chatSubs, s)
	if len(chatSubs) == 0 {
		delete(f.subs, s.chatID)
	}
}

func (s *subscription) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
		s.feed.remove(s)
		feedSubscriptionsGauge.Dec()
		s.feed.logger.Debug("Feed subscription removed", "chat_id", s.chatID)
	})

	s.mu.Lock()
	for s.running {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// deliver runs fn as a callback unless stop has run. The stopped check and the running mark
// happen under one lock, so stop either prevents fn or waits for it.
func (s *subscription) deliver(fn func()) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.idle.Broadcast()
		s.mu.Unlock()
	}()
	fn()
	return true
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		msgs, err := s.feed.repo.ListRecent(s.feed.ctx, s.chatID, s.feed.limit)
		if err != nil {
			feedSnapshotsCounter.WithLabelValues("query_error").Inc()
			if !s.deliver(func() { s.reportError(err) }) {
				return
			}
			continue
		}
		if !s.deliver(func() { s.onUpdate(msgs) }) {
			return
		}
		feedSnapshotsCounter.WithLabelValues("delivered").Inc()
	}
}

func (s *subscription) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	s.feed.logger.Error("Live feed query failed", "chat_id", s.chatID, "error", err)
}

package app

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// DestructScheduler removes messages once their self-destruct delay has elapsed.
//
// Tasks live in memory only: a registry keyed by message id plus a min-heap ordered by
// deadline. Pending tasks are lost on restart.
type DestructScheduler struct {
	repo   domain.MessageRepository
	blobs  domain.BlobStore
	events domain.EventPublisher
	clock  clock.Clock
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*destructTask
	queue taskQueue
	seq   uint64
	wake  chan struct{}
}

type destructTask struct {
	messageID string
	msgType   domain.MessageType
	blobRefs  []string
	deadline  time.Time
	seq       uint64
	index     int
}

// NewDestructScheduler creates a scheduler. events may be nil; clk nil means wall clock.
func NewDestructScheduler(
	repo domain.MessageRepository,
	blobs domain.BlobStore,
	events domain.EventPublisher,
	clk clock.Clock,
	logger *slog.Logger,
) *DestructScheduler {
	if events == nil {
		events = noopPublisher{}
	}
	if clk == nil {
		clk = clock.New()
	}
	return &DestructScheduler{
		repo:   repo,
		blobs:  blobs,
		events: events,
		clock:  clk,
		logger: logger.With("component", "destruct_scheduler"),
		tasks:  make(map[string]*destructTask),
		wake:   make(chan struct{}, 1),
	}
}

// Schedule registers removal of messageID delaySeconds from now. The delay counts from this
// call, not from the message timestamp. A second Schedule for the same id keeps the first task.
func (s *DestructScheduler) Schedule(messageID string, msgType domain.MessageType, blobRefs []string, delaySeconds int) {
	if delaySeconds <= 0 {
		return
	}
	deadline := s.clock.Now().Add(time.Duration(delaySeconds) * time.Second)

	s.mu.Lock()
	if _, exists := s.tasks[messageID]; exists {
		s.mu.Unlock()
		s.logger.Warn("Self-destruct already scheduled, ignoring", "message_id", messageID)
		return
	}
	s.seq++
	t := &destructTask{
		messageID: messageID,
		msgType:   msgType,
		blobRefs:  append([]string(nil), blobRefs...),
		deadline:  deadline,
		seq:       s.seq,
	}
	s.tasks[messageID] = t
	heap.Push(&s.queue, t)
	selfDestructPendingGauge.Set(float64(len(s.tasks)))
	s.mu.Unlock()

	s.logger.Info("Self-destruct scheduled", "message_id", messageID, "deadline", deadline.UTC().Format(time.RFC3339), "delay_seconds", delaySeconds)
	s.signal()
}

// Cancel drops the pending task of messageID and reports whether one existed.
func (s *DestructScheduler) Cancel(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[messageID]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, t.index)
	delete(s.tasks, messageID)
	selfDestructPendingGauge.Set(float64(len(s.tasks)))
	return true
}

// Pending returns the number of scheduled tasks.
func (s *DestructScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Deadline returns when messageID is due, if it is scheduled.
func (s *DestructScheduler) Deadline(messageID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[messageID]
	if !ok {
		return time.Time{}, false
	}
	return t.deadline, true
}

// RunDue executes every task whose deadline has passed and returns how many ran.
func (s *DestructScheduler) RunDue(ctx context.Context) int {
	due := s.popDue(s.clock.Now())
	for _, t := range due {
		s.destroy(ctx, t)
	}
	return len(due)
}

// Run executes tasks as they come due until ctx is done.
func (s *DestructScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Self-destruct worker started")
	for {
		s.RunDue(ctx)

		next, ok := s.nextDeadline()
		if !ok {
			select {
			case <-ctx.Done():
				s.logger.InfoContext(ctx, "Self-destruct worker stopping", "pending", s.Pending())
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		wait := next.Sub(s.clock.Now())
		if wait <= 0 {
			continue
		}
		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.InfoContext(ctx, "Self-destruct worker stopping", "pending", s.Pending())
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *DestructScheduler) destroy(ctx context.Context, t *destructTask) {
	logger := s.logger.With("message_id", t.messageID)
	logger.InfoContext(ctx, "Executing self-destruct", "late_by", s.clock.Since(t.deadline).String())

	refs := t.blobRefs
	msg, err := s.repo.GetByID(ctx, t.messageID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Deleted explicitly before the deadline.
		selfDestructCounter.WithLabelValues("already_gone").Inc()
		logger.InfoContext(ctx, "Message already gone, skipping self-destruct")
		return
	case err != nil:
		logger.ErrorContext(ctx, "Could not load message before self-destruct, using scheduled references", "error", err)
	default:
		refs = mergeRefs(refs, msg.BlobRefs())
	}

	outcome := "destroyed"
	if t.msgType.IsMedia() {
		for _, url := range refs {
			if err := s.blobs.Delete(ctx, url); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
				outcome = "blob_error"
				logger.ErrorContext(ctx, "Failed to delete attachment during self-destruct", "blob_url", url, "error", err)
			}
		}
	}

	if err := s.repo.Delete(ctx, t.messageID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			selfDestructCounter.WithLabelValues("already_gone").Inc()
			logger.InfoContext(ctx, "Message removed concurrently during self-destruct")
			return
		}
		selfDestructCounter.WithLabelValues("store_error").Inc()
		logger.ErrorContext(ctx, "Failed to delete message during self-destruct", "error", err)
		return
	}
	selfDestructCounter.WithLabelValues(outcome).Inc()
	logger.InfoContext(ctx, "Message self-destructed")

	chatID := ""
	if msg != nil {
		chatID = msg.ChatID
	}
	ev := domain.LifecycleEvent{
		Type:       domain.EventMessageDestroyed,
		MessageID:  t.messageID,
		ChatID:     chatID,
		OccurredAt: s.clock.Now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish lifecycle event", "event", ev.Type, "error", err)
	}
}

func (s *DestructScheduler) popDue(now time.Time) []*destructTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*destructTask
	for s.queue.Len() > 0 && !s.queue[0].deadline.After(now) {
		t := heap.Pop(&s.queue).(*destructTask)
		delete(s.tasks, t.messageID)
		due = append(due, t)
	}
	if len(due) > 0 {
		selfDestructPendingGauge.Set(float64(len(s.tasks)))
	}
	return due
}

func (s *DestructScheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return time.Time{}, false
	}
	return s.queue[0].deadline, true
}

func (s *DestructScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func mergeRefs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, r := range list {
			if _, ok := seen[r]; ok || r == "" {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// taskQueue is a container/heap min-heap by deadline, FIFO among equal deadlines.
type taskQueue []*destructTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].deadline.Equal(q[j].deadline) {
		return q[i].seq < q[j].seq
	}
	return q[i].deadline.Before(q[j].deadline)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*destructTask)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

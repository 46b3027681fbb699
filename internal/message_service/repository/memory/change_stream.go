package memory

import (
	"context"
	"sync"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// changeSub queues events for one Changes consumer so writers never block on a slow reader.
type changeSub struct {
	mu     sync.Mutex
	queue  []domain.ChangeEvent
	signal chan struct{}
}

func (s *changeSub) push(ev domain.ChangeEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *changeSub) drain() []domain.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// Changes implements domain.ChangeStream.
func (r *MessageRepository) Changes(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	sub := &changeSub{signal: make(chan struct{}, 1)}
	r.subsMu.Lock()
	r.subs[sub] = struct{}{}
	r.subsMu.Unlock()

	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		defer func() {
			r.subsMu.Lock()
			delete(r.subs, sub)
			r.subsMu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
			}
			for _, ev := range sub.drain() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *MessageRepository) emit(ev domain.ChangeEvent) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for sub := range r.subs {
		sub.push(ev)
	}
}

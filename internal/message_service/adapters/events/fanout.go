package events

import (
	"context"
	"errors"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// Fanout publishes to every publisher and joins their errors.
type Fanout []domain.EventPublisher

func (f Fanout) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

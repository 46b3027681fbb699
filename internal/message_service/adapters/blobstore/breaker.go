package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures BreakerStore.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32        // consecutive failures that open the breaker
	OpenTimeout time.Duration // how long the breaker stays open before probing
}

// BreakerStore guards a BlobStore with a circuit breaker so an unavailable blob backend
// fails fast instead of stalling sends and self-destruct runs.
type BreakerStore struct {
	next domain.BlobStore
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next domain.BlobStore, settings BreakerSettings, logger *slog.Logger) *BreakerStore {
	if settings.Name == "" {
		settings.Name = "blobstore"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A missing blob is an answer, not a backend failure.
			return err == nil || errors.Is(err, domain.ErrBlobNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Blob store circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Put(ctx, key, contentType, data)
	})
	if err != nil {
		return "", wrapBreakerErr(err)
	}
	return res.(string), nil
}

func (b *BreakerStore) Delete(ctx context.Context, url string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, url)
	})
	return wrapBreakerErr(err)
}

func (b *BreakerStore) Exists(ctx context.Context, url string) (bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Exists(ctx, url)
	})
	if err != nil {
		return false, wrapBreakerErr(err)
	}
	return res.(bool), nil
}

// State exposes the breaker state; /health reports it.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("blob store unavailable: %w", err)
	}
	return err
}

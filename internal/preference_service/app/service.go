package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lynqchat/golang_services/internal/preference_service/domain"
)

// MaxSelfDestructSeconds caps the self-destruct delay at one week.
const MaxSelfDestructSeconds = 7 * 24 * 60 * 60

type PreferenceService struct {
	repo   domain.PreferenceRepository
	logger *slog.Logger
}

func NewPreferenceService(repo domain.PreferenceRepository, logger *slog.Logger) *PreferenceService {
	return &PreferenceService{repo: repo, logger: logger.With("service", "preference")}
}

// Get returns the stored preference, or the zero preference (never self destruct) for
// users who have not set one.
func (s *PreferenceService) Get(ctx context.Context, userID string) (domain.Preference, error) {
	p, found, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.Preference{}, fmt.Errorf("load preferences of %s: %w", userID, err)
	}
	if !found {
		return domain.Preference{}, nil
	}
	return p, nil
}

// SelfDestructFor is the delay to pass to a send on behalf of userID. A lookup failure
// falls back to never, so a preference outage does not block sending.
func (s *PreferenceService) SelfDestructFor(ctx context.Context, userID string) int {
	p, err := s.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "Falling back to no self destruct", "user_id", userID, "error", err)
		return 0
	}
	return p.SelfDestructSeconds
}

func (s *PreferenceService) Update(ctx context.Context, userID string, update domain.PreferenceUpdate) (domain.Preference, error) {
	if v, ok := update.SelfDestructSeconds.Get(); ok && (v < 0 || v > MaxSelfDestructSeconds) {
		return domain.Preference{}, fmt.Errorf("%w: self_destruct_seconds must be between 0 and %d", domain.ErrInvalidPreference, MaxSelfDestructSeconds)
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Preference{}, err
	}
	next := update.Apply(current)
	if next == current {
		return current, nil
	}
	if err := s.repo.Save(ctx, userID, next); err != nil {
		return domain.Preference{}, fmt.Errorf("save preferences of %s: %w", userID, err)
	}
	s.logger.InfoContext(ctx, "Preferences updated", "user_id", userID, "self_destruct_seconds", next.SelfDestructSeconds)
	return next, nil
}

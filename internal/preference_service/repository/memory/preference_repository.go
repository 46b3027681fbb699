package memory

import (
	"context"
	"sync"

	"github.com/lynqchat/golang_services/internal/preference_service/domain"
)

type PreferenceRepository struct {
	mu    sync.RWMutex
	prefs map[string]domain.Preference
}

func NewPreferenceRepository() *PreferenceRepository {
	return &PreferenceRepository{prefs: make(map[string]domain.Preference)}
}

func (r *PreferenceRepository) Get(_ context.Context, userID string) (domain.Preference, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefs[userID]
	return p, ok, nil
}

func (r *PreferenceRepository) Save(_ context.Context, userID string, p domain.Preference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[userID] = p
	return nil
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	msgdomain "github.com/lynqchat/golang_services/internal/message_service/domain"
	"github.com/lynqchat/golang_services/internal/preference_service/domain"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix         = "prefs:"
	fieldSelfDestruct = "self_destruct_seconds"
)

// HashClient is the part of *redis.Client the repository uses.
type HashClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// PreferenceRepository keeps each user's preferences in a hash at prefs:<user id>.
type PreferenceRepository struct {
	client HashClient
}

func NewPreferenceRepository(client HashClient) *PreferenceRepository {
	return &PreferenceRepository{client: client}
}

func key(userID string) string { return keyPrefix + userID }

// Get parses the stored value leniently; anything unparsable means never.
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (domain.Preference, bool, error) {
	raw, err := r.client.HGet(ctx, key(userID), fieldSelfDestruct).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Preference{}, false, nil
	}
	if err != nil {
		return domain.Preference{}, false, fmt.Errorf("redis hget %s: %w", key(userID), err)
	}
	return domain.Preference{SelfDestructSeconds: msgdomain.ParseSelfDestruct(raw)}, true, nil
}

func (r *PreferenceRepository) Save(ctx context.Context, userID string, p domain.Preference) error {
	err := r.client.HSet(ctx, key(userID), fieldSelfDestruct, strconv.Itoa(p.SelfDestructSeconds)).Err()
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", key(userID), err)
	}
	return nil
}

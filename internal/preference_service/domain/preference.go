package domain

import (
	"context"
	"errors"
)

var ErrInvalidPreference = errors.New("invalid preference")

// Preference holds per-user defaults applied when composing messages.
type Preference struct {
	SelfDestructSeconds int `json:"self_destruct_seconds"`
}

// Optional distinguishes an absent value from a zero value.
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] { return Optional[T]{value: v, set: true} }

func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.set }

func (o Optional[T]) IsSet() bool { return o.set }

// OrElse returns the value when present and fallback otherwise.
func (o Optional[T]) OrElse(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}

// PreferenceUpdate is a partial update; unset fields keep their stored value.
type PreferenceUpdate struct {
	SelfDestructSeconds Optional[int]
}

// Apply returns p with the set fields of u.
func (u PreferenceUpdate) Apply(p Preference) Preference {
	p.SelfDestructSeconds = u.SelfDestructSeconds.OrElse(p.SelfDestructSeconds)
	return p
}

type PreferenceRepository interface {
	// Get reports found=false when the user has never stored preferences.
	Get(ctx context.Context, userID string) (p Preference, found bool, err error)
	Save(ctx context.Context, userID string, p Preference) error
}

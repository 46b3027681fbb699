package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptional(t *testing.T) {
	v, ok := Some(0).Get()
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	_, ok = None[int]().Get()
	assert.False(t, ok)
	assert.Equal(t, 7, None[int]().OrElse(7))
	assert.Equal(t, 3, Some(3).OrElse(7))

	var zero Optional[string]
	assert.False(t, zero.IsSet())
}

func TestPreferenceUpdate_Apply(t *testing.T) {
	stored := Preference{SelfDestructSeconds: 60}

	assert.Equal(t, stored, PreferenceUpdate{}.Apply(stored))
	assert.Equal(t, Preference{SelfDestructSeconds: 0},
		PreferenceUpdate{SelfDestructSeconds: Some(0)}.Apply(stored), "explicit zero clears the delay")
}

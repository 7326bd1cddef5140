package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	t.Run("register stamps created_at", func(t *testing.T) {
		require.NoError(t, r.Register(Channel{
			ID:     "blog",
			Name:   "Engineering Blog",
			Config: map[string]interface{}{"tone": "technical"},
		}))

		got, err := r.Get("blog")
		require.NoError(t, err)
		assert.Equal(t, "Engineering Blog", got.Name)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("empty ID rejected", func(t *testing.T) {
		assert.Error(t, r.Register(Channel{Name: "anon"}))
	})

	t.Run("unknown ID", func(t *testing.T) {
		_, err := r.Get("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("replace keeps latest config", func(t *testing.T) {
		require.NoError(t, r.Register(Channel{
			ID:     "blog",
			Name:   "Engineering Blog",
			Config: map[string]interface{}{"tone": "casual"},
		}))

		got, err := r.Get("blog")
		require.NoError(t, err)
		assert.Equal(t, "casual", got.Config["tone"])
	})

	t.Run("list sorted by ID", func(t *testing.T) {
		require.NoError(t, r.Register(Channel{ID: "newsletter", Name: "Weekly"}))
		require.NoError(t, r.Register(Channel{ID: "dev-news", Name: "Dev News"}))

		list := r.List()
		require.Len(t, list, 3)
		assert.Equal(t, []string{"blog", "dev-news", "newsletter"},
			[]string{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("remove", func(t *testing.T) {
		r.Remove("newsletter")
		_, err := r.Get("newsletter")
		assert.ErrorIs(t, err, ErrNotFound)

		r.Remove("newsletter") // no-op
	})
}

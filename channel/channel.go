// Package channel manages publication channels and the per-channel
// configuration workflow runs inherit (tone, audience, style).
package channel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a channel ID is unknown.
var ErrNotFound = errors.New("channel not found")

// Channel is one publication target.
type Channel struct {
	ID        string                 `json:"id" yaml:"id"`
	Name      string                 `json:"name" yaml:"name"`
	Config    map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	CreatedAt time.Time              `json:"created_at" yaml:"-"`
}

// Registry holds registered channels. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds or replaces a channel.
func (r *Registry) Register(ch Channel) error {
	if ch.ID == "" {
		return errors.New("channel ID cannot be empty")
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID] = ch
	return nil
}

// Get returns the channel for the given ID.
func (r *Registry) Get(id string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ch, nil
}

// List returns all channels sorted by ID.
func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes a channel. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, id)
}

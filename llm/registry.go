package llm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrEndpointNotFound is returned when an endpoint ID is not registered.
	ErrEndpointNotFound = errors.New("llm endpoint not found")

	// ErrEndpointDisabled is returned when a registered endpoint is disabled.
	ErrEndpointDisabled = errors.New("llm endpoint is disabled")

	// ErrUnknownProvider is returned for endpoints with an unsupported provider.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Registry holds the set of registered endpoints. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewRegistry creates an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register adds or replaces an endpoint. ID, provider, and model are
// required; provider must be one of the supported identifiers.
func (r *Registry) Register(ep Endpoint) error {
	if ep.ID == "" {
		return errors.New("endpoint ID cannot be empty")
	}
	if ep.Model == "" {
		return fmt.Errorf("endpoint %s: model cannot be empty", ep.ID)
	}
	switch ep.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("endpoint %s: %w: %s", ep.ID, ErrUnknownProvider, ep.Provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.ID] = ep
	return nil
}

// Get returns the endpoint for the given ID.
func (r *Registry) Get(id string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrEndpointNotFound, id)
	}
	return ep, nil
}

// List returns all registered endpoints sorted by ID.
func (r *Registry) List() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetEnabled toggles an endpoint without re-registering it.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEndpointNotFound, id)
	}
	ep.Enabled = enabled
	r.endpoints[id] = ep
	return nil
}

// Remove deletes an endpoint. Removing an unknown ID is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, id)
}

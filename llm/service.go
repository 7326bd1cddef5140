package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ClientFactory builds a provider client for an endpoint. The main
// binary wires the real SDK-backed factory; tests inject fakes.
type ClientFactory func(ep Endpoint) (Client, error)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
)

// Service implements Gateway on top of a Registry and a ClientFactory.
// Clients are built lazily and cached per endpoint ID. Callers that
// re-register an endpoint with new connection details must call
// Invalidate to drop the stale client.
//
// Transient provider failures (rate limits, 5xx, network faults) are
// retried with a growing delay; permanent ones return immediately.
type Service struct {
	registry *Registry
	factory  ClientFactory

	maxRetries int
	retryDelay time.Duration

	mu      sync.Mutex
	clients map[string]Client
}

// NewService creates a gateway over the given registry.
func NewService(registry *Registry, factory ClientFactory) *Service {
	return &Service{
		registry:   registry,
		factory:    factory,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		clients:    make(map[string]Client),
	}
}

// Chat resolves the endpoint, dispatches the prompt to its provider
// client, and returns the completion with wall-clock timing in seconds.
func (s *Service) Chat(ctx context.Context, endpointID, prompt string, temperature float64) (ChatResult, error) {
	ep, err := s.registry.Get(endpointID)
	if err != nil {
		return ChatResult{}, err
	}
	if !ep.Enabled {
		return ChatResult{}, fmt.Errorf("%w: %s", ErrEndpointDisabled, endpointID)
	}

	client, err := s.client(ep)
	if err != nil {
		return ChatResult{}, err
	}

	start := time.Now()
	completion, err := s.complete(ctx, ep, client, prompt, temperature)
	if err != nil {
		return ChatResult{}, fmt.Errorf("endpoint %s: %w", endpointID, err)
	}

	return ChatResult{
		Content:     completion.Content,
		ElapsedTime: time.Since(start).Seconds(),
		TokensUsed:  completion.TokensUsed,
	}, nil
}

// complete calls the client, retrying transient failures up to
// maxRetries times. The delay grows linearly per attempt; context
// cancellation aborts the wait.
func (s *Service) complete(ctx context.Context, ep Endpoint, client Client, prompt string, temperature float64) (Completion, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		completion, err := client.Complete(ctx, prompt, temperature)
		if err == nil {
			return completion, nil
		}

		lastErr = ClassifyProviderError(ep.Provider, err)
		if !IsRetryable(lastErr) {
			return Completion{}, lastErr
		}
		if attempt == s.maxRetries {
			return Completion{}, fmt.Errorf("giving up after %d attempts: %w", attempt+1, lastErr)
		}

		select {
		case <-time.After(s.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
	return Completion{}, lastErr
}

// Invalidate drops the cached client for an endpoint, forcing the next
// Chat call to rebuild it from the current registry entry.
func (s *Service) Invalidate(endpointID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, endpointID)
}

func (s *Service) client(ep Endpoint) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[ep.ID]; ok {
		return c, nil
	}
	c, err := s.factory(ep)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", ep.ID, err)
	}
	s.clients[ep.ID] = c
	return c, nil
}

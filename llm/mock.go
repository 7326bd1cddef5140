package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockCall records one Chat invocation against a MockGateway.
type MockCall struct {
	EndpointID  string
	Prompt      string
	Temperature float64
}

// MockGateway is a configurable Gateway test double. Responses are
// served per endpoint ID; unmatched IDs fall back to DefaultResponse.
// Safe for concurrent use.
type MockGateway struct {
	mu sync.Mutex

	// Responses maps endpoint ID to the content returned for it.
	Responses map[string]string

	// DefaultResponse is returned when no per-endpoint response matches.
	DefaultResponse string

	// Err, when set, is returned by every Chat call.
	Err error

	// ChatFunc, when set, overrides all other behavior.
	ChatFunc func(ctx context.Context, endpointID, prompt string, temperature float64) (ChatResult, error)

	calls []MockCall
}

// NewMockGateway creates a mock that echoes a canned string.
func NewMockGateway(defaultResponse string) *MockGateway {
	return &MockGateway{
		Responses:       make(map[string]string),
		DefaultResponse: defaultResponse,
	}
}

// Chat implements Gateway.
func (m *MockGateway) Chat(ctx context.Context, endpointID, prompt string, temperature float64) (ChatResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{EndpointID: endpointID, Prompt: prompt, Temperature: temperature})
	fn := m.ChatFunc
	err := m.Err
	content, ok := m.Responses[endpointID]
	if !ok {
		content = m.DefaultResponse
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, endpointID, prompt, temperature)
	}
	if err != nil {
		return ChatResult{}, fmt.Errorf("mock gateway: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ChatResult{}, ctxErr
	}
	return ChatResult{Content: content, ElapsedTime: 0.001, TokensUsed: len(prompt) / 4}, nil
}

// Calls returns a copy of all recorded invocations.
func (m *MockGateway) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Chat invocations so far.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

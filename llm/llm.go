// Package llm provides a provider-agnostic gateway for chat-style
// language model calls. Endpoints are registered at runtime with their
// provider, base URL, credentials, and model; callers address them by
// endpoint ID and never construct SDK clients themselves.
package llm

import "context"

// Provider identifiers for the supported SDK backends.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Endpoint describes one registered model endpoint. The BaseURL lets
// OpenAI-compatible servers (vLLM, Ollama, LM Studio) be addressed with
// the same provider implementation as the hosted API.
type Endpoint struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey   string `json:"-" yaml:"api_key,omitempty"`
	Model    string `json:"model" yaml:"model"`
	Enabled  bool   `json:"enabled" yaml:"enabled"`
}

// Completion is the raw output of a single model call.
type Completion struct {
	Content    string
	TokensUsed int
}

// ChatResult is what the gateway hands back to workflow nodes: the
// model output plus timing, so nodes can record generation metadata.
type ChatResult struct {
	Content     string  `json:"content"`
	ElapsedTime float64 `json:"elapsed_time"`
	TokensUsed  int     `json:"tokens_used"`
}

// Client is a low-level model client bound to one endpoint. Provider
// subpackages implement it over their respective SDKs.
type Client interface {
	Complete(ctx context.Context, prompt string, temperature float64) (Completion, error)
}

// Gateway is the call surface workflow nodes depend on. Implementations
// resolve the endpoint ID, dispatch to the right provider client, and
// time the call.
type Gateway interface {
	Chat(ctx context.Context, endpointID, prompt string, temperature float64) (ChatResult, error)
}

// Package google implements llm.Client over the generative-ai-go
// Gemini client.
package google

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/chanops/contentflow/llm"
)

// Client wraps one Gemini endpoint and model.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a client for the given endpoint. The genai client dials
// lazily, so no network traffic happens here.
func New(ctx context.Context, ep llm.Endpoint) (*Client, error) {
	if ep.APIKey == "" {
		return nil, errors.New("google: API key cannot be empty")
	}
	if ep.Model == "" {
		return nil, errors.New("google: model cannot be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(ep.APIKey))
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: ep.Model}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(float32(temperature))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return llm.Completion{}, llm.ClassifyProviderError("google", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return llm.Completion{}, errors.New("google: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return llm.Completion{Content: sb.String(), TokensUsed: tokens}, nil
}

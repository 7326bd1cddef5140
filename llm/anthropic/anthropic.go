// Package anthropic implements llm.Client over the official
// anthropic-sdk-go client.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chanops/contentflow/llm"
)

const defaultMaxTokens = 4096

// Client wraps one Anthropic endpoint and model.
type Client struct {
	client *anthropic.Client
	model  string
}

// New creates a client for the given endpoint.
func New(ep llm.Endpoint) (*Client, error) {
	if ep.APIKey == "" {
		return nil, errors.New("anthropic: API key cannot be empty")
	}
	if ep.Model == "" {
		return nil, errors.New("anthropic: model cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(ep.APIKey)}
	if ep.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(ep.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Client{client: &client, model: ep.Model}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   defaultMaxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return llm.Completion{}, llm.ClassifyProviderError("anthropic", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return llm.Completion{}, errors.New("anthropic: empty response")
	}

	return llm.Completion{
		Content:    sb.String(),
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}

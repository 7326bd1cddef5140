// Package openai implements llm.Client over the official OpenAI Go SDK.
// With a custom base URL it also serves any OpenAI-compatible server
// (vLLM, Ollama, LM Studio).
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/chanops/contentflow/llm"
)

// Client wraps one OpenAI-API endpoint and model.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a client for the given endpoint. APIKey and Model are
// required; BaseURL is optional and overrides the hosted API.
func New(ep llm.Endpoint) (*Client, error) {
	if ep.APIKey == "" {
		return nil, errors.New("openai: API key cannot be empty")
	}
	if ep.Model == "" {
		return nil, errors.New("openai: model cannot be empty")
	}

	opts := []option.RequestOption{option.WithAPIKey(ep.APIKey)}
	if ep.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(ep.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client, model: ep.Model}, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (llm.Completion, error) {
	if err := ctx.Err(); err != nil {
		return llm.Completion{}, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return llm.Completion{}, llm.ClassifyProviderError("openai", err)
	}

	if len(completion.Choices) == 0 {
		return llm.Completion{}, errors.New("openai: empty response")
	}

	return llm.Completion{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

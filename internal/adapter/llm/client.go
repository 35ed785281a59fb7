package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Client talks to an OpenAI-compatible chat completions gateway.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a Client. timeout bounds each request.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

// Complete sends a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", errors.Wrapf(err, "%s completion failed", req.Purpose)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Errorf("%s completion returned no choices", req.Purpose)
	}
	return resp.Choices[0].Message.Content, nil
}

package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Ding0127/qa-chatbot/internal/domain"
)

// ChatClient issues one-shot (non-streaming) chat completions. The
// intention classifier uses it; answer generation goes through the
// streaming client instead.
type ChatClient struct {
	client *openai.Client
	model  string
}

// ChatConfig holds the completion provider settings for one-shot calls.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewChatClient creates an OpenAI-compatible chat client.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &ChatClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Complete sends a system+user message pair and returns the reply text.
func (c *ChatClient) Complete(
	ctx context.Context, system, user string, temperature float32, maxTokens int,
) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w: %v", domain.ErrCompletionProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion response: %w", domain.ErrCompletionProviderError)
	}

	return resp.Choices[0].Message.Content, nil
}

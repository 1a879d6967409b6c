package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"NewsDigest/internal/ports"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements ports.Completer on top of the Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ ports.Completer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client; baseURL is only set in tests and for proxies.
func NewAnthropicClient(apiKey, model, baseURL string, logger *zap.Logger) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{client: &client, model: model, logger: logger}
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Complete sends a single user turn. In JSON mode the answer is prefilled with "{"
// so the model continues a JSON object.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	if opts.JSON {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")))
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic returned empty response")
	}

	c.logger.Debug("completion done",
		zap.String("model", c.model),
		zap.Int64("input_tokens", message.Usage.InputTokens),
		zap.Int64("output_tokens", message.Usage.OutputTokens))

	if opts.JSON {
		return "{" + text.String(), nil
	}
	return text.String(), nil
}

package tokenizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/botirk38/chunkcache/types"
)

// DefaultAnthropicModel is the model counted against when none is configured.
const DefaultAnthropicModel = "claude-3-5-sonnet-20241022"

// AnthropicCounter counts tokens with Anthropic's token counting endpoint.
type AnthropicCounter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicCounter creates a counter using client. model defaults to
// DefaultAnthropicModel.
func NewAnthropicCounter(client *anthropic.Client, model string) *AnthropicCounter {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicCounter{
		client: client,
		model:  model,
	}
}

// CountTokens counts text sent as a single user message.
func (t *AnthropicCounter) CountTokens(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return t.count(ctx, []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
	})
}

// CountMessages counts a conversation. System messages are sent as user
// turns since the count only depends on their content.
func (t *AnthropicCounter) CountMessages(ctx context.Context, messages []types.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == types.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return t.count(ctx, params)
}

func (t *AnthropicCounter) count(ctx context.Context, messages []anthropic.MessageParam) (int, error) {
	// Client is required for Anthropic token counting
	if t.client == nil {
		return 0, errors.New("anthropic client is required for token counting")
	}

	result, err := t.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(t.model),
		Messages: messages,
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic token counting failed: %w", err)
	}

	return int(result.InputTokens), nil
}

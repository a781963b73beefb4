package tokenizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/botirk38/chunkcache/types"
	"google.golang.org/genai"
)

// GeminiCounter counts tokens with the Gemini token counting endpoint.
type GeminiCounter struct {
	client *genai.Client
	model  string
}

// NewGeminiCounter creates a counter for model using client.
func NewGeminiCounter(client *genai.Client, model string) *GeminiCounter {
	return &GeminiCounter{
		client: client,
		model:  model,
	}
}

// CountTokens counts text sent as a single user turn.
func (t *GeminiCounter) CountTokens(ctx context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return t.count(ctx, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)})
}

// CountMessages counts a conversation. Assistant turns map to the model
// role; system and user turns to the user role.
func (t *GeminiCounter) CountMessages(ctx context.Context, messages []types.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return t.count(ctx, contents)
}

func (t *GeminiCounter) count(ctx context.Context, contents []*genai.Content) (int, error) {
	if t.client == nil {
		return 0, errors.New("gemini client is required for token counting")
	}
	if t.model == "" {
		return 0, errors.New("gemini model is required for token counting")
	}

	result, err := t.client.Models.CountTokens(ctx, t.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("gemini token counting failed: %w", err)
	}

	return int(result.TotalTokens), nil
}

package tokenizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/botirk38/chunkcache/types"
	"github.com/tiktoken-go/tokenizer"
)

// TiktokenCounter counts tokens locally with a tiktoken encoding. It serves
// OpenAI models and any OpenAI-compatible server when exact counts are not
// required.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter loads encoding. Cl100kBase is used when encoding is empty.
func NewTiktokenCounter(encoding tokenizer.Encoding) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = tokenizer.Cl100kBase
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %s: %w", encoding, err)
	}

	return &TiktokenCounter{codec: codec}, nil
}

// CountTokens counts the tokens of text.
// This is a local, fast operation that doesn't require an API call
func (t *TiktokenCounter) CountTokens(_ context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("tiktoken encoding failed: %w", err)
	}
	return len(ids), nil
}

// CountMessages renders messages with the ChatML template, including the
// trailing assistant prompt, and counts the result.
func (t *TiktokenCounter) CountMessages(ctx context.Context, messages []types.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}
	return t.CountTokens(ctx, RenderChatML(messages))
}

// RenderChatML renders messages the way chat-tuned models see them.
func RenderChatML(messages []types.Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(string(m.Role))
		b.WriteByte('\n')
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}

// Package providers builds the text-generation backends used by the
// boundary arbiter.
package providers

import (
	"github.com/botirk38/chunkcache/providers/openai"
	"github.com/botirk38/chunkcache/types"
)

// NewOpenAICompleter creates a completer for the OpenAI API or an
// OpenAI-compatible server.
func NewOpenAICompleter(config openai.Config, opts ...openai.Option) (types.Completer, error) {
	return openai.NewClient(config, opts...)
}

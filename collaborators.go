package chunkcache

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/botirk38/chunkcache/types"
)

// ErrMessagesUnsupported is returned by a cached counter whose wrapped
// counter cannot count chat messages.
var ErrMessagesUnsupported = errors.New("token counter does not support messages")

type cachedCounter struct {
	tag      string
	text     Func2[string, string, int]
	messages Func2[string, []types.Message, int]
}

// CachedTokenCounter memoizes counter through m. The counter's type is part
// of the key as an instance tag, so counters of different types never share
// results.
func CachedTokenCounter(m *CacheManager, ttl time.Duration, counter types.TokenCounter) types.TokenCounter {
	return &cachedCounter{
		tag: InstanceTag(reflect.TypeOf(counter)),
		text: Cached2(m, ttl, func(ctx context.Context, _ string, text string) (int, error) {
			return counter.CountTokens(ctx, text)
		}),
		messages: Cached2(m, ttl, func(ctx context.Context, _ string, msgs []types.Message) (int, error) {
			mc, ok := counter.(types.MessageCounter)
			if !ok {
				return 0, ErrMessagesUnsupported
			}
			return mc.CountMessages(ctx, msgs)
		}),
	}
}

func (c *cachedCounter) CountTokens(ctx context.Context, text string) (int, error) {
	return c.text(ctx, c.tag, text)
}

func (c *cachedCounter) CountMessages(ctx context.Context, messages []types.Message) (int, error) {
	return c.messages(ctx, c.tag, messages)
}

type cachedArbiter struct {
	tag     string
	propose Func2[string, string, []string]
}

// CachedArbiter memoizes arbiter proposals through m so unchanged text is
// never sent to the arbiter twice.
func CachedArbiter(m *CacheManager, ttl time.Duration, arbiter types.BoundaryArbiter) types.BoundaryArbiter {
	return &cachedArbiter{
		tag: InstanceTag(reflect.TypeOf(arbiter)),
		propose: Cached2(m, ttl, func(ctx context.Context, _ string, text string) ([]string, error) {
			return arbiter.ProposeSplit(ctx, text)
		}),
	}
}

func (a *cachedArbiter) ProposeSplit(ctx context.Context, text string) ([]string, error) {
	return a.propose(ctx, a.tag, text)
}

// modelNamer is implemented by completers that talk to a specific model.
type modelNamer interface {
	ModelName() string
}

type cachedCompleter struct {
	inner    types.Completer
	complete Func[Call, *types.Completion]
}

// CachedCompleter memoizes text generation through m. The key covers the
// messages, the response format and, when the completer exposes it, the
// model name.
func CachedCompleter(m *CacheManager, ttl time.Duration, completer types.Completer) types.Completer {
	return &cachedCompleter{
		inner: completer,
		complete: CachedCall(m, ttl, func(ctx context.Context, call Call) (*types.Completion, error) {
			msgs, _ := call.Kwargs["messages"].([]types.Message)
			format, _ := call.Kwargs["format"].(types.ResponseFormat)
			return completer.Complete(ctx, msgs, format)
		}),
	}
}

func (c *cachedCompleter) Complete(ctx context.Context, messages []types.Message, format types.ResponseFormat) (*types.Completion, error) {
	kwargs := map[string]any{
		"messages": messages,
		"format":   format,
	}
	if n, ok := c.inner.(modelNamer); ok {
		kwargs["model"] = n.ModelName()
	}
	return c.complete(ctx, Call{Args: []any{InstanceTag(reflect.TypeOf(c.inner))}, Kwargs: kwargs})
}

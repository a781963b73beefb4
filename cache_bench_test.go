package chunkcache_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/botirk38/chunkcache"
	"github.com/botirk38/chunkcache/backends"
	"github.com/botirk38/chunkcache/chunker"
	"github.com/botirk38/chunkcache/types"
)

// runeCounter is a deterministic stand-in for a real tokenizer.
type runeCounter struct{}

func (runeCounter) CountTokens(_ context.Context, text string) (int, error) {
	return len([]rune(text)), nil
}

func setupManager(b *testing.B, backendType types.BackendType, capacity int) *chunkcache.CacheManager {
	config := types.BackendConfig{Capacity: capacity}
	factory := &backends.BackendFactory{}
	backend, err := factory.NewBackend(backendType, config)
	if err != nil {
		b.Fatalf("Failed to create backend: %v", err)
	}

	m, err := chunkcache.NewCacheManager(string(backendType), backend, nil, nil)
	if err != nil {
		b.Fatalf("Failed to create cache manager: %v", err)
	}
	return m
}

func BenchmarkCachedMiss(b *testing.B) {
	for _, backendType := range []types.BackendType{types.BackendMemory, types.BackendLRU} {
		b.Run(string(backendType), func(b *testing.B) {
			m := setupManager(b, backendType, 10000)
			defer m.Close()
			ctx := context.Background()
			fn := chunkcache.Cached(m, 0, func(_ context.Context, s string) (int, error) {
				return len(s), nil
			})

			b.ResetTimer()
			for i := 0; b.Loop(); i++ {
				if _, err := fn(ctx, "text"+strconv.Itoa(i)); err != nil {
					b.Fatalf("call failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkCachedHit(b *testing.B) {
	for _, backendType := range []types.BackendType{types.BackendMemory, types.BackendLRU} {
		b.Run(string(backendType), func(b *testing.B) {
			m := setupManager(b, backendType, 1000)
			defer m.Close()
			ctx := context.Background()
			fn := chunkcache.Cached(m, 0, func(_ context.Context, s string) (int, error) {
				return len(s), nil
			})

			// Pre-populate cache
			for i := range 100 {
				_, _ = fn(ctx, "text"+strconv.Itoa(i))
			}

			b.ResetTimer()
			for i := 0; b.Loop(); i++ {
				_, _ = fn(ctx, "text"+strconv.Itoa(i%100))
			}
		})
	}
}

func BenchmarkKey(b *testing.B) {
	k := chunkcache.NewKeyer(nil)
	args := []any{&runeCounter{}, strings.Repeat("段落内容。", 200)}
	kwargs := map[string]any{"format": "json", "tags": map[string]struct{}{"a": {}, "b": {}}}

	for b.Loop() {
		_, _ = k.Key(args, kwargs)
	}
}

func BenchmarkChunkWithCachedCounter(b *testing.B) {
	var sb strings.Builder
	for i := range 400 {
		if i%25 == 0 {
			sb.WriteString("数日后，")
		}
		sb.WriteString(strings.Repeat("他走在路上。", 10))
		sb.WriteString("\n\n")
	}
	chapters := []string{sb.String(), sb.String()}

	m := setupManager(b, types.BackendMemory, 100000)
	defer m.Close()

	config := chunker.ChunkConfig{
		MaxTokensPerChunk:  2000,
		MinTokensPerChunk:  500,
		ParagraphSeparator: "\n\n",
		SafeBreakKeywords:  []string{"数日后"},
	}
	c, err := chunker.NewSemanticChunker(config,
		chunker.WithTokenCounter(chunkcache.CachedTokenCounter(m, 0, runeCounter{})))
	if err != nil {
		b.Fatalf("Failed to create chunker: %v", err)
	}

	ctx := context.Background()
	b.ResetTimer()
	for b.Loop() {
		if _, err := c.Chunk(ctx, chapters); err != nil {
			b.Fatalf("Chunk failed: %v", err)
		}
	}
}

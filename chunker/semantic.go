package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/metrics"
	"github.com/botirk38/chunkcache/types"
)

// SemanticChunker packs paragraphs greedily into chunks and prefers to cut
// where the next paragraph signals a narrative transition.
//
// For every paragraph the chunker tries to extend the current buffer. When
// the extension would exceed MaxTokensPerChunk and the buffer has reached
// MinTokensPerChunk, the buffer is emitted:
//
//   - as one natural chunk if the paragraph matches a safe-break keyword,
//   - as two natural chunks if refinement is enabled and the arbiter returns
//     a valid split,
//   - otherwise as one forced chunk.
//
// A buffer still below MinTokensPerChunk keeps growing past the budget until
// it can be cut. A buffer that has reached the minimum is force-cut even when
// refinement is disabled, rather than accumulating until the next safe
// keyword, so chunks without natural breaks stay near MaxTokensPerChunk. The
// final buffer is always emitted as "end of text".
//
// A SemanticChunker holds no state between calls, but its collaborators may;
// use one per goroutine unless they are safe for concurrent use.
type SemanticChunker struct {
	config   ChunkConfig
	patterns []*regexp.Regexp
	counter  types.TokenCounter
	arbiter  types.BoundaryArbiter
	log      logger.Logger
	metrics  *metrics.Metrics
}

// Option configures a SemanticChunker.
type Option func(*SemanticChunker)

// WithTokenCounter sets the token estimator. Without one, the chunker
// counts characters.
func WithTokenCounter(counter types.TokenCounter) Option {
	return func(c *SemanticChunker) {
		c.counter = counter
	}
}

// WithArbiter sets the boundary arbiter used when refinement is enabled.
func WithArbiter(arbiter types.BoundaryArbiter) Option {
	return func(c *SemanticChunker) {
		c.arbiter = arbiter
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *SemanticChunker) {
		c.log = l
	}
}

// WithMetrics counts emitted chunks by break reason.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *SemanticChunker) {
		c.metrics = m
	}
}

// NewSemanticChunker validates config and creates a chunker.
func NewSemanticChunker(config ChunkConfig, opts ...Option) (*SemanticChunker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk config: %w", err)
	}

	patterns, err := compilePatterns(config.SafeBreakKeywords)
	if err != nil {
		return nil, err
	}

	c := &SemanticChunker{
		config:   config,
		patterns: patterns,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrDiscard(c.log)

	if config.UseArbiterForRefinement && c.arbiter == nil {
		return nil, ErrArbiterRequired
	}

	return c, nil
}

// Config returns the configuration the chunker was built with.
func (c *SemanticChunker) Config() ChunkConfig {
	return c.config
}

// SplitParagraphs splits text on sep, trims every paragraph and drops the
// empty ones.
func SplitParagraphs(text, sep string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	for _, p := range strings.Split(text, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsSafeBreak reports whether paragraph matches any safe-break keyword.
func (c *SemanticChunker) IsSafeBreak(paragraph string) bool {
	for _, re := range c.patterns {
		if re.MatchString(paragraph) {
			return true
		}
	}
	return false
}

// buffer is the in-progress chunk.
type buffer struct {
	paragraphs []string
	start      int
	end        int
	tokens     int
}

func (b *buffer) empty() bool {
	return len(b.paragraphs) == 0
}

func (b *buffer) text(sep string) string {
	return strings.Join(b.paragraphs, sep)
}

func (b *buffer) add(p string, chapter, tokens int) {
	if b.empty() {
		b.start = chapter
	}
	b.paragraphs = append(b.paragraphs, p)
	b.end = chapter
	b.tokens = tokens
}

func (b *buffer) reset() {
	b.paragraphs = nil
	b.tokens = 0
}

// Chunk splits chapters into chunks. Chapter indexes in the result are
// 1-based. Token counter and arbiter errors are returned as is, wrapped
// with ErrTokenizerFailed or ErrArbiterFailed.
func (c *SemanticChunker) Chunk(ctx context.Context, chapters []string) ([]TextChunk, error) {
	var (
		chunks []TextChunk
		buf    buffer
		sep    = c.config.ParagraphSeparator
	)

	for i, chapter := range chapters {
		chapterNum := i + 1

		for _, p := range SplitParagraphs(chapter, sep) {
			if buf.empty() {
				tokens, err := c.count(ctx, p)
				if err != nil {
					return nil, err
				}
				buf.add(p, chapterNum, tokens)
				continue
			}

			tentative := buf.text(sep) + sep + p
			tokens, err := c.count(ctx, tentative)
			if err != nil {
				return nil, err
			}

			if tokens <= c.config.MaxTokensPerChunk {
				buf.add(p, chapterNum, tokens)
				continue
			}

			if buf.tokens < c.config.MinTokensPerChunk {
				c.log.Debug("Buffer below minimum, growing past budget",
					"chapter", chapterNum, "buffer_tokens", buf.tokens, "tokens", tokens)
				buf.add(p, chapterNum, tokens)
				continue
			}

			emitted, err := c.cut(ctx, &buf, p)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, emitted...)

			pTokens, err := c.count(ctx, p)
			if err != nil {
				return nil, err
			}
			buf.reset()
			buf.add(p, chapterNum, pTokens)
		}
	}

	if !buf.empty() {
		chunks = append(chunks, c.emit(buf.text(sep), &buf, buf.tokens, true, ReasonEndOfText))
	}

	c.log.Debug("Chunking finished", "chapters", len(chapters), "chunks", len(chunks))
	return chunks, nil
}

// cut emits the buffer ahead of the overflowing paragraph next.
func (c *SemanticChunker) cut(ctx context.Context, buf *buffer, next string) ([]TextChunk, error) {
	text := buf.text(c.config.ParagraphSeparator)

	if c.IsSafeBreak(next) {
		return []TextChunk{c.emit(text, buf, buf.tokens, true, ReasonSafeKeyword)}, nil
	}

	if c.config.UseArbiterForRefinement {
		parts, err := c.arbiter.ProposeSplit(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArbiterFailed, err)
		}

		if validSplit(text, parts) {
			out := make([]TextChunk, 0, len(parts))
			for _, part := range parts {
				part = strings.TrimSpace(part)
				tokens, err := c.count(ctx, part)
				if err != nil {
					return nil, err
				}
				out = append(out, c.emit(part, buf, tokens, true, ReasonArbiter))
			}
			return out, nil
		}

		if len(parts) > 0 {
			c.log.Warn("Ignoring malformed arbiter split",
				"parts", len(parts), "buffer_tokens", buf.tokens)
		}
	}

	return []TextChunk{c.emit(text, buf, buf.tokens, false, ReasonForced)}, nil
}

// validSplit reports whether parts is a two-way split of text that keeps
// every byte and leaves no side empty.
func validSplit(text string, parts []string) bool {
	if len(parts) != 2 {
		return false
	}
	if parts[0]+parts[1] != text {
		return false
	}
	return strings.TrimSpace(parts[0]) != "" && strings.TrimSpace(parts[1]) != ""
}

func (c *SemanticChunker) emit(text string, buf *buffer, tokens int, natural bool, reason string) TextChunk {
	c.metrics.Chunk(reason)
	c.log.Debug("Chunk emitted",
		"start_chapter", buf.start, "end_chapter", buf.end, "tokens", tokens, "reason", reason)

	return TextChunk{
		StartChapterIndex: buf.start,
		EndChapterIndex:   buf.end,
		Text:              strings.TrimSpace(text),
		EstimatedTokens:   tokens,
		IsNaturalBreak:    natural,
		BreakReason:       reason,
	}
}

func (c *SemanticChunker) count(ctx context.Context, text string) (int, error) {
	if c.counter == nil {
		return utf8.RuneCountInString(text), nil
	}
	n, err := c.counter.CountTokens(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTokenizerFailed, err)
	}
	return n, nil
}

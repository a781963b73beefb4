package chunker

import (
	"context"
	"fmt"
	"regexp"
)

// Chunker defines the interface for text chunking strategies.
type Chunker interface {
	// Chunk splits an ordered chapter sequence into ordered chunks.
	// Each call starts from an empty buffer.
	Chunk(ctx context.Context, chapters []string) ([]TextChunk, error)
}

// ChunkConfig holds configuration for text chunking behavior.
// It maps onto the `chunking:` node of the YAML configuration.
type ChunkConfig struct {
	// MaxTokensPerChunk is the token budget a chunk may grow to before
	// a cut is attempted.
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk" json:"max_tokens_per_chunk"`

	// MinTokensPerChunk is the size below which a buffer is never cut,
	// even when it overflows the budget.
	MinTokensPerChunk int `yaml:"min_tokens_per_chunk" json:"min_tokens_per_chunk"`

	// ParagraphSeparator splits chapters into paragraphs and joins
	// paragraphs back into chunk text.
	ParagraphSeparator string `yaml:"paragraph_separator" json:"paragraph_separator"`

	// SafeBreakKeywords are regular expressions. A paragraph matching any
	// of them may start a new chunk.
	SafeBreakKeywords []string `yaml:"safe_break_keywords" json:"safe_break_keywords"`

	// UseArbiterForRefinement asks the boundary arbiter for a split when
	// no safe keyword is available.
	UseArbiterForRefinement bool `yaml:"use_llm_for_refinement" json:"use_llm_for_refinement"`
}

// Break reasons reported on TextChunk.
const (
	ReasonSafeKeyword = "safe keyword"
	ReasonForced      = "forced: max token limit"
	ReasonArbiter     = "arbiter split"
	ReasonEndOfText   = "end of text"
)

// TextChunk is a contiguous run of paragraphs emitted by a Chunker.
type TextChunk struct {
	// StartChapterIndex and EndChapterIndex are the 1-based inclusive
	// chapter range the chunk covers.
	StartChapterIndex int `json:"start_chapter_idx"`
	EndChapterIndex   int `json:"end_chapter_idx"`

	// Text is the separator-joined paragraphs of the chunk, trimmed.
	Text string `json:"text"`

	// EstimatedTokens is the token count of Text.
	EstimatedTokens int `json:"estimated_tokens"`

	// IsNaturalBreak is false only when the cut was forced by the budget.
	IsNaturalBreak bool `json:"is_natural_break"`

	// BreakReason is one of the Reason constants.
	BreakReason string `json:"break_reason"`
}

// DefaultChunkConfig returns the default chunking configuration.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxTokensPerChunk:  4000,
		MinTokensPerChunk:  1000,
		ParagraphSeparator: "\n\n",
		SafeBreakKeywords: []string{
			"数日后", "翌日", "与此同时", "另一边", "年后",
		},
		UseArbiterForRefinement: false,
	}
}

// Validate checks if the chunk configuration is valid.
func (c ChunkConfig) Validate() error {
	if c.MaxTokensPerChunk <= 0 {
		return ErrInvalidMaxTokens
	}
	if c.MinTokensPerChunk <= 0 {
		return ErrInvalidMinTokens
	}
	if c.MinTokensPerChunk >= c.MaxTokensPerChunk {
		return ErrMinExceedsMax
	}
	if c.ParagraphSeparator == "" {
		return ErrEmptySeparator
	}
	_, err := compilePatterns(c.SafeBreakKeywords)
	return err
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Package arbiter asks a language model where a passage changes scene, so
// the chunker can cut there instead of at an arbitrary paragraph.
package arbiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/types"
)

// ErrUndecodable is reported when the model reply is not a transition report.
var ErrUndecodable = errors.New("model reply is not a transition report")

// Transition types a report may name.
const (
	TimeJump          = "time_jump"
	LocationShift     = "location_shift"
	GoalChange        = "goal_change"
	NewArc            = "new_arc"
	EventConclusion   = "event_conclusion"
	PerspectiveSwitch = "perspective_switch"
	Other             = "other"
)

const systemPrompt = `You are a structural analyst of serialized web novels. Decide whether the passage below contains a clear plot transition. If it does, split the passage at the most obvious transition into at most two segments.

Plot transitions include, but are not limited to:
- time jumps ("三年后", "翌日")
- location shifts ("另一边", "此时在东荒")
- a change of the protagonist's main goal ("从今天起，我要……")
- the start of a new arc (volume or arc titles, "秘境开启")
- the wrap-up of a major event and a look ahead
- perspective switches ("而在千里之外……")

Reply with JSON only, in exactly this shape:
{
  "has_transition": true,
  "transition_type": ["time_jump", "location_shift", "goal_change", "new_arc", "event_conclusion", "perspective_switch", "other"],
  "evidence": "sentences from the passage",
  "chunk_content": ["segment 1", "segment 2"]
}

has_transition is a boolean. transition_type lists the signals that support it. evidence quotes at most two sentences from the passage, or is empty when there is no split. chunk_content holds the two segments copied verbatim: together they must reproduce the whole passage with nothing repeated or left out. When there is no split, chunk_content is an empty list.

Example passage:
三年之后，林风终于破关而出。与此同时，在北域魔宗，一场针对他的阴谋正在悄然酝酿……

Example reply:
{
  "has_transition": true,
  "transition_type": ["time_jump", "location_shift", "perspective_switch"],
  "evidence": "三年之后，林风终于破关而出。与此同时，在北域魔宗，一场针对他的阴谋正在悄然酝酿……",
  "chunk_content": ["三年之后，林风终于破关而出。", "与此同时，在北域魔宗，一场针对他的阴谋正在悄然酝酿……"]
}`

const userPrefix = "Analyze the following passage:\n"

// TransitionReport is the model's verdict on a passage.
type TransitionReport struct {
	HasTransition  bool     `json:"has_transition"`
	TransitionType []string `json:"transition_type"`
	Evidence       string   `json:"evidence"`
	ChunkContent   []string `json:"chunk_content"`
}

// LLMArbiter implements types.BoundaryArbiter on top of a Completer. Wrap the
// completer with chunkcache.CachedCompleter to avoid paying for repeated
// passages.
type LLMArbiter struct {
	completer types.Completer
	log       logger.Logger
}

// Option configures an LLMArbiter.
type Option func(*LLMArbiter)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *LLMArbiter) {
		a.log = l
	}
}

// New creates an arbiter asking completer.
func New(completer types.Completer, opts ...Option) (*LLMArbiter, error) {
	if completer == nil {
		return nil, errors.New("completer cannot be nil")
	}

	a := &LLMArbiter{completer: completer}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.OrDiscard(a.log)
	return a, nil
}

// Messages builds the conversation sent for text.
func Messages(text string) []types.Message {
	return []types.Message{
		{Role: types.RoleSystem, Content: systemPrompt},
		{Role: types.RoleUser, Content: userPrefix + text},
	}
}

// Analyze asks the model for a transition report on text. Completer errors
// are returned as is; a reply that cannot be decoded yields ErrUndecodable.
func (a *LLMArbiter) Analyze(ctx context.Context, text string) (*TransitionReport, error) {
	completion, err := a.completer.Complete(ctx, Messages(text), types.FormatJSON)
	if err != nil {
		return nil, err
	}

	var report TransitionReport
	if err := json.Unmarshal([]byte(stripFence(completion.Content)), &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return &report, nil
}

// ProposeSplit returns the model's two segments, or none when it found no
// transition or its reply could not be decoded.
func (a *LLMArbiter) ProposeSplit(ctx context.Context, text string) ([]string, error) {
	report, err := a.Analyze(ctx, text)
	if errors.Is(err, ErrUndecodable) {
		a.log.Warn("Discarding arbiter reply", "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !report.HasTransition || len(report.ChunkContent) == 0 {
		a.log.Debug("No transition found")
		return nil, nil
	}

	a.log.Debug("Transition found",
		"types", strings.Join(report.TransitionType, ","), "segments", len(report.ChunkContent))
	return report.ChunkContent, nil
}

// stripFence removes a Markdown code fence some models put around JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

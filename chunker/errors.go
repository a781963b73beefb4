package chunker

import "errors"

// Common chunker errors
var (
	// ErrInvalidMaxTokens indicates the max token budget is invalid (<=0)
	ErrInvalidMaxTokens = errors.New("max tokens per chunk must be positive")

	// ErrInvalidMinTokens indicates the minimum chunk size is invalid (<=0)
	ErrInvalidMinTokens = errors.New("min tokens per chunk must be positive")

	// ErrMinExceedsMax indicates min tokens is not strictly below max tokens
	ErrMinExceedsMax = errors.New("min tokens per chunk must be less than max tokens per chunk")

	// ErrEmptySeparator indicates no paragraph separator was configured
	ErrEmptySeparator = errors.New("paragraph separator cannot be empty")

	// ErrInvalidPattern indicates a safe-break keyword is not a valid regular expression
	ErrInvalidPattern = errors.New("invalid safe break pattern")

	// ErrTokenizerFailed indicates token estimation failed
	ErrTokenizerFailed = errors.New("tokenization failed")

	// ErrArbiterFailed indicates the boundary arbiter could not be reached
	ErrArbiterFailed = errors.New("boundary arbiter failed")

	// ErrArbiterRequired indicates refinement is enabled without an arbiter
	ErrArbiterRequired = errors.New("refinement enabled but no boundary arbiter configured")
)

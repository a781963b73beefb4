package types

import (
	"context"
	"time"
)

// Entry holds a stored value together with its creation time and lifetime.
// A zero TTL means the entry never expires.
type Entry struct {
	Value     []byte        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

// NewEntry creates an entry stamped with now.
func NewEntry(value []byte, now time.Time, ttl time.Duration) Entry {
	return Entry{Value: value, CreatedAt: now, TTL: ttl}
}

// IsExpired reports whether the entry's lifetime has elapsed at now.
func (e Entry) IsExpired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.CreatedAt.Add(e.TTL))
}

// CacheBackend defines the interface for the different cache storage backends.
// Values are opaque bytes; encoding is the caller's concern.
type CacheBackend interface {
	// Get returns the value for key. Expired entries are reported as absent
	// and removed.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a live entry is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Flush clears all entries from the backend
	Flush(ctx context.Context) error

	// Len returns the number of live entries
	Len(ctx context.Context) (int, error)

	// Close releases backend resources
	Close() error
}

// Clock returns the current time. Backends take one so expiry can be tested
// without sleeping.
type Clock func() time.Time

// BackendConfig provides configuration options for backends
type BackendConfig struct {
	// For in-memory caches
	Capacity int

	// For the file backend
	Directory string
	Extension string

	// For Redis
	ConnectionString string
	Username         string
	Password         string
	Database         int
	Prefix           string

	// Now overrides time.Now when set
	Now Clock

	// Additional options
	Options map[string]any
}

// Clock returns the configured clock or time.Now.
func (c BackendConfig) Clock() Clock {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

// BackendType represents the type of cache backend
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendLRU    BackendType = "lru"
	BackendFile   BackendType = "file"
	BackendRedis  BackendType = "redis"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role/content pair of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenCounter estimates the size of text in tokens.
// Implementations must be deterministic for identical input.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// MessageCounter estimates the size of a chat conversation in tokens.
type MessageCounter interface {
	CountMessages(ctx context.Context, messages []Message) (int, error)
}

// BoundaryArbiter proposes a content-preserving two-way split of text.
// It returns either no parts (no good split) or two parts whose
// concatenation is exactly text.
type BoundaryArbiter interface {
	ProposeSplit(ctx context.Context, text string) ([]string, error)
}

// ResponseFormat selects how the model should format its reply.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Usage reports token consumption of a completion.
type Usage struct {
	PromptTokens      int64 `json:"prompt_tokens"`
	CompletionTokens  int64 `json:"completion_tokens"`
	TotalTokens       int64 `json:"total_tokens"`
	LocalPromptTokens int   `json:"local_prompt_tokens"`
}

// Completion is the result of a text-generation call.
type Completion struct {
	Content   string    `json:"content"`
	Usage     Usage     `json:"usage"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Completer generates text for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message, format ResponseFormat) (*Completion, error)
}

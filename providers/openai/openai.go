package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/tokenizer"
	"github.com/botirk38/chunkcache/types"
	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxContextTokens = 32768
	DefaultTemperature      = 0.3
	DefaultTimeout          = 120 * time.Second
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = 2 * time.Second

	// maxCompletionTokens caps the reply length regardless of context size.
	maxCompletionTokens = 4096

	// selfHostedAPIKey is sent to OpenAI-compatible servers that ignore
	// authentication but still expect the header.
	selfHostedAPIKey = "EMPTY"
)

var (
	ErrMissingAPIKey  = errors.New("OpenAI API key is required")
	ErrMissingModel   = errors.New("model name is required")
	ErrNoMessages     = errors.New("at least one message is required")
	ErrContextTooLong = errors.New("input exceeds max context tokens")
	ErrEmptyResponse  = errors.New("no choices returned by model")
)

// Config provides configuration options for the chat completion client.
// It maps onto the `model:` node of the YAML configuration; every field can
// be overridden from the environment.
type Config struct {
	APIKey           string        `yaml:"api_key" env:"API_KEY"`
	BaseURL          string        `yaml:"base_url" env:"BASE_URL"`
	OrgID            string        `yaml:"org_id" env:"ORG_ID"`
	Model            string        `yaml:"model_name" env:"MODEL_NAME"`
	MaxContextTokens int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Temperature      float64       `yaml:"temperature" env:"TEMPERATURE"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries       int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay       time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// DefaultConfig returns a configuration with every tunable set. Model and
// the endpoint still have to be filled in.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens: DefaultMaxContextTokens,
		Temperature:      DefaultTemperature,
		Timeout:          DefaultTimeout,
		MaxRetries:       DefaultMaxRetries,
		RetryDelay:       DefaultRetryDelay,
	}
}

// Client generates chat completions against the OpenAI API or any
// OpenAI-compatible server such as vLLM.
type Client struct {
	client  *openai.Client
	config  Config
	counter types.MessageCounter
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCounter sets the local token counter used for the context check.
func WithCounter(counter types.MessageCounter) Option {
	return func(c *Client) {
		c.counter = counter
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a chat completion client. Zero MaxContextTokens,
// Timeout and RetryDelay take their defaults.
func NewClient(config Config, opts ...Option) (*Client, error) {
	if config.Model == "" {
		return nil, ErrMissingModel
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be non-negative, got %d", config.MaxRetries)
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		if config.BaseURL == "" {
			return nil, ErrMissingAPIKey
		}
		apiKey = selfHostedAPIKey
	}
	config.APIKey = apiKey

	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = DefaultMaxContextTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}

	// Retries are handled by Complete.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(config.BaseURL))
	}
	if config.OrgID != "" {
		reqOpts = append(reqOpts, option.WithOrganization(config.OrgID))
	}

	client := openai.NewClient(reqOpts...)
	c := &Client{client: &client, config: config}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrDiscard(c.log).With("model", config.Model)

	if c.counter == nil {
		counter, err := tokenizer.NewTiktokenCounter("")
		if err != nil {
			return nil, err
		}
		c.counter = counter
	}

	return c, nil
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.config.Model
}

// Complete sends messages to the model and returns its reply. Inputs whose
// local token count exceeds MaxContextTokens are rejected before any request
// is made. Connection failures, rate limits and server errors are retried
// with exponential backoff.
func (c *Client) Complete(ctx context.Context, messages []types.Message, format types.ResponseFormat) (*types.Completion, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	inputTokens, err := c.counter.CountMessages(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to count input tokens: %w", err)
	}
	if inputTokens > c.config.MaxContextTokens {
		return nil, fmt.Errorf("%w: %d > %d", ErrContextTooLong, inputTokens, c.config.MaxContextTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.config.Model),
		Messages:    toParams(messages),
		Temperature: openai.Float(c.config.Temperature),
		MaxTokens:   openai.Int(int64(min(maxCompletionTokens, c.config.MaxContextTokens/2))),
	}
	if format == types.FormatJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	backoff := retry.WithMaxRetries(uint64(c.config.MaxRetries), retry.NewExponential(c.config.RetryDelay)) // #nosec G115 -- validated non-negative

	attempt := 0
	var resp *openai.ChatCompletion
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		var callErr error
		resp, callErr = c.client.Chat.Completions.New(callCtx, params)
		if callErr != nil {
			if isRetryable(ctx, callErr) {
				c.log.Warn("Completion failed, retrying",
					"attempt", attempt, "max_attempts", c.config.MaxRetries+1, "error", callErr)
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		c.log.Error("Completion failed", "attempts", attempt, "error", err)
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	result := &types.Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: types.Usage{
			PromptTokens:      resp.Usage.PromptTokens,
			CompletionTokens:  resp.Usage.CompletionTokens,
			TotalTokens:       resp.Usage.TotalTokens,
			LocalPromptTokens: inputTokens,
		},
		Model:     resp.Model,
		CreatedAt: time.Now().UTC(),
	}
	c.log.Info("Completion succeeded", "total_tokens", result.Usage.TotalTokens)
	return result, nil
}

func toParams(messages []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// isRetryable reports whether err is a connection failure, a rate limit or
// a server error. Errors caused by the caller's context are final.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusConflict,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	return true
}

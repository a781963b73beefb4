package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/botirk38/chunkcache/chunker"
	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/providers/openai"
	"github.com/botirk38/chunkcache/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullDocument = `
chunking:
  max_tokens_per_chunk: 4000
  min_tokens_per_chunk: 1500
  paragraph_separator: "\n\n"
  safe_break_keywords:
    - "数日后"
    - "与此同时"
    - "^第.+卷"
  use_llm_for_refinement: true
cache:
  backend: file
  directory: cache/tokens
  token_ttl: 24h
model:
  base_url: http://localhost:8000/v1/
  model_name: Qwen3-8B
  max_tokens: 32768
  temperature: 0.3
  timeout: 120s
log:
  level: debug
  json: true
`

func writeConfig(t *testing.T, content string) (afero.Fs, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/chunkcache.yaml", []byte(content), 0o644))
	return fs, "/etc/chunkcache.yaml"
}

func TestLoadFs(t *testing.T) {
	fs, path := writeConfig(t, fullDocument)

	cfg, err := LoadFs(fs, path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Chunking)
	assert.Equal(t, chunker.ChunkConfig{
		MaxTokensPerChunk:       4000,
		MinTokensPerChunk:       1500,
		ParagraphSeparator:      "\n\n",
		SafeBreakKeywords:       []string{"数日后", "与此同时", "^第.+卷"},
		UseArbiterForRefinement: true,
	}, *cfg.Chunking)

	assert.Equal(t, types.BackendFile, cfg.Cache.Backend)
	assert.Equal(t, "cache/tokens", cfg.Cache.Directory)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TokenTTL)
	assert.Equal(t, "cache/tokens", cfg.Cache.BackendConfig().Directory)

	assert.Equal(t, "Qwen3-8B", cfg.Model.Model)
	assert.Equal(t, "http://localhost:8000/v1/", cfg.Model.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.Model.Timeout)
	assert.Equal(t, openai.DefaultMaxRetries, cfg.Model.MaxRetries)
	assert.Equal(t, openai.DefaultRetryDelay, cfg.Model.RetryDelay)

	assert.Equal(t, logger.Options{Level: "debug", JSON: true}, cfg.Log)
	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	require.NoError(t, err)
	log.Debug("loaded", "path", path)
	assert.Contains(t, buf.String(), `"path":"/etc/chunkcache.yaml"`)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 10
  paragraph_separator: "\n\n"
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultCacheConfig(), cfg.Cache)
	assert.Equal(t, openai.DefaultConfig(), cfg.Model)
	assert.Empty(t, cfg.Chunking.SafeBreakKeywords)
	assert.False(t, cfg.Chunking.UseArbiterForRefinement)
	assert.Equal(t, logger.Options{}, cfg.Log)
}

func TestParse_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CHUNKCACHE_MODEL_MODEL_NAME", "qwen3-32b")
	t.Setenv("CHUNKCACHE_MODEL_API_KEY", "secret")
	t.Setenv("CHUNKCACHE_MODEL_TIMEOUT", "30s")
	t.Setenv("CHUNKCACHE_CACHE_BACKEND", "redis")
	t.Setenv("CHUNKCACHE_CACHE_CONNECTION_STRING", "redis://localhost:6379/1")
	t.Setenv("CHUNKCACHE_LOG_LEVEL", "warn")

	cfg, err := Parse([]byte(fullDocument))
	require.NoError(t, err)

	assert.Equal(t, "qwen3-32b", cfg.Model.Model)
	assert.Equal(t, "secret", cfg.Model.APIKey)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout)
	assert.Equal(t, types.BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Cache.ConnectionString)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "missing chunking",
			doc:     "cache:\n  backend: memory\n",
			wantErr: ErrMissingChunking,
		},
		{
			name: "min not below max",
			doc: `
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 100
  paragraph_separator: "\n\n"
`,
			wantErr: chunker.ErrMinExceedsMax,
		},
		{
			name: "missing separator",
			doc: `
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 10
`,
			wantErr: chunker.ErrEmptySeparator,
		},
		{
			name: "bad pattern",
			doc: `
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 10
  paragraph_separator: "\n\n"
  safe_break_keywords: ["("]
`,
			wantErr: chunker.ErrInvalidPattern,
		},
		{
			name: "file backend without directory",
			doc: `
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 10
  paragraph_separator: "\n\n"
cache:
  backend: file
`,
			wantErr: ErrInvalidCache,
		},
		{
			name: "unknown backend",
			doc: `
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 10
  paragraph_separator: "\n\n"
cache:
  backend: memcached
`,
			wantErr: ErrInvalidCache,
		},
		{
			name: "unknown log level",
			doc: `
chunking:
  max_tokens_per_chunk: 100
  min_tokens_per_chunk: 10
  paragraph_separator: "\n\n"
log:
  level: verbose
`,
			wantErr: ErrInvalidLog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("chunking: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFs_MissingFile(t *testing.T) {
	_, err := LoadFs(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}

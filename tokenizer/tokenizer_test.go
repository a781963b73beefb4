package tokenizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/botirk38/chunkcache/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var conversation = []types.Message{
	{Role: types.RoleSystem, Content: "你是一个专业的网络小说结构分析师。"},
	{Role: types.RoleUser, Content: "请分析以下片段：三年之后，林风终于破关而出。"},
	{Role: types.RoleAssistant, Content: `{"has_transition": true}`},
}

func TestTiktokenCounter(t *testing.T) {
	ctx := context.Background()
	counter, err := NewTiktokenCounter("")
	require.NoError(t, err)

	n, err := counter.CountTokens(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = counter.CountTokens(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	again, err := counter.CountTokens(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, n, again)
}

func TestTiktokenCounter_CountMessages(t *testing.T) {
	ctx := context.Background()
	counter, err := NewTiktokenCounter("")
	require.NoError(t, err)

	n, err := counter.CountMessages(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	total, err := counter.CountMessages(ctx, conversation)
	require.NoError(t, err)

	content := 0
	for _, m := range conversation {
		c, err := counter.CountTokens(ctx, m.Content)
		require.NoError(t, err)
		content += c
	}
	assert.Greater(t, total, content, "template overhead should be counted")
}

func TestRenderChatML(t *testing.T) {
	got := RenderChatML([]types.Message{{Role: types.RoleUser, Content: "hi"}})
	assert.Equal(t, "<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n", got)
}

func TestAnthropicCounter(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages/count_tokens"), r.URL.Path)

		var body struct {
			Model    string            `json:"model"`
			Messages []json.RawMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultAnthropicModel, body.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"input_tokens": %d}`, len(body.Messages))
	}))
	defer srv.Close()

	client := anthropic.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	counter := NewAnthropicCounter(&client, "")
	ctx := context.Background()

	n, err := counter.CountTokens(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = counter.CountMessages(ctx, conversation)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = counter.CountTokens(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 2, requests.Load())
}

func TestAnthropicCounter_RequiresClient(t *testing.T) {
	_, err := NewAnthropicCounter(nil, "").CountTokens(context.Background(), "hello")
	assert.Error(t, err)
}

func TestGeminiCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "countTokens")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalTokens": 7}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      "test",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)

	counter := NewGeminiCounter(client, "gemini-2.0-flash")

	n, err := counter.CountTokens(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = counter.CountMessages(ctx, conversation)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestGeminiCounter_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewGeminiCounter(nil, "gemini-2.0-flash").CountTokens(ctx, "hello")
	assert.Error(t, err)

	_, err = NewGeminiCounter(&genai.Client{}, "").CountTokens(ctx, "hello")
	assert.Error(t, err)

	n, err := NewGeminiCounter(nil, "").CountMessages(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

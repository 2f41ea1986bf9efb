package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/llm/llmtest"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

func testBreaker() config.BreakerConfig {
	return config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureRatio: 1, MinRequests: 3}
}

func TestResilientModelRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	inner := &llmtest.ChatModel{Reply: func([]*schema.Message) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("502 bad gateway")
		}
		return "ok", nil
	}}
	m := metrics.NewCollector("test")
	r := NewResilientModel(inner, "chat", ResilienceConfig{Breaker: testBreaker(), Retries: 2, BaseDelay: time.Millisecond}, m)

	msg, err := r.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.EqualValues(t, 3, calls.Load())
}

func TestResilientModelDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	inner := &llmtest.ChatModel{Reply: func([]*schema.Message) (string, error) {
		calls.Add(1)
		return "", fmt.Errorf("gemini generate: %w", genai.APIError{Code: http.StatusUnauthorized, Message: "API key not valid"})
	}}
	r := NewResilientModel(inner, "chat", ResilienceConfig{Breaker: testBreaker(), Retries: 3, BaseDelay: time.Millisecond}, nil)

	_, err := r.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	var apiErr genai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unauthorized", genai.APIError{Code: http.StatusUnauthorized}, false},
		{"bad request", fmt.Errorf("wrapped: %w", genai.APIError{Code: http.StatusBadRequest}), false},
		{"rate limited", genai.APIError{Code: http.StatusTooManyRequests}, true},
		{"unavailable", genai.APIError{Code: http.StatusServiceUnavailable}, true},
		{"openai forbidden", &openai.Error{StatusCode: http.StatusForbidden}, false},
		{"anthropic overloaded", &anthropic.Error{StatusCode: 529}, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"no status", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestResilientModelOpensBreaker(t *testing.T) {
	inner := &llmtest.ChatModel{Reply: func([]*schema.Message) (string, error) {
		return "", errors.New("boom")
	}}
	r := NewResilientModel(inner, "chat", ResilienceConfig{Breaker: testBreaker(), Retries: 2, BaseDelay: time.Millisecond}, nil)

	_, err := r.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, r.State())

	before := inner.Calls()
	_, err = r.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, inner.Calls())
}

func TestResilientModelStopsOnCancel(t *testing.T) {
	inner := &llmtest.ChatModel{Reply: func([]*schema.Message) (string, error) {
		return "", errors.New("boom")
	}}
	r := NewResilientModel(inner, "chat", ResilienceConfig{Breaker: testBreaker(), Retries: 5, BaseDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Generate(ctx, []*schema.Message{schema.UserMessage("hi")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.Calls())
}

func TestResolveOptions(t *testing.T) {
	co := resolveOptions("gpt-4o", 512, []model.Option{WithSessionHint("sess-1"), model.WithMaxTokens(64)})
	assert.Equal(t, "gpt-4o", co.model)
	assert.Equal(t, 64, co.maxTokens)
	assert.Equal(t, "sess-1", co.hint)

	system, turns := splitSystem([]*schema.Message{
		schema.SystemMessage("a"), schema.UserMessage("q"), schema.SystemMessage("b"),
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Len(t, turns, 1)
}

func TestModelForProviderDefaults(t *testing.T) {
	assert.Equal(t, "gpt-4o", modelFor("openai", "gpt-4o", 0))
	assert.Equal(t, "claude-sonnet-4-5", modelFor("anthropic", "gpt-4o", 0))
	assert.Equal(t, "gemini-2.5-flash-lite", modelFor("gemini", "gpt-4o-mini", 1))
	assert.Equal(t, "claude-opus-4-1", modelFor("anthropic", "claude-opus-4-1", 0))
}

func TestOpenAIChatModelSendsSessionHint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello"}}]}`))
	}))
	defer srv.Close()

	m, err := NewOpenAIChatModel(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "gpt-4o"})
	require.NoError(t, err)
	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be brief"), schema.UserMessage("hi"),
	}, WithSessionHint("student-42"))
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, "student-42", got["user"])
	assert.Equal(t, "gpt-4o", got["model"])
	assert.Len(t, got["messages"], 2)
}

func TestOpenAIEmbedderCachesTexts(t *testing.T) {
	var mu sync.Mutex
	var inputs [][]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		in, _ := body["input"].([]any)
		mu.Lock()
		inputs = append(inputs, in)
		mu.Unlock()

		data := make([]map[string]any, len(in))
		for i := range in {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float64{float64(i), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list", "data": data, "model": "text-embedding-3-small",
			"usage": map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL + "/", CacheSize: 8}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := e.EmbedStrings(ctx, []string{"a", "b"})
	require.NoError(t, err)
	second, err := e.EmbedStrings(ctx, []string{"b", "c"})
	require.NoError(t, err)

	assert.Equal(t, first[1], second[0])
	require.Len(t, inputs, 2)
	assert.Equal(t, []any{"c"}, inputs[1])
}

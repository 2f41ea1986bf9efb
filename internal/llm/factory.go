package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

// Models bundles the chat models used by the advisor.
type Models struct {
	// Chat answers student questions.
	Chat model.BaseChatModel
	// Classifier runs the short validation and labelling prompts.
	Classifier model.BaseChatModel
}

var providerDefaults = map[string][2]string{
	"anthropic": {"claude-sonnet-4-5", "claude-haiku-4-5"},
	"gemini":    {"gemini-2.5-flash", "gemini-2.5-flash-lite"},
}

// NewModels builds the configured provider's chat and classifier models,
// each behind its own circuit breaker.
func NewModels(ctx context.Context, cfg config.LLMConfig, breaker config.BreakerConfig, m *metrics.Collector) (*Models, error) {
	chatName := modelFor(cfg.Provider, cfg.ChatModel, 0)
	classifierName := modelFor(cfg.Provider, cfg.ClassifierModel, 1)

	chat, err := newProviderModel(ctx, cfg, chatName)
	if err != nil {
		return nil, err
	}
	classifier, err := newProviderModel(ctx, cfg, classifierName)
	if err != nil {
		return nil, err
	}

	rc := ResilienceConfig{Breaker: breaker, Retries: cfg.MaxRetries, Timeout: cfg.Timeout}
	return &Models{
		Chat:       NewResilientModel(chat, chatName, rc, m),
		Classifier: NewResilientModel(classifier, classifierName, rc, m),
	}, nil
}

func newProviderModel(ctx context.Context, cfg config.LLMConfig, name string) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIChatModel(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: name, MaxTokens: cfg.MaxTokens})
	case "anthropic":
		return NewAnthropicChatModel(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: name, MaxTokens: cfg.MaxTokens})
	case "gemini":
		return NewGeminiChatModel(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: name, MaxTokens: cfg.MaxTokens})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// modelFor swaps OpenAI model names for the provider default when another
// provider is selected without an explicit model.
func modelFor(provider, configured string, slot int) string {
	defaults, ok := providerDefaults[provider]
	if !ok {
		return configured
	}
	if configured == "" || strings.HasPrefix(configured, "gpt-") {
		return defaults[slot]
	}
	return configured
}

// NewEmbedder builds the query/document embedder. Embeddings always use
// OpenAI so that stored vectors stay comparable across chat providers.
func NewEmbedder(cfg config.LLMConfig, cacheSize int, m *metrics.Collector) (embedding.Embedder, error) {
	return NewOpenAIEmbedder(EmbedderConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.EmbeddingModel,
		CacheSize: cacheSize,
	}, m)
}

package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openai/openai-go"

	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

// OpenAIEmbedder implements eino embedding.Embedder with an LRU cache of
// recent texts. Supervisor queries repeat often within a session.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	cache   *lru.Cache[string, []float64]
	metrics *metrics.Collector
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)

// EmbedderConfig configures NewOpenAIEmbedder.
type EmbedderConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	CacheSize int
}

// NewOpenAIEmbedder creates an embedder.
func NewOpenAIEmbedder(cfg EmbedderConfig, m *metrics.Collector) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	cache, err := lru.New[string, []float64](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &OpenAIEmbedder{
		client:  newOpenAIClient(cfg.APIKey, cfg.BaseURL),
		model:   cfg.Model,
		cache:   cache,
		metrics: m,
	}, nil
}

// EmbedStrings embeds texts, serving repeats from the cache.
func (e *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	modelName := e.model
	if o := embedding.GetCommonOptions(&embedding.Options{Model: &modelName}, opts...); o.Model != nil {
		modelName = *o.Model
	}

	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := e.cache.Get(modelName + "\x00" + t); ok {
			e.metrics.RecordCache("embedding", true)
			out[i] = v
			continue
		}
		e.metrics.RecordCache("embedding", false)
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: missing},
		Model: openai.EmbeddingModel(modelName),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(missing) {
		return nil, fmt.Errorf("openai embeddings: expected %d vectors, got %d", len(missing), len(resp.Data))
	}
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(missing) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		i := missingIdx[d.Index]
		out[i] = d.Embedding
		e.cache.Add(modelName+"\x00"+missing[d.Index], d.Embedding)
	}
	return out, nil
}

package knowledge

import (
	"context"
	"fmt"
	"maps"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

// Metadata keys with special meaning.
const (
	MetaSource     = "source"
	MetaCourseCode = "course_code"
	MetaDepartment = "department"
)

// Retriever is an agent-bound eino retriever over a RestrictedIndex.
//
// Options honoured: WithTopK, WithSubIndex (namespace override, still
// permission checked), WithScoreThreshold, WithEmbedding and WithDSLInfo
// (used as a metadata Filter).
type Retriever struct {
	index    *RestrictedIndex
	embedder embedding.Embedder
	topK     int
	metrics  *metrics.Collector
}

var _ retriever.Retriever = (*Retriever)(nil)

// NewRetriever creates a retriever. topK <= 0 selects the index default.
func NewRetriever(index *RestrictedIndex, embedder embedding.Embedder, topK int, m *metrics.Collector) *Retriever {
	return &Retriever{index: index, embedder: embedder, topK: topK, metrics: m}
}

// AgentID returns the agent this retriever is bound to.
func (r *Retriever) AgentID() string { return r.index.AgentID() }

// Index exposes the restricted index, used by ingestion.
func (r *Retriever) Index() *RestrictedIndex { return r.index }

// Retrieve embeds query and returns the most similar documents.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &r.topK, Embedding: r.embedder}, opts...)

	var ns string
	if o.SubIndex != nil {
		ns = *o.SubIndex
	}
	filter := Filter(o.DSLInfo)
	if err := filter.Validate(); err != nil {
		r.metrics.RecordRetrieval(r.AgentID(), "error")
		return nil, err
	}
	if o.Embedding == nil {
		return nil, fmt.Errorf("retriever for %s has no embedder", r.AgentID())
	}

	// Resolve permissions before paying for an embedding call.
	resolved, err := r.index.check(ns)
	if err != nil {
		r.metrics.RecordRetrieval(r.AgentID(), "denied")
		return nil, err
	}

	vectors, err := o.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		r.metrics.RecordRetrieval(r.AgentID(), "error")
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		r.metrics.RecordRetrieval(r.AgentID(), "error")
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	topK := 0
	if o.TopK != nil {
		topK = *o.TopK
	}
	matches, err := r.index.Query(ctx, QueryRequest{
		Vector:    ToFloat32(vectors[0]),
		Namespace: resolved,
		TopK:      topK,
		Filter:    filter,
	})
	if err != nil {
		r.metrics.RecordRetrieval(r.AgentID(), "error")
		return nil, err
	}

	docs := make([]*schema.Document, 0, len(matches))
	for _, m := range matches {
		if o.ScoreThreshold != nil && m.Score < *o.ScoreThreshold {
			continue
		}
		docs = append(docs, toDocument(m))
	}
	r.metrics.RecordRetrieval(r.AgentID(), "ok")
	return docs, nil
}

// LookupExact returns documents in namespace (or the agent default) whose
// metadata field equals value, ignoring case and whitespace.
func (r *Retriever) LookupExact(ctx context.Context, ns, field, value string, limit int) ([]*schema.Document, error) {
	matches, err := r.index.Lookup(ctx, LookupRequest{Namespace: ns, Field: field, Value: value, Limit: limit})
	if err != nil {
		return nil, err
	}
	docs := make([]*schema.Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, toDocument(m))
	}
	return docs, nil
}

func toDocument(m Match) *schema.Document {
	meta := maps.Clone(m.Passage.Metadata)
	if meta == nil {
		meta = make(map[string]any, 2)
	}
	meta[MetaSource] = sourceOf(m.Passage)
	meta["namespace"] = m.Passage.Namespace
	doc := &schema.Document{ID: m.Passage.ID, Content: m.Passage.Content, MetaData: meta}
	return doc.WithScore(m.Score)
}

func sourceOf(p domain.Passage) string {
	if p.Source != "" {
		return p.Source
	}
	return "unknown"
}

// ToFloat32 narrows an embedding to the index's storage precision.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

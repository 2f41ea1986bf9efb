package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

const embedBatchSize = 64

// Indexer is an eino indexer that embeds documents and writes them through
// a RestrictedIndex. The target namespace is the first of
// indexer.WithSubIndexes, or the agent default.
type Indexer struct {
	index    *RestrictedIndex
	embedder embedding.Embedder
}

var _ indexer.Indexer = (*Indexer)(nil)

// NewIndexer creates an indexer for the agent bound to index.
func NewIndexer(index *RestrictedIndex, embedder embedding.Embedder) *Indexer {
	return &Indexer{index: index, embedder: embedder}
}

// Store embeds and upserts docs, returning their ids.
func (x *Indexer) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	o := indexer.GetCommonOptions(&indexer.Options{Embedding: x.embedder}, opts...)
	if o.Embedding == nil {
		return nil, fmt.Errorf("indexer for %s has no embedder", x.index.AgentID())
	}
	var ns string
	if len(o.SubIndexes) > 0 {
		ns = o.SubIndexes[0]
	}
	resolved, err := x.index.check(ns)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(docs))
	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vectors, err := o.Embedding.EmbedStrings(ctx, texts)
		if err != nil {
			return ids, fmt.Errorf("embed documents %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return ids, fmt.Errorf("embed documents: expected %d vectors, got %d", len(batch), len(vectors))
		}

		records := make([]domain.Passage, len(batch))
		for i, d := range batch {
			records[i] = toPassage(d, vectors[i])
		}
		if _, err := x.index.Upsert(ctx, resolved, records); err != nil {
			return ids, err
		}
		for _, r := range records {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func toPassage(d *schema.Document, vector []float64) domain.Passage {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta := make(map[string]any, len(d.MetaData))
	var source string
	for k, v := range d.MetaData {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if k == MetaSource {
			source, _ = v.(string)
			continue
		}
		meta[k] = v
	}
	return domain.Passage{
		ID:        id,
		Content:   d.Content,
		Source:    source,
		Metadata:  meta,
		Embedding: ToFloat32(vector),
	}
}

package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

const nsField = "kb_namespace"

// metadataIndex answers exact metadata lookups (course codes, departments)
// from an in-memory bleve index. Values are stored normalized so "EECE 230",
// "eece230" and "EECE  230" share one key.
type metadataIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

func newMetadataIndex() (*metadataIndex, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create metadata index: %w", err)
	}
	return &metadataIndex{index: idx}, nil
}

// LookupKey normalizes a metadata value for exact matching.
func LookupKey(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, v)
}

func docKey(namespace, id string) string {
	return namespace + "\x1f" + id
}

func (m *metadataIndex) put(p domain.Passage) error {
	doc := map[string]any{nsField: LookupKey(p.Namespace)}
	for k, v := range p.Metadata {
		switch val := v.(type) {
		case string:
			doc[k] = LookupKey(val)
		case []string:
			keys := make([]string, 0, len(val))
			for _, item := range val {
				keys = append(keys, LookupKey(item))
			}
			if len(keys) > 0 {
				doc[k] = keys
			}
		case []any:
			var keys []string
			for _, item := range val {
				if s, ok := item.(string); ok {
					keys = append(keys, LookupKey(s))
				}
			}
			if len(keys) > 0 {
				doc[k] = keys
			}
		}
	}
	if p.Source != "" {
		doc["source"] = LookupKey(p.Source)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.index.Index(docKey(p.Namespace, p.ID), doc); err != nil {
		return fmt.Errorf("index metadata for %s/%s: %w", p.Namespace, p.ID, err)
	}
	return nil
}

func (m *metadataIndex) remove(namespace, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.index.Delete(docKey(namespace, id))
}

// find returns passage ids in namespace whose field equals value.
func (m *metadataIndex) find(ctx context.Context, namespace, field, value string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	nsQuery := bleve.NewTermQuery(LookupKey(namespace))
	nsQuery.SetField(nsField)
	valQuery := bleve.NewTermQuery(LookupKey(value))
	valQuery.SetField(field)

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(nsQuery, valQuery), limit, 0, false)

	m.mu.RLock()
	res, err := m.index.SearchInContext(ctx, req)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("metadata lookup %s=%q: %w", field, value, err)
	}

	prefix := namespace + "\x1f"
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, strings.TrimPrefix(hit.ID, prefix))
	}
	return ids, nil
}

func (m *metadataIndex) close() error {
	return m.index.Close()
}

package knowledge

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Passage is a retrieved text snippet handed to a responder prompt.
type Passage struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
}

// FallbackPassage is used when retrieval fails or finds nothing.
func FallbackPassage(content, source string) Passage {
	return Passage{Content: content, Source: source}
}

// FromDocuments converts retriever output into passages.
func FromDocuments(docs []*schema.Document) []Passage {
	out := make([]Passage, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		source, _ := d.MetaData[MetaSource].(string)
		if source == "" {
			source = "unknown"
		}
		meta := make(map[string]any, len(d.MetaData))
		for k, v := range d.MetaData {
			if !strings.HasPrefix(k, "_") {
				meta[k] = v
			}
		}
		out = append(out, Passage{Content: d.Content, Source: source, Metadata: meta, Score: d.Score()})
	}
	return out
}

// JoinContent renders passages as one prompt context block.
func JoinContent(passages []Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		if c := strings.TrimSpace(p.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

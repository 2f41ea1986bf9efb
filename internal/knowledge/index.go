// Package knowledge implements namespace-scoped passage storage and retrieval.
package knowledge

import (
	"context"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

// Match is a passage returned by a query together with its similarity.
type Match struct {
	Passage domain.Passage
	Score   float64
}

// QueryRequest is a similarity search within one namespace.
type QueryRequest struct {
	Vector    []float32
	Namespace string
	TopK      int
	Filter    Filter
}

// MultiQueryRequest searches several namespaces and merges by score.
type MultiQueryRequest struct {
	Vector     []float32
	Namespaces []string
	TopK       int
	Filter     Filter
}

// DeleteRequest removes passages by id, by filter, or the whole namespace.
type DeleteRequest struct {
	Namespace string
	IDs       []string
	Filter    Filter
	DeleteAll bool
}

// UpdateRequest replaces a passage's vector and/or merges metadata keys.
type UpdateRequest struct {
	Values      []float32
	SetMetadata map[string]any
}

// ListRequest pages through passage ids.
type ListRequest struct {
	Namespace       string
	Prefix          string
	Limit           int
	PaginationToken string
}

// ListResponse carries one page of ids. NextToken is empty on the last page.
type ListResponse struct {
	IDs       []string
	NextToken string
}

// LookupRequest finds passages whose metadata field equals a value exactly.
type LookupRequest struct {
	Namespace string
	Field     string
	Value     string
	Limit     int
}

// Stats describes index contents.
type Stats struct {
	Namespaces   map[string]int `json:"namespaces"`
	TotalVectors int            `json:"total_vectors"`
	Dimension    int            `json:"dimension"`
}

// Index is the raw namespace-aware store. Namespaces are mandatory here;
// RestrictedIndex resolves them per agent.
type Index interface {
	Query(ctx context.Context, req QueryRequest) ([]Match, error)
	QueryNamespaces(ctx context.Context, req MultiQueryRequest) ([]Match, error)
	Upsert(ctx context.Context, namespace string, records []domain.Passage) (int, error)
	Delete(ctx context.Context, req DeleteRequest) (int64, error)
	Update(ctx context.Context, namespace, id string, req UpdateRequest) error
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]domain.Passage, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Lookup(ctx context.Context, req LookupRequest) ([]Match, error)
	Stats(ctx context.Context) (*Stats, error)
}

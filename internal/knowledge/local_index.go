package knowledge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/viterin/vek/vek32"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

const defaultTopK = 4

// ErrDimensionMismatch is returned when a vector's length differs from the index's.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// LocalIndex is an Index over SQLite-persisted passages with in-memory
// per-namespace shards. Similarity is cosine.
type LocalIndex struct {
	repo store.PassageRepository
	meta *metadataIndex

	mu     sync.RWMutex
	shards map[string]map[string]*entry
	dim    int
}

type entry struct {
	passage domain.Passage
	norm    float64
}

var _ Index = (*LocalIndex)(nil)

// NewLocalIndex creates an index backed by repo. Namespaces are loaded on first use.
func NewLocalIndex(repo store.PassageRepository) (*LocalIndex, error) {
	meta, err := newMetadataIndex()
	if err != nil {
		return nil, err
	}
	return &LocalIndex{
		repo:   repo,
		meta:   meta,
		shards: make(map[string]map[string]*entry),
	}, nil
}

// Close releases the metadata index.
func (x *LocalIndex) Close() error {
	return x.meta.close()
}

func newEntry(p domain.Passage) *entry {
	return &entry{passage: p, norm: norm(p.Embedding)}
}

func norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(float64(vek32.Dot(v, v)))
}

func (x *LocalIndex) shard(ctx context.Context, namespace string) (map[string]*entry, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	x.mu.RLock()
	s, ok := x.shards[namespace]
	x.mu.RUnlock()
	if ok {
		return s, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if s, ok := x.shards[namespace]; ok {
		return s, nil
	}

	passages, err := x.repo.LoadNamespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("load namespace %s: %w", namespace, err)
	}
	s = make(map[string]*entry, len(passages))
	for _, p := range passages {
		s[p.ID] = newEntry(p)
		if x.dim == 0 && len(p.Embedding) > 0 {
			x.dim = len(p.Embedding)
		}
		if err := x.meta.put(p); err != nil {
			return nil, err
		}
	}
	x.shards[namespace] = s
	return s, nil
}

// Query returns the TopK most similar passages in one namespace.
func (x *LocalIndex) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	if err := req.Filter.Validate(); err != nil {
		return nil, err
	}
	s, err := x.shard(ctx, req.Namespace)
	if err != nil {
		return nil, err
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	qn := norm(req.Vector)
	if qn == 0 {
		return nil, nil
	}

	x.mu.RLock()
	matches := make([]Match, 0, len(s))
	for _, e := range s {
		if err := ctx.Err(); err != nil {
			x.mu.RUnlock()
			return nil, err
		}
		if e.norm == 0 || len(e.passage.Embedding) != len(req.Vector) {
			continue
		}
		if len(req.Filter) > 0 {
			ok, err := req.Filter.Match(e.passage.Metadata)
			if err != nil {
				x.mu.RUnlock()
				return nil, err
			}
			if !ok {
				continue
			}
		}
		score := float64(vek32.Dot(req.Vector, e.passage.Embedding)) / (qn * e.norm)
		matches = append(matches, Match{Passage: e.passage, Score: score})
	}
	x.mu.RUnlock()

	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// QueryNamespaces queries each namespace and merges the results by score.
func (x *LocalIndex) QueryNamespaces(ctx context.Context, req MultiQueryRequest) ([]Match, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	var all []Match
	for _, ns := range req.Namespaces {
		m, err := x.Query(ctx, QueryRequest{Vector: req.Vector, Namespace: ns, TopK: topK, Filter: req.Filter})
		if err != nil {
			return nil, err
		}
		all = append(all, m...)
	}
	sortMatches(all)
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}

// Upsert stores records in namespace. Records without an id get a UUID.
func (x *LocalIndex) Upsert(ctx context.Context, namespace string, records []domain.Passage) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	s, err := x.shard(ctx, namespace)
	if err != nil {
		return 0, err
	}

	x.mu.RLock()
	dim := x.dim
	x.mu.RUnlock()

	prepared := make([]domain.Passage, len(records))
	for i, r := range records {
		r.Namespace = namespace
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if len(r.Embedding) > 0 {
			if dim == 0 {
				dim = len(r.Embedding)
			} else if len(r.Embedding) != dim {
				return 0, fmt.Errorf("%w: record %s has %d, index has %d", ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
			}
		}
		prepared[i] = r
	}

	if err := x.repo.UpsertPassages(ctx, prepared); err != nil {
		return 0, err
	}

	x.mu.Lock()
	if x.dim == 0 {
		x.dim = dim
	}
	for _, p := range prepared {
		s[p.ID] = newEntry(p)
	}
	x.mu.Unlock()

	for _, p := range prepared {
		if err := x.meta.put(p); err != nil {
			return 0, err
		}
	}
	return len(prepared), nil
}

// Delete removes passages by id, by filter, or every passage in the namespace.
func (x *LocalIndex) Delete(ctx context.Context, req DeleteRequest) (int64, error) {
	s, err := x.shard(ctx, req.Namespace)
	if err != nil {
		return 0, err
	}

	if req.DeleteAll {
		n, err := x.repo.DeleteNamespace(ctx, req.Namespace)
		if err != nil {
			return 0, err
		}
		x.mu.Lock()
		for id := range s {
			x.meta.remove(req.Namespace, id)
		}
		x.shards[req.Namespace] = make(map[string]*entry)
		x.mu.Unlock()
		return n, nil
	}

	ids := req.IDs
	if len(req.Filter) > 0 {
		if err := req.Filter.Validate(); err != nil {
			return 0, err
		}
		x.mu.RLock()
		for id, e := range s {
			ok, err := req.Filter.Match(e.passage.Metadata)
			if err != nil {
				x.mu.RUnlock()
				return 0, err
			}
			if ok {
				ids = append(ids, id)
			}
		}
		x.mu.RUnlock()
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := x.repo.DeletePassages(ctx, req.Namespace, ids)
	if err != nil {
		return 0, err
	}
	x.mu.Lock()
	for _, id := range ids {
		delete(s, id)
		x.meta.remove(req.Namespace, id)
	}
	x.mu.Unlock()
	return n, nil
}

// Update replaces a passage's vector and/or merges metadata keys.
func (x *LocalIndex) Update(ctx context.Context, namespace, id string, req UpdateRequest) error {
	s, err := x.shard(ctx, namespace)
	if err != nil {
		return err
	}

	x.mu.RLock()
	e, ok := s[id]
	x.mu.RUnlock()
	if !ok {
		return fmt.Errorf("passage %s not found in %s", id, namespace)
	}

	p := e.passage
	p.Metadata = maps.Clone(p.Metadata)
	if p.Metadata == nil {
		p.Metadata = make(map[string]any, len(req.SetMetadata))
	}
	maps.Copy(p.Metadata, req.SetMetadata)
	if len(req.Values) > 0 {
		x.mu.RLock()
		dim := x.dim
		x.mu.RUnlock()
		if dim != 0 && len(req.Values) != dim {
			return fmt.Errorf("%w: update has %d, index has %d", ErrDimensionMismatch, len(req.Values), dim)
		}
		p.Embedding = req.Values
	}

	if err := x.repo.UpsertPassages(ctx, []domain.Passage{p}); err != nil {
		return err
	}
	x.mu.Lock()
	s[id] = newEntry(p)
	x.mu.Unlock()
	return x.meta.put(p)
}

// Fetch returns the passages with the given ids, keyed by id.
func (x *LocalIndex) Fetch(ctx context.Context, namespace string, ids []string) (map[string]domain.Passage, error) {
	s, err := x.shard(ctx, namespace)
	if err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string]domain.Passage, len(ids))
	for _, id := range ids {
		if e, ok := s[id]; ok {
			out[id] = e.passage
		}
	}
	return out, nil
}

// List pages through ids in lexical order. The pagination token is the
// last id of the previous page.
func (x *LocalIndex) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if req.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	ids, err := x.repo.ListPassageIDs(ctx, req.Namespace, req.Prefix, req.PaginationToken, limit)
	if err != nil {
		return nil, err
	}
	resp := &ListResponse{IDs: ids}
	if len(ids) == limit {
		resp.NextToken = ids[len(ids)-1]
	}
	return resp, nil
}

// Lookup finds passages whose metadata field equals value, ignoring case and whitespace.
func (x *LocalIndex) Lookup(ctx context.Context, req LookupRequest) ([]Match, error) {
	s, err := x.shard(ctx, req.Namespace)
	if err != nil {
		return nil, err
	}
	ids, err := x.meta.find(ctx, req.Namespace, req.Field, req.Value, req.Limit)
	if err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		if e, ok := s[id]; ok {
			matches = append(matches, Match{Passage: e.passage, Score: 1})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Passage.ID < matches[j].Passage.ID })
	return matches, nil
}

// Stats reports per-namespace passage counts.
func (x *LocalIndex) Stats(ctx context.Context) (*Stats, error) {
	counts, err := x.repo.NamespaceCounts(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	x.mu.RLock()
	dim := x.dim
	x.mu.RUnlock()
	return &Stats{Namespaces: counts, TotalVectors: total, Dimension: dim}, nil
}

func sortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].Passage.ID < m[j].Passage.ID
	})
}

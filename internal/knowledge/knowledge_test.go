package knowledge

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/llm/llmtest"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestIndex(t *testing.T, repo store.PassageRepository) *LocalIndex {
	t.Helper()
	idx, err := NewLocalIndex(repo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func seed(t *testing.T, idx Index, ns string, passages ...domain.Passage) {
	t.Helper()
	n, err := idx.Upsert(context.Background(), ns, passages)
	require.NoError(t, err)
	require.Equal(t, len(passages), n)
}

// countingIndex records how many calls reach the wrapped index.
type countingIndex struct {
	Index
	mu    sync.Mutex
	calls int
}

func (c *countingIndex) hit() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingIndex) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	c.hit()
	return c.Index.Query(ctx, req)
}

func (c *countingIndex) Upsert(ctx context.Context, ns string, records []domain.Passage) (int, error) {
	c.hit()
	return c.Index.Upsert(ctx, ns, records)
}

func (c *countingIndex) Delete(ctx context.Context, req DeleteRequest) (int64, error) {
	c.hit()
	return c.Index.Delete(ctx, req)
}

func (c *countingIndex) Lookup(ctx context.Context, req LookupRequest) ([]Match, error) {
	c.hit()
	return c.Index.Lookup(ctx, req)
}

func (c *countingIndex) QueryNamespaces(ctx context.Context, req MultiQueryRequest) ([]Match, error) {
	c.hit()
	return c.Index.QueryNamespaces(ctx, req)
}

func TestLocalIndexQueryRanksByCosine(t *testing.T) {
	idx := newTestIndex(t, newTestStore(t))
	seed(t, idx, "mech",
		domain.Passage{ID: "a", Content: "thermo", Embedding: []float32{1, 0, 0}},
		domain.Passage{ID: "b", Content: "fluids", Embedding: []float32{0.7, 0.7, 0}},
		domain.Passage{ID: "c", Content: "design", Embedding: []float32{0, 0, 1}},
	)
	seed(t, idx, "civil", domain.Passage{ID: "x", Content: "bridges", Embedding: []float32{1, 0, 0}})

	got, err := idx.Query(context.Background(), QueryRequest{Vector: []float32{1, 0.1, 0}, Namespace: "mech", TopK: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Passage.ID)
	assert.Equal(t, "b", got[1].Passage.ID)
	assert.Greater(t, got[0].Score, got[1].Score)
	for _, m := range got {
		assert.Equal(t, "mech", m.Passage.Namespace)
	}
}

func TestLocalIndexFilter(t *testing.T) {
	idx := newTestIndex(t, newTestStore(t))
	seed(t, idx, "ind",
		domain.Passage{ID: "1", Content: "enmg", Metadata: map[string]any{"department": "industrial"}, Embedding: []float32{1, 0}},
		domain.Passage{ID: "2", Content: "mech", Metadata: map[string]any{"department": "mechanical"}, Embedding: []float32{1, 0}},
	)
	ctx := context.Background()

	got, err := idx.Query(ctx, QueryRequest{Vector: []float32{1, 0}, Namespace: "ind", Filter: Filter{"department": "industrial"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].Passage.ID)

	got, err = idx.Query(ctx, QueryRequest{Vector: []float32{1, 0}, Namespace: "ind", Filter: Filter{"department": map[string]any{"$in": []any{"industrial", "mechanical"}}}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = idx.Query(ctx, QueryRequest{Vector: []float32{1, 0}, Namespace: "ind", Filter: Filter{"department": map[string]any{"$regex": "x"}}})
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestFilterOperators(t *testing.T) {
	meta := map[string]any{"credits": 3.0, "tags": []any{"lab", "core"}, "title": "Signals and Systems"}
	cases := []struct {
		filter Filter
		want   bool
	}{
		{Filter{"credits": 3}, true},
		{Filter{"credits": map[string]any{"$gte": 3, "$lt": 4}}, true},
		{Filter{"credits": map[string]any{"$gt": 3}}, false},
		{Filter{"tags": "lab"}, true},
		{Filter{"tags": map[string]any{"$nin": []any{"elective"}}}, true},
		{Filter{"title": map[string]any{"$contains": "signals"}}, true},
		{Filter{"missing": map[string]any{"$ne": "x"}}, true},
		{Filter{"missing": "x"}, false},
	}
	for _, tc := range cases {
		got, err := tc.filter.Match(meta)
		require.NoError(t, err, tc.filter)
		assert.Equal(t, tc.want, got, tc.filter)
	}
}

func TestLocalIndexLookupNormalizesCourseCode(t *testing.T) {
	idx := newTestIndex(t, newTestStore(t))
	seed(t, idx, "ece_namespace",
		domain.Passage{ID: "230", Content: "EECE 230 intro", Metadata: map[string]any{"course_code": "EECE 230"}, Embedding: []float32{1}},
		domain.Passage{ID: "231", Content: "EECE 231", Metadata: map[string]any{"course_code": "EECE 231"}, Embedding: []float32{1}},
	)
	seed(t, idx, "cse_namespace",
		domain.Passage{ID: "230", Content: "other ns", Metadata: map[string]any{"course_code": "EECE 230"}, Embedding: []float32{1}},
	)

	for _, q := range []string{"EECE 230", "eece230", "EECE  230"} {
		got, err := idx.Lookup(context.Background(), LookupRequest{Namespace: "ece_namespace", Field: "course_code", Value: q})
		require.NoError(t, err, q)
		require.Len(t, got, 1, q)
		assert.Equal(t, "EECE 230 intro", got[0].Passage.Content)
	}
}

func TestLocalIndexDeleteListAndReload(t *testing.T) {
	repo := newTestStore(t)
	idx := newTestIndex(t, repo)
	ctx := context.Background()
	seed(t, idx, "ns",
		domain.Passage{ID: "doc-1", Content: "one", Metadata: map[string]any{"kind": "a"}, Embedding: []float32{1, 0}},
		domain.Passage{ID: "doc-2", Content: "two", Metadata: map[string]any{"kind": "b"}, Embedding: []float32{0, 1}},
		domain.Passage{ID: "doc-3", Content: "three", Metadata: map[string]any{"kind": "b"}, Embedding: []float32{1, 1}},
		domain.Passage{ID: "other", Content: "x", Embedding: []float32{1, 1}},
	)

	page, err := idx.List(ctx, ListRequest{Namespace: "ns", Prefix: "doc-", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, page.IDs)
	require.NotEmpty(t, page.NextToken)
	page, err = idx.List(ctx, ListRequest{Namespace: "ns", Prefix: "doc-", Limit: 2, PaginationToken: page.NextToken})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-3"}, page.IDs)
	assert.Empty(t, page.NextToken)

	n, err := idx.Delete(ctx, DeleteRequest{Namespace: "ns", Filter: Filter{"kind": "b"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, idx.Update(ctx, "ns", "doc-1", UpdateRequest{SetMetadata: map[string]any{"reviewed": true}}))

	reloaded := newTestIndex(t, repo)
	got, err := reloaded.Fetch(ctx, "ns", []string{"doc-1", "doc-2", "doc-3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got["doc-1"].Metadata["kind"])
	assert.Equal(t, true, got["doc-1"].Metadata["reviewed"])

	n, err = reloaded.Delete(ctx, DeleteRequest{Namespace: "ns", DeleteAll: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	stats, err := reloaded.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Namespaces["ns"])
}

func TestLocalIndexRejectsDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, newTestStore(t))
	seed(t, idx, "ns", domain.Passage{ID: "a", Embedding: []float32{1, 0}})
	_, err := idx.Upsert(context.Background(), "ns", []domain.Passage{{ID: "b", Embedding: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestRestrictedIndexDeniedCallsNeverReachIndex(t *testing.T) {
	inner := &countingIndex{Index: newTestIndex(t, newTestStore(t))}
	reg := namespace.NewRegistry(map[string][]string{"mechanical": {"mechanical_namespace"}})
	ctx := context.Background()

	mech := NewRestrictedIndex("mechanical", inner, reg, nil)
	_, err := mech.Query(ctx, QueryRequest{Vector: []float32{1}, Namespace: "civil_namespace"})
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)
	_, err = mech.Upsert(ctx, "civil_namespace", []domain.Passage{{Content: "x"}})
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)
	_, err = mech.Delete(ctx, DeleteRequest{Namespace: "civil_namespace", DeleteAll: true})
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)
	_, err = mech.Lookup(ctx, LookupRequest{Namespace: "civil_namespace", Field: "course_code", Value: "CIVE 210"})
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)

	unknown := NewRestrictedIndex("stranger", inner, reg, nil)
	_, err = unknown.Query(ctx, QueryRequest{Vector: []float32{1}})
	var denied *namespace.PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "stranger", denied.AgentID)

	_, err = mech.QueryNamespaces(ctx, MultiQueryRequest{Vector: []float32{1}, Namespaces: []string{"civil_namespace"}})
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)

	assert.Zero(t, inner.calls)
}

func TestRestrictedIndexResolvesDefaultNamespace(t *testing.T) {
	inner := newTestIndex(t, newTestStore(t))
	reg := namespace.NewRegistry(map[string][]string{"ece": {"ece_namespace", "cse_namespace"}})
	ece := NewRestrictedIndex("ece", inner, reg, nil)
	ctx := context.Background()

	_, err := ece.Upsert(ctx, "", []domain.Passage{{ID: "p", Content: "x", Embedding: []float32{1}}})
	require.NoError(t, err)
	got, err := inner.Fetch(ctx, "ece_namespace", []string{"p"})
	require.NoError(t, err)
	assert.Contains(t, got, "p")
	assert.Equal(t, "ece_namespace", ece.DefaultNamespace())

	_, err = ece.Upsert(ctx, "cse_namespace", []domain.Passage{{ID: "q", Content: "y", Embedding: []float32{1}}})
	require.NoError(t, err)
	matches, err := ece.QueryNamespaces(ctx, MultiQueryRequest{
		Vector:     []float32{1},
		Namespaces: []string{"cse_namespace", "civil_namespace", "ece_namespace"},
		TopK:       5,
	})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	stats, err := ece.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalVectors)
}

func newTestRetriever(t *testing.T, agentID string, reg *namespace.Registry) (*Retriever, *llmtest.HashEmbedder) {
	t.Helper()
	emb := &llmtest.HashEmbedder{Dim: 256}
	idx := newTestIndex(t, newTestStore(t))
	return NewRetriever(NewRestrictedIndex(agentID, idx, reg, nil), emb, 3, nil), emb
}

func TestRetrieverOptionsAndIndexer(t *testing.T) {
	reg := namespace.NewRegistry(map[string][]string{"industrial": {"industrial_namespace", "shared_namespace"}})
	r, emb := newTestRetriever(t, "industrial", reg)
	ctx := context.Background()

	ix := NewIndexer(r.Index(), emb)
	ids, err := ix.Store(ctx, []*schema.Document{
		{Content: "Industrial engineering curriculum and operations research", MetaData: map[string]any{"source": "enmg.pdf", "department": "industrial"}},
		{Content: "Industrial engineering career paths in supply chain", MetaData: map[string]any{"source": "careers.pdf", "department": "industrial"}},
		{Content: "Civil engineering bridges", MetaData: map[string]any{"source": "cee.pdf", "department": "civil"}},
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	docs, err := r.Retrieve(ctx, "industrial engineering curriculum", retriever.WithTopK(1))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "enmg.pdf", docs[0].MetaData["source"])
	assert.Positive(t, docs[0].Score())

	docs, err = r.Retrieve(ctx, "engineering", retriever.WithDSLInfo(map[string]any{"department": "industrial"}))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = r.Retrieve(ctx, "engineering", retriever.WithScoreThreshold(1.01))
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = ix.Store(ctx, []*schema.Document{{Content: "shared text"}}, indexer.WithSubIndexes([]string{"shared_namespace"}))
	require.NoError(t, err)
	docs, err = r.Retrieve(ctx, "shared text", retriever.WithSubIndex("shared_namespace"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "unknown", docs[0].MetaData["source"])

	calls := emb.Calls()
	_, err = r.Retrieve(ctx, "anything", retriever.WithSubIndex("mechanical_namespace"))
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)
	assert.Equal(t, calls, emb.Calls(), "denied retrieval must not embed")

	_, err = ix.Store(ctx, []*schema.Document{{Content: "x"}}, indexer.WithSubIndexes([]string{"mechanical_namespace"}))
	assert.ErrorIs(t, err, namespace.ErrPermissionDenied)
}

func TestRetrieverLookupExact(t *testing.T) {
	reg := namespace.NewRegistry(map[string][]string{"ece": {"ece_namespace"}})
	r, emb := newTestRetriever(t, "ece", reg)
	ctx := context.Background()
	_, err := NewIndexer(r.Index(), emb).Store(ctx, []*schema.Document{
		{ID: "eece230", Content: "EECE 230 Introduction to Programming", MetaData: map[string]any{"course_code": "EECE 230", "source": "catalog"}},
	})
	require.NoError(t, err)

	docs, err := r.LookupExact(ctx, "", MetaCourseCode, "eece 230", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	p := FromDocuments(docs)
	assert.Equal(t, "catalog", p[0].Source)
	assert.Equal(t, "EECE 230", p[0].Metadata["course_code"])
}

func TestRetrieverCacheBuildsOncePerAgent(t *testing.T) {
	reg := namespace.NewRegistry(namespace.DefaultConfig())
	cache := NewRetrieverCache(newTestIndex(t, newTestStore(t)), reg, &llmtest.HashEmbedder{}, 3, nil)

	var wg sync.WaitGroup
	got := make([]*Retriever, 32)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = cache.Get("civil")
		}(i)
	}
	wg.Wait()

	for _, r := range got {
		assert.Same(t, got[0], r)
	}
	assert.Equal(t, 1, cache.constructions())
	assert.NotSame(t, got[0], cache.Get("chemical"))
	assert.Equal(t, 2, cache.Len())
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk("   ", 100, 10))

	text := "First paragraph is short.\n\nSecond paragraph has two sentences. It keeps going for a while.\n\nThird."
	chunks := Chunk(text, 40, 0)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 40, c)
	}
	assert.Equal(t, "First paragraph is short.", chunks[0])

	overlapped := Chunk(text, 40, 10)
	assert.GreaterOrEqual(t, len(overlapped), len(chunks))

	assert.Equal(t, []string{"one two"}, Chunk("one\n two", 100, 0))
}

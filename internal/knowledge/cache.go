package knowledge

import (
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/singleflight"

	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
)

// RetrieverCache memoizes one Retriever per agent for the process lifetime.
// Concurrent first callers for the same agent share a single construction.
type RetrieverCache struct {
	index    Index
	registry *namespace.Registry
	embedder embedding.Embedder
	topK     int
	metrics  *metrics.Collector

	mu    sync.RWMutex
	items map[string]*Retriever
	group singleflight.Group
	built int
}

// NewRetrieverCache creates an empty cache.
func NewRetrieverCache(index Index, registry *namespace.Registry, embedder embedding.Embedder, topK int, m *metrics.Collector) *RetrieverCache {
	return &RetrieverCache{
		index:    index,
		registry: registry,
		embedder: embedder,
		topK:     topK,
		metrics:  m,
		items:    make(map[string]*Retriever),
	}
}

// Get returns the retriever for agentID, building it on first use.
func (c *RetrieverCache) Get(agentID string) *Retriever {
	c.mu.RLock()
	r, ok := c.items[agentID]
	c.mu.RUnlock()
	if ok {
		c.metrics.RecordCache("retriever", true)
		return r
	}

	v, _, _ := c.group.Do(agentID, func() (any, error) {
		c.mu.RLock()
		r, ok := c.items[agentID]
		c.mu.RUnlock()
		if ok {
			return r, nil
		}
		r = NewRetriever(NewRestrictedIndex(agentID, c.index, c.registry, c.metrics), c.embedder, c.topK, c.metrics)
		c.mu.Lock()
		c.items[agentID] = r
		c.built++
		c.mu.Unlock()
		return r, nil
	})
	c.metrics.RecordCache("retriever", false)
	return v.(*Retriever)
}

// Len reports the number of cached retrievers.
func (c *RetrieverCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *RetrieverCache) constructions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.built
}

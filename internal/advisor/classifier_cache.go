package advisor

import (
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

const (
	defaultClassifierTTL = 10 * time.Minute
	classifierCounters   = 1e5
	classifierMaxCost    = 1 << 22
	classifierBuffer     = 64
)

// classifierCache remembers raw classifier answers per (prompt kind,
// normalized message).
type classifierCache struct {
	cache   *ristretto.Cache
	ttl     time.Duration
	metrics *metrics.Collector

	mu     sync.RWMutex
	closed bool
}

func newClassifierCache(ttl time.Duration, m *metrics.Collector) (*classifierCache, error) {
	if ttl <= 0 {
		ttl = defaultClassifierTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: classifierCounters,
		MaxCost:     classifierMaxCost,
		BufferItems: classifierBuffer,
	})
	if err != nil {
		return nil, err
	}
	return &classifierCache{cache: c, ttl: ttl, metrics: m}, nil
}

func classifierKey(kind, message string) string {
	return kind + "\x00" + strings.Join(strings.Fields(strings.ToLower(message)), " ")
}

func (c *classifierCache) get(kind, message string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return "", false
	}
	v, ok := c.cache.Get(classifierKey(kind, message))
	label, _ := v.(string)
	hit := ok && label != ""
	c.metrics.RecordCache("classifier", hit)
	return label, hit
}

func (c *classifierCache) set(kind, message, label string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	key := classifierKey(kind, message)
	c.cache.SetWithTTL(key, label, int64(len(key)+len(label)), c.ttl)
}

// wait blocks until buffered sets are applied.
func (c *classifierCache) wait() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		c.cache.Wait()
	}
}

func (c *classifierCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cache.Close()
}

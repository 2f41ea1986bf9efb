package knowledge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
)

var _ Index = (*RestrictedIndex)(nil)

// RestrictedIndex binds an Index to one agent. Every call resolves its
// namespace through the registry before touching the underlying index.
type RestrictedIndex struct {
	agentID  string
	index    Index
	registry *namespace.Registry
	metrics  *metrics.Collector
}

// NewRestrictedIndex wraps index for agentID. m may be nil.
func NewRestrictedIndex(agentID string, index Index, registry *namespace.Registry, m *metrics.Collector) *RestrictedIndex {
	return &RestrictedIndex{agentID: agentID, index: index, registry: registry, metrics: m}
}

// AgentID returns the bound agent.
func (r *RestrictedIndex) AgentID() string { return r.agentID }

// DefaultNamespace returns the agent's first allowed namespace, or "" when
// the agent has none.
func (r *RestrictedIndex) DefaultNamespace() string {
	ns, err := r.registry.Check(r.agentID, "")
	if err != nil {
		return ""
	}
	return ns
}

func (r *RestrictedIndex) check(ns string) (string, error) {
	resolved, err := r.registry.Check(r.agentID, ns)
	if err != nil {
		r.denied(err)
		return "", err
	}
	return resolved, nil
}

func (r *RestrictedIndex) denied(err error) {
	if errors.Is(err, namespace.ErrPermissionDenied) {
		r.metrics.RecordDenial(r.agentID)
		slog.Warn("Namespace access denied", "agent_id", r.agentID, "error", err)
	}
}

// Query searches one namespace. An empty namespace uses the agent default.
func (r *RestrictedIndex) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	ns, err := r.check(req.Namespace)
	if err != nil {
		return nil, err
	}
	req.Namespace = ns
	return r.index.Query(ctx, req)
}

// QueryNamespaces searches the permitted subset of the requested namespaces.
func (r *RestrictedIndex) QueryNamespaces(ctx context.Context, req MultiQueryRequest) ([]Match, error) {
	allowed, err := r.registry.Filter(r.agentID, req.Namespaces)
	if err != nil {
		r.denied(err)
		return nil, err
	}
	req.Namespaces = allowed
	return r.index.QueryNamespaces(ctx, req)
}

// Upsert writes records into a namespace the agent may access.
func (r *RestrictedIndex) Upsert(ctx context.Context, ns string, records []domain.Passage) (int, error) {
	resolved, err := r.check(ns)
	if err != nil {
		return 0, err
	}
	return r.index.Upsert(ctx, resolved, records)
}

// Delete removes records from a namespace the agent may access.
func (r *RestrictedIndex) Delete(ctx context.Context, req DeleteRequest) (int64, error) {
	ns, err := r.check(req.Namespace)
	if err != nil {
		return 0, err
	}
	req.Namespace = ns
	return r.index.Delete(ctx, req)
}

// Update modifies one record in a namespace the agent may access.
func (r *RestrictedIndex) Update(ctx context.Context, ns, id string, req UpdateRequest) error {
	resolved, err := r.check(ns)
	if err != nil {
		return err
	}
	return r.index.Update(ctx, resolved, id, req)
}

// Fetch reads records by id.
func (r *RestrictedIndex) Fetch(ctx context.Context, ns string, ids []string) (map[string]domain.Passage, error) {
	resolved, err := r.check(ns)
	if err != nil {
		return nil, err
	}
	return r.index.Fetch(ctx, resolved, ids)
}

// List pages through record ids.
func (r *RestrictedIndex) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	ns, err := r.check(req.Namespace)
	if err != nil {
		return nil, err
	}
	req.Namespace = ns
	return r.index.List(ctx, req)
}

// Lookup performs an exact metadata match.
func (r *RestrictedIndex) Lookup(ctx context.Context, req LookupRequest) ([]Match, error) {
	ns, err := r.check(req.Namespace)
	if err != nil {
		return nil, err
	}
	req.Namespace = ns
	return r.index.Lookup(ctx, req)
}

// Stats reports counts for the agent's namespaces only.
func (r *RestrictedIndex) Stats(ctx context.Context) (*Stats, error) {
	allowed := r.registry.Allowed(r.agentID)
	if len(allowed) == 0 {
		err := &namespace.PermissionDeniedError{AgentID: r.agentID}
		r.denied(err)
		return nil, err
	}
	all, err := r.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{Namespaces: make(map[string]int, len(allowed)), Dimension: all.Dimension}
	for _, ns := range allowed {
		n := all.Namespaces[ns]
		out.Namespaces[ns] = n
		out.TotalVectors += n
	}
	return out, nil
}

// Package namespace maps advisor agents to the knowledge namespaces they may read and write.
package namespace

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrPermissionDenied is matched by every *PermissionDeniedError.
	ErrPermissionDenied = errors.New("namespace permission denied")
	// ErrNoNamespaces is returned when a multi-namespace request names none.
	ErrNoNamespaces = errors.New("no namespaces requested")
)

// PermissionDeniedError reports an agent reaching outside its allow-list.
type PermissionDeniedError struct {
	AgentID   string
	Namespace string
	Allowed   []string
}

func (e *PermissionDeniedError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("agent %q has no registered namespaces (requested %q)", e.AgentID, e.Namespace)
	}
	return fmt.Sprintf("agent %q may not access namespace %q (allowed: %s)",
		e.AgentID, e.Namespace, strings.Join(e.Allowed, ", "))
}

// Is lets errors.Is match ErrPermissionDenied.
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Registry is a concurrency-safe agent to namespace allow-list.
// Unknown agents have no namespaces.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewRegistry builds a registry from an agent to namespaces mapping.
func NewRegistry(entries map[string][]string) *Registry {
	r := &Registry{entries: make(map[string][]string, len(entries))}
	for agent, ns := range entries {
		r.entries[agent] = dedupe(ns)
	}
	return r
}

// Register replaces the namespaces for agentID. Order is kept, duplicates and
// blanks are dropped.
func (r *Registry) Register(agentID string, namespaces []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[agentID] = dedupe(namespaces)
}

// Replace swaps the whole registry content, used by hot reload.
func (r *Registry) Replace(entries map[string][]string) {
	next := make(map[string][]string, len(entries))
	for agent, ns := range entries {
		next[agent] = dedupe(ns)
	}
	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
}

// Allowed returns a copy of the agent's namespaces, empty for unknown agents.
func (r *Registry) Allowed(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries[agentID])
}

// Check resolves namespace for agentID. An empty namespace resolves to the
// agent's first allowed namespace.
func (r *Registry) Check(agentID, namespace string) (string, error) {
	allowed := r.Allowed(agentID)
	if len(allowed) == 0 {
		return "", &PermissionDeniedError{AgentID: agentID, Namespace: namespace}
	}
	if namespace == "" {
		return allowed[0], nil
	}
	if !slices.Contains(allowed, namespace) {
		return "", &PermissionDeniedError{AgentID: agentID, Namespace: namespace, Allowed: allowed}
	}
	return namespace, nil
}

// Filter narrows namespaces to those the agent may access, keeping request
// order. It fails only when nothing survives.
func (r *Registry) Filter(agentID string, namespaces []string) ([]string, error) {
	if len(namespaces) == 0 {
		return nil, ErrNoNamespaces
	}
	allowed := r.Allowed(agentID)
	var out, dropped []string
	for _, ns := range dedupe(namespaces) {
		if slices.Contains(allowed, ns) {
			out = append(out, ns)
		} else {
			dropped = append(dropped, ns)
		}
	}
	if len(out) == 0 {
		return nil, &PermissionDeniedError{AgentID: agentID, Namespace: strings.Join(namespaces, ","), Allowed: allowed}
	}
	if len(dropped) > 0 {
		slog.Warn("Namespace request partially authorized",
			"agent_id", agentID,
			"allowed", out,
			"dropped", dropped,
		)
	}
	return out, nil
}

// Agents returns the registered agent ids in sorted order.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]string, 0, len(r.entries))
	for a := range r.entries {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	return agents
}

// Snapshot returns a deep copy of the registry.
func (r *Registry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.entries))
	for a, ns := range r.entries {
		out[a] = slices.Clone(ns)
	}
	return out
}

func dedupe(namespaces []string) []string {
	seen := make(map[string]bool, len(namespaces))
	out := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		ns = strings.TrimSpace(ns)
		if ns == "" || seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	return out
}

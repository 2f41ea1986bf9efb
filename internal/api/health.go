package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	*Handler
	registry *namespace.Registry
	catalog  *catalog.Loader
}

// NewHealthHandler creates a new health handler. registry and loader may
// be nil.
func NewHealthHandler(base *Handler, registry *namespace.Registry, loader *catalog.Loader) *HealthHandler {
	return &HealthHandler{Handler: base, registry: registry, catalog: loader}
}

// Heartbeat reports that the process is serving.
func (h *HealthHandler) Heartbeat(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]any{"api": "ok"}
	status := map[string]any{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.registry != nil {
		checks["agents"] = len(h.registry.Agents())
	}

	switch {
	case h.catalog == nil:
		checks["catalog"] = "not configured"
	case h.catalog.Available(ctx):
		checks["catalog"] = "ok"
	default:
		checks["catalog"] = "unavailable"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Heartbeat)
	r.Get("/api/health", h.Health)
}

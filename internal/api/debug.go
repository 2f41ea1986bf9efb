package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
)

// Processor answers one advising turn.
type Processor interface {
	Process(ctx context.Context, text, sessionID string) (*advisor.Result, error)
}

// DebugHandler exposes routing internals. It is only mounted in
// development.
type DebugHandler struct {
	*Handler
	proc Processor
}

// NewDebugHandler creates a debug handler.
func NewDebugHandler(base *Handler, proc Processor) *DebugHandler {
	return &DebugHandler{Handler: base, proc: proc}
}

type debugRouteRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// RegisterRoutes mounts the debug routes when running in development.
func (h *DebugHandler) RegisterRoutes(r chi.Router) bool {
	if !h.isDevelopment() {
		return false
	}
	r.Post("/api/debug/route", h.Route)
	return true
}

// Route runs a stateless turn and includes the internal error, if any.
func (h *DebugHandler) Route(w http.ResponseWriter, r *http.Request) {
	var req debugRouteRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.proc.Process(r.Context(), req.Text, "")
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	body := map[string]any{"result": res}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	JSON(w, http.StatusOK, body)
}

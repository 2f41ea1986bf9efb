package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
)

// UserHandler serves the caller's identity and frontend configuration.
type UserHandler struct {
	*Handler
}

// NewUserHandler creates a new user handler.
func NewUserHandler(base *Handler) *UserHandler {
	return &UserHandler{Handler: base}
}

// RegisterRoutes registers user routes.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
	})
}

// GetMe returns the current user's information.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    user.UserID,
		"username":   user.Username,
		"session_id": identity.SessionIDFromContext(r.Context()),
		"created_at": user.CreatedAt,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *UserHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := map[string]interface{}{
		"calendar_enabled": false,
		"development":      h.isDevelopment(),
	}
	if h.cfg != nil {
		cfg["calendar_enabled"] = h.cfg.CalendarEnabled()
		cfg["llm_provider"] = h.cfg.LLM.Provider
	}
	JSON(w, http.StatusOK, cfg)
}

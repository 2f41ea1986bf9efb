// Package api provides HTTP handlers for the advisor API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

const maxRequestBodySize = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	cfg      *config.Config
	validate *validator.Validate
}

// NewHandler creates a new Handler with common dependencies. cfg may be nil.
func NewHandler(repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether v is usable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			Error(w, http.StatusBadRequest, strings.ToLower(verrs[0].Field())+" is "+verrs[0].Tag())
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// isDevelopment returns true if running in development mode.
func (h *Handler) isDevelopment() bool {
	if h.cfg != nil {
		return h.cfg.IsDevelopment()
	}
	return os.Getenv("APP_ENV") == "development"
}

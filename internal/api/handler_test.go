//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
)

func TestResponseWriters(t *testing.T) {
	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		code  int
		key   string
		value string
	}{
		{"json", func(w http.ResponseWriter) { JSON(w, http.StatusCreated, map[string]string{"department": "ECE"}) }, http.StatusCreated, "department", "ECE"},
		{"error", func(w http.ResponseWriter) { Error(w, http.StatusConflict, "schedule conflicts") }, http.StatusConflict, "error", "schedule conflicts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}
			var got map[string]string
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got[tt.key] != tt.value {
				t.Errorf("expected %s=%s, got %v", tt.key, tt.value, got)
			}
		})
	}
}

type courseLookup struct {
	Course string `json:"course" validate:"required,max=16"`
}

func TestDecodeValidates(t *testing.T) {
	h := NewHandler(newFakeRepo(), nil)

	tests := []struct {
		name string
		body string
		ok   bool
		code int
		msg  string
	}{
		{"valid", `{"course":"EECE 230"}`, true, http.StatusOK, ""},
		{"malformed", `{"course":`, false, http.StatusBadRequest, "invalid request body"},
		{"missing field", `{}`, false, http.StatusBadRequest, "course is required"},
		{"too long", `{"course":"` + strings.Repeat("X", 20) + `"}`, false, http.StatusBadRequest, "course is max"},
		{"oversized", `{"course":"` + strings.Repeat("X", maxRequestBodySize) + `"}`, false, http.StatusRequestEntityTooLarge, "request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var v courseLookup
			if got := h.decode(w, r, &v); got != tt.ok {
				t.Fatalf("decode = %v, want %v", got, tt.ok)
			}
			if tt.ok {
				return
			}
			if w.Code != tt.code || !strings.Contains(w.Body.String(), tt.msg) {
				t.Errorf("expected %d %q, got %d %s", tt.code, tt.msg, w.Code, w.Body.String())
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	if !NewHandler(nil, &config.Config{AppEnv: "development"}).isDevelopment() {
		t.Error("expected development")
	}
	if NewHandler(nil, &config.Config{AppEnv: "production"}).isDevelopment() {
		t.Error("expected production")
	}
}

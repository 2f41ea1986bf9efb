package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

const defaultTokenLifetime = 3600

// CalendarService is the Google Calendar integration used by the handlers.
type CalendarService interface {
	AuthURL(state string) (authURL, usedState string)
	Exchange(ctx context.Context, state, code string) (*oauth2.Token, error)
	CheckConflicts(ctx context.Context, accessToken string, s *domain.StructuredSchedule) ([]calendar.Conflict, error)
	InsertSchedule(ctx context.Context, accessToken string, s *domain.StructuredSchedule) ([]calendar.InsertedEvent, error)
	Location() *time.Location
}

var _ CalendarService = (*calendar.GoogleClient)(nil)

// CalendarHandler serves the /api/gcalendar routes.
type CalendarHandler struct {
	*Handler
	cal CalendarService
	loc *time.Location
	now func() time.Time
}

// NewCalendarHandler creates a calendar handler. cal may be nil when OAuth
// is not configured; link generation still works then.
func NewCalendarHandler(base *Handler, cal CalendarService) *CalendarHandler {
	loc := time.UTC
	switch {
	case cal != nil:
		loc = cal.Location()
	case base.cfg != nil:
		if l, err := time.LoadLocation(base.cfg.Calendar.TimeZone); err == nil {
			loc = l
		}
	}
	return &CalendarHandler{Handler: base, cal: cal, loc: loc, now: time.Now}
}

type scheduleRequest struct {
	AccessToken  string                     `json:"access_token"`
	ScheduleData *domain.StructuredSchedule `json:"schedule_data" validate:"-"`
	ForceAdd     bool                       `json:"force_add"`
}

// RegisterRoutes registers calendar routes.
func (h *CalendarHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/gcalendar", func(r chi.Router) {
		r.Get("/auth", h.Auth)
		r.Get("/callback", h.Callback)
		r.Post("/add-schedule", h.AddSchedule)
		r.Post("/check-conflicts", h.CheckConflicts)
		r.Post("/generate-links", h.GenerateLinks)
	})
}

func (h *CalendarHandler) requireService(w http.ResponseWriter) bool {
	if h.cal == nil {
		Error(w, http.StatusServiceUnavailable, "google calendar is not configured")
		return false
	}
	return true
}

// Auth starts the OAuth flow and returns the consent URL.
func (h *CalendarHandler) Auth(w http.ResponseWriter, r *http.Request) {
	if !h.requireService(w) {
		return
	}
	authURL, state := h.cal.AuthURL(r.URL.Query().Get("state"))
	JSON(w, http.StatusOK, map[string]string{"auth_url": authURL, "state": state})
}

// Callback exchanges the authorization code for tokens.
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.requireService(w) {
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		slog.Warn("Google authentication failed", "error", e)
		Error(w, http.StatusBadRequest, "authentication error: "+e)
		return
	}
	code := q.Get("code")
	if code == "" {
		Error(w, http.StatusBadRequest, "no authorization code provided")
		return
	}
	state := q.Get("state")

	tok, err := h.cal.Exchange(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, calendar.ErrUnknownState) {
			Error(w, http.StatusBadRequest, "unknown or expired state")
			return
		}
		slog.Error("Token exchange failed", "error", err)
		Error(w, http.StatusUnauthorized, "failed to obtain access token")
		return
	}

	expiresIn := int64(defaultTokenLifetime)
	if !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	JSON(w, http.StatusOK, map[string]any{
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expires_in":    expiresIn,
		"state":         state,
	})
}

// decodeSchedule reads a schedule request, requiring an access token when
// needToken is set.
func (h *CalendarHandler) decodeSchedule(w http.ResponseWriter, r *http.Request, needToken bool) (*scheduleRequest, bool) {
	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return nil, false
	}
	if needToken && req.AccessToken == "" {
		Error(w, http.StatusUnauthorized, "access token is required")
		return nil, false
	}
	if req.ScheduleData == nil {
		Error(w, http.StatusBadRequest, "schedule data is required")
		return nil, false
	}
	req.ScheduleData.Normalize()
	if err := req.ScheduleData.Validate(); err != nil {
		Error(w, http.StatusBadRequest, "invalid schedule data")
		return nil, false
	}
	return &req, true
}

// CheckConflicts compares a schedule against the user's calendar.
func (h *CalendarHandler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	if !h.requireService(w) {
		return
	}
	req, ok := h.decodeSchedule(w, r, true)
	if !ok {
		return
	}
	conflicts, err := h.cal.CheckConflicts(r.Context(), req.AccessToken, req.ScheduleData)
	if err != nil {
		slog.Error("Conflict check failed", "error", err)
		Error(w, http.StatusBadGateway, "failed to read calendar")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"has_conflicts": len(conflicts) > 0,
		"conflicts":     nonNil(conflicts),
	})
}

// AddSchedule inserts a schedule as recurring events. Conflicts are
// reported instead unless force_add is set.
func (h *CalendarHandler) AddSchedule(w http.ResponseWriter, r *http.Request) {
	if !h.requireService(w) {
		return
	}
	req, ok := h.decodeSchedule(w, r, true)
	if !ok {
		return
	}
	ctx := r.Context()

	if !req.ForceAdd {
		conflicts, err := h.cal.CheckConflicts(ctx, req.AccessToken, req.ScheduleData)
		if err != nil {
			slog.Error("Conflict check failed", "error", err)
			Error(w, http.StatusBadGateway, "failed to read calendar")
			return
		}
		if len(conflicts) > 0 {
			JSON(w, http.StatusOK, map[string]any{
				"status":    "conflicts_found",
				"conflicts": conflicts,
				"message":   "Found calendar conflicts with your existing events",
			})
			return
		}
	}

	events, err := h.cal.InsertSchedule(ctx, req.AccessToken, req.ScheduleData)
	if err != nil {
		slog.Error("Failed to add schedule", "inserted", len(events), "error", err)
		Error(w, http.StatusBadGateway, "failed to add schedule to calendar")
		return
	}
	slog.Info("Schedule added to calendar", "events", len(events), "forced", req.ForceAdd)
	JSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Schedule successfully added to your Google Calendar",
		"results": nonNil(events),
	})
}

// GenerateLinks returns pre-filled calendar links for each meeting. It
// needs no OAuth.
func (h *CalendarHandler) GenerateLinks(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSchedule(w, r, false)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"links":  nonNil(calendar.Links(req.ScheduleData, h.now(), h.loc)),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

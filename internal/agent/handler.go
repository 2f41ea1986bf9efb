package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
)

const defaultMaxRequestBodySize = 1 << 20

var (
	errUnauthorized = apiError{http.StatusUnauthorized, "unauthorized"}
	errRateLimited  = apiError{http.StatusTooManyRequests, "rate limit exceeded"}
	errBadBody      = apiError{http.StatusBadRequest, "invalid request body"}
	errBodyTooLarge = apiError{http.StatusRequestEntityTooLarge, "request body too large"}
)

type apiError struct {
	status int
	msg    string
}

func (e apiError) write(w http.ResponseWriter) {
	writeJSON(w, e.status, map[string]string{"error": e.msg})
}

// Handler serves the advisor over HTTP: one-shot queries, streamed chat
// turns, session resets and the per-conversation event stream.
type Handler struct {
	agent     *Service
	limiter   *RateLimiter
	validate  *validator.Validate
	hub       *streamHub
	log       ConversationLogger
	cfg       *config.Config
	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler wires svc to HTTP. A nil cfg selects defaults.
func NewHandler(svc *Service, convLog ConversationLogger, cfg *config.Config) *Handler {
	if convLog == nil {
		convLog = noopConversationLogger{}
	}
	requests, window := 10, time.Minute
	if cfg != nil {
		requests, window = cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration
	}
	return &Handler{
		agent:    svc,
		limiter:  NewRateLimiter(requests, window),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		hub:      newStreamHub(backlogSize),
		log:      convLog,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
}

// RegisterRoutes mounts the agent routes. The identity middleware must
// already be installed on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/query", h.HandleQuery)
	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/stream", h.HandleStream)
		r.Delete("/session", h.HandleResetSession)
	})
}

// GetService returns the underlying agent service.
func (h *Handler) GetService() *Service {
	return h.agent
}

// Close ends open streams and releases the service and the logger.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.agent != nil {
			h.agent.Close()
		}
		if err := h.log.Close(); err != nil {
			slog.Warn("Failed to close conversation logger", "error", err)
		}
	})
}

// admit checks identity and the rate limit for a new turn.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, requireUser bool) (string, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		if requireUser {
			errUnauthorized.write(w)
			return "", false
		}
		return "", true
	}
	if !h.limiter.Allow(userID) {
		slog.Warn("Rate limit exceeded", "user_id", userID)
		errRateLimited.write(w)
		return "", false
	}
	return userID, true
}

func (h *Handler) bodyLimit() int64 {
	if h.cfg != nil && h.cfg.SSE.MaxRequestBodySize > 0 {
		return h.cfg.SSE.MaxRequestBodySize
	}
	return defaultMaxRequestBodySize
}

// decodeBody reads and validates a JSON body into v, answering the client
// itself on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.bodyLimit()))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errBodyTooLarge.write(w)
		} else {
			errBadBody.write(w)
		}
		return false
	}
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		apiError{http.StatusBadRequest, strings.ToLower(verrs[0].Field()) + " is " + verrs[0].Tag()}.write(w)
		return false
	}
	errBadBody.write(w)
	return false
}

// HandleQuery handles POST /api/query with a single JSON answer.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.admit(w, r, false)
	if !ok {
		return
	}
	var body QueryRequest
	if !h.decodeBody(w, r, &body) {
		return
	}
	req := ChatRequest{Message: body.Text, UserID: userID, SessionID: body.SessionID}
	reqID := chiMiddleware.GetReqID(r.Context())
	h.logTurn("query_http", req.UserID, req.SessionID, "chat_user_message", req.Message, map[string]any{"request_id": reqID})

	res, err := h.agent.Ask(r.Context(), req)
	if err != nil {
		slog.Error("Query failed", "user_id", userID, "session_id", body.SessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to process query"})
		return
	}
	h.logTurn("query_http", userID, body.SessionID, "chat_assistant_message", res.Content, map[string]any{
		"department": res.Department,
		"status":     res.Status,
		"request_id": reqID,
	})
	h.Publish(userID, body.SessionID, res)
	writeJSON(w, http.StatusOK, res)
}

// HandleChat handles POST /api/agent/chat. The answer arrives as "message"
// events, the last of which has done set and carries the routing fields.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.admit(w, r, true)
	if !ok {
		return
	}
	var req ChatRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}
	req.UserID = userID
	req.SessionID = identity.SessionIDFromContext(r.Context())
	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Agent chat request", "user_id", userID, "session_id", req.SessionID, "message_length", len(req.Message))
	h.logTurn("chat_http", userID, req.SessionID, "chat_user_message", req.Message, map[string]any{"request_id": reqID})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	t := chatTranscript{}
	for resp, err := range h.agent.Chat(r.Context(), req) {
		if err != nil {
			t.failure = err.Error()
			slog.Error("Agent stream failed", "user_id", userID, "session_id", req.SessionID, "error", err)
			_ = writeSSE(w, "error", `{"error":"failed to process message"}`)
			flusher.Flush()
			break
		}
		t.add(resp)
		data, err := json.Marshal(resp)
		if err == nil {
			err = writeSSE(w, "message", string(data))
		}
		if err != nil {
			t.failure = err.Error()
			slog.Warn("Failed to write chat chunk", "user_id", userID, "error", err)
			break
		}
		flusher.Flush()
	}

	h.logTurn("chat_http", userID, req.SessionID, "chat_assistant_message", t.text.String(), map[string]any{
		"stream_chunks": t.chunks,
		"partial":       t.final == nil,
		"stream_error":  t.failure,
		"request_id":    reqID,
	})
	if t.final != nil {
		h.publishChunk(userID, req.SessionID, t.final)
	}
}

// chatTranscript accumulates a streamed answer for the conversation log.
type chatTranscript struct {
	text    strings.Builder
	chunks  int
	final   *ChatResponse
	failure string
}

func (t *chatTranscript) add(resp *ChatResponse) {
	if resp.Done {
		t.final = resp
		return
	}
	t.chunks++
	t.text.WriteString(resp.Response)
}

// HandleResetSession handles DELETE /api/agent/session.
func (h *Handler) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		errUnauthorized.write(w)
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())
	if err := h.agent.ResetSession(r.Context(), userID, sessionID); err != nil {
		slog.Error("Failed to reset session", "user_id", userID, "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reset session"})
		return
	}
	h.hub.reset(streamKey(userID, sessionID))
	h.hub.publish(&Event{Type: EventReset, UserID: userID, SessionID: sessionID})
	slog.Info("Session reset", "user_id", userID, "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// ForgetSession drops the event backlog of an expired tab session.
func (h *Handler) ForgetSession(userID, sessionID string) {
	h.hub.reset(streamKey(userID, sessionID))
}

func (h *Handler) logTurn(channel, userID, sessionID, eventType, content string, meta map[string]any) {
	direction := "inbound"
	if eventType == "chat_user_message" {
		direction = "outbound"
	}
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}

// Log forwards an event to the conversation logger.
func (h *Handler) Log(event ConversationLogEvent) {
	h.log.Log(event)
}

// Publish announces a finished turn to the event streams of the session.
func (h *Handler) Publish(userID, sessionID string, res *advisor.Result) {
	if res == nil {
		return
	}
	h.publishChunk(userID, sessionID, finalChunk(res))
}

func (h *Handler) publishChunk(userID, sessionID string, c *ChatResponse) {
	typ := EventTurn
	if c.Schedule != nil {
		typ = EventSchedule
	}
	h.hub.publish(&Event{
		Type:              typ,
		Department:        c.Department,
		Track:             c.Track,
		QueryType:         c.QueryType,
		Status:            c.Status,
		Schedule:          c.Schedule,
		ScheduleConflicts: c.ScheduleConflicts,
		UserID:            userID,
		SessionID:         sessionID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

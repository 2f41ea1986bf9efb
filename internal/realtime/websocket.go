package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mohamadbazzy/Agentic-Rag/internal/agent"
	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

const (
	maxMessageBytes = 16 << 10
	turnTimeout     = 2 * time.Minute
	writeTimeout    = 10 * time.Second
)

// Frame types.
const (
	frameReady   = "ready"
	frameMessage = "message"
	frameChunk   = "chunk"
	frameDone    = "done"
	frameReset   = "reset"
	framePing    = "ping"
	framePong    = "pong"
	frameError   = "error"
)

// wsMessage is a client frame. A frame that is not JSON is taken as the
// text of a message.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsReply is a server frame.
type wsReply struct {
	Type   string              `json:"type"`
	TurnID string              `json:"turn_id,omitempty"`
	Chunk  *agent.ChatResponse `json:"chunk,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// ChatHandler serves advising turns on /ws/chat.
type ChatHandler struct {
	repo   store.Repository
	agent  *agent.Service
	sm     *SessionManager
	log    agent.ConversationLogger
	accept *websocket.AcceptOptions
}

// NewChatHandler builds the handler. Outside development only
// allowedOrigin (and same-host pages) may connect; "*" or "" allows any.
// log may be nil.
func NewChatHandler(repo store.Repository, svc *agent.Service, sm *SessionManager, log agent.ConversationLogger, allowedOrigin string, isDev bool) *ChatHandler {
	if log == nil {
		log = discardLogger{}
	}
	opts := &websocket.AcceptOptions{}
	switch {
	case isDev || allowedOrigin == "" || allowedOrigin == "*":
		opts.InsecureSkipVerify = true
	default:
		if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
			opts.OriginPatterns = []string{u.Host}
		}
	}
	return &ChatHandler{repo: repo, agent: svc, sm: sm, log: log, accept: opts}
}

type discardLogger struct{}

func (discardLogger) Log(agent.ConversationLogEvent) {}
func (discardLogger) Close() error                   { return nil }

// chatConn is one accepted connection and the conversation it belongs to.
type chatConn struct {
	ws        *websocket.Conn
	userID    string
	sessionID string
}

func (c *chatConn) send(ctx context.Context, r wsReply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *chatConn) fail(ctx context.Context, turnID, msg string) error {
	return c.send(ctx, wsReply{Type: frameError, TurnID: turnID, Error: msg})
}

// ServeHTTP upgrades the request and serves frames until the peer leaves.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	ws, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		slog.Warn("WebSocket upgrade refused", "user_id", userID, "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	defer ws.CloseNow() //nolint:errcheck
	ws.SetReadLimit(maxMessageBytes)

	c := &chatConn{ws: ws, userID: userID, sessionID: sessionID}
	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)
	slog.Info("Chat connected", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	ctx := r.Context()
	if err := c.send(ctx, wsReply{Type: frameReady}); err != nil {
		return
	}
	err = h.serve(ctx, c)
	switch {
	case err == nil, ctx.Err() != nil, websocket.CloseStatus(err) != -1:
		slog.Info("Chat disconnected", "user_id", userID, "session_id", sessionID)
	default:
		slog.Warn("Chat connection failed", "user_id", userID, "session_id", sessionID, "error", err)
	}
	_ = ws.Close(websocket.StatusNormalClosure, "session ended")
}

// serve reads frames until the connection fails.
func (h *ChatHandler) serve(ctx context.Context, c *chatConn) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		var msg wsMessage
		if json.Unmarshal(data, &msg) != nil {
			msg = wsMessage{Type: frameMessage, Content: string(data)}
		}
		if err := h.dispatch(ctx, c, msg); err != nil {
			return err
		}
		go h.touch(c.userID)
	}
}

func (h *ChatHandler) dispatch(ctx context.Context, c *chatConn, msg wsMessage) error {
	switch msg.Type {
	case frameMessage:
		if strings.TrimSpace(msg.Content) == "" {
			return c.fail(ctx, "", "message is required")
		}
		return h.turn(ctx, c, msg.Content)
	case frameReset:
		if err := h.agent.ResetSession(ctx, c.userID, c.sessionID); err != nil {
			slog.Error("Failed to reset session", "user_id", c.userID, "session_id", c.sessionID, "error", err)
			return c.fail(ctx, "", "failed to reset session")
		}
		return c.send(ctx, wsReply{Type: frameReset})
	case framePing:
		return c.send(ctx, wsReply{Type: framePong})
	default:
		return c.fail(ctx, "", "unknown message type")
	}
}

func (h *ChatHandler) touch(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.repo.UpdateLastSeen(ctx, userID, time.Now()); err != nil {
		slog.Warn("Failed to update last seen", "user_id", userID, "error", err)
	}
}

// turn streams one answer as chunk frames and a final done frame. A failed
// turn is reported to the peer; only a broken connection returns an error.
func (h *ChatHandler) turn(ctx context.Context, c *chatConn, text string) error {
	turnID := uuid.NewString()
	req := agent.ChatRequest{Message: text, UserID: c.userID, SessionID: c.sessionID}
	h.record(c, turnID, "chat_user_message", text)

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	var answer strings.Builder
	for chunk, err := range h.agent.Chat(turnCtx, req) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Chat turn failed", "user_id", c.userID, "session_id", c.sessionID, "turn_id", turnID, "error", err)
			return c.fail(ctx, turnID, "failed to process message")
		}
		typ := frameChunk
		if chunk.Done {
			typ = frameDone
		} else {
			answer.WriteString(chunk.Response)
		}
		if err := c.send(ctx, wsReply{Type: typ, TurnID: turnID, Chunk: chunk}); err != nil {
			return err
		}
	}
	h.record(c, turnID, "chat_assistant_message", answer.String())
	return nil
}

func (h *ChatHandler) record(c *chatConn, turnID, eventType, content string) {
	direction := "inbound"
	if eventType == "chat_user_message" {
		direction = "outbound"
	}
	h.log.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     c.userID,
		SessionID:  c.sessionID,
		Channel:    "chat_ws",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       map[string]any{"turn_id": turnID},
	})
}

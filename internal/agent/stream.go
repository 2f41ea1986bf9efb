package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
)

const (
	backlogSize      = 100
	subscriberBuffer = 16

	// maxBackloggedConversations bounds how many conversations keep a
	// replay backlog. The least recently published one is evicted first.
	maxBackloggedConversations = 1000
	// backlogTTL is how long a conversation with no new events keeps its
	// backlog.
	backlogTTL = 30 * time.Minute
)

// sequenced is an event with its stream id.
type sequenced struct {
	ID    int64
	Event *Event
}

// backlog keeps the latest events per conversation so a reconnecting
// client can replay what it missed. It is not safe for concurrent use.
type backlog struct {
	size  int
	items *expirable.LRU[string, []sequenced]
}

func newBacklog(size, conversations int, ttl time.Duration) *backlog {
	if size <= 0 {
		size = backlogSize
	}
	if conversations <= 0 {
		conversations = maxBackloggedConversations
	}
	return &backlog{size: size, items: expirable.NewLRU[string, []sequenced](conversations, nil, ttl)}
}

func (b *backlog) add(key string, s sequenced) {
	q, _ := b.items.Get(key)
	q = append(q, s)
	if over := len(q) - b.size; over > 0 {
		q = append(q[:0:0], q[over:]...)
	}
	b.items.Add(key, q)
}

func (b *backlog) since(key string, after int64) []sequenced {
	q, _ := b.items.Peek(key)
	var out []sequenced
	for _, s := range q {
		if s.ID > after {
			out = append(out, s)
		}
	}
	return out
}

func (b *backlog) drop(key string) {
	b.items.Remove(key)
}

func (b *backlog) len() int {
	return b.items.Len()
}

type subscriber struct {
	id int64
	ch chan sequenced
}

// streamHub fans turn events out to the event streams of one conversation.
// Publishing never blocks: a subscriber that falls behind loses events.
// Events stay in the backlog after the last stream closes, until the
// conversation is reset, expires or is evicted, so a client reconnecting
// with Last-Event-ID in that window gets them back.
type streamHub struct {
	mu      sync.Mutex
	seq     int64
	nextSub int64
	subs    map[string]map[int64]*subscriber
	backlog *backlog
}

func newStreamHub(backlogLen int) *streamHub {
	return &streamHub{
		subs:    make(map[string]map[int64]*subscriber),
		backlog: newBacklog(backlogLen, maxBackloggedConversations, backlogTTL),
	}
}

func streamKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

func (h *streamHub) publish(ev *Event) int64 {
	key := streamKey(ev.UserID, ev.SessionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	s := sequenced{ID: h.seq, Event: ev}
	h.backlog.add(key, s)
	for _, sub := range h.subs[key] {
		select {
		case sub.ch <- s:
		default:
			slog.Warn("Event stream subscriber is behind, dropping event",
				"user_id", ev.UserID, "session_id", ev.SessionID, "event_id", s.ID)
		}
	}
	return s.ID
}

// subscribe registers a stream and returns the backlog after lastID.
// Registration and the backlog snapshot happen atomically, so every event
// is delivered exactly once, either replayed or through the channel.
func (h *streamHub) subscribe(key string, lastID int64) (*subscriber, []sequenced) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSub++
	sub := &subscriber{id: h.nextSub, ch: make(chan sequenced, subscriberBuffer)}
	if h.subs[key] == nil {
		h.subs[key] = make(map[int64]*subscriber)
	}
	h.subs[key][sub.id] = sub

	var missed []sequenced
	if lastID > 0 {
		missed = h.backlog.since(key, lastID)
	}
	return sub, missed
}

// unsubscribe removes sub. The backlog is kept for a later reconnect.
func (h *streamHub) unsubscribe(key string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[key], sub.id)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

// reset forgets the backlog of a conversation without closing its streams.
func (h *streamHub) reset(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backlog.drop(key)
}

// backlogged returns the number of conversations holding a backlog.
func (h *streamHub) backlogged() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backlog.len()
}

func lastEventID(r *http.Request) int64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// HandleStream handles GET /api/agent/stream, an event stream of turn
// results for the caller's conversation. Clients reconnecting with
// Last-Event-ID receive the events they missed.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", h.retryDelay().Milliseconds()); err != nil {
		return
	}
	flusher.Flush()

	key := streamKey(userID, sessionID)
	sub, missed := h.hub.subscribe(key, lastEventID(r))
	defer h.hub.unsubscribe(key, sub)
	slog.Info("Event stream opened", "user_id", userID, "session_id", sessionID, "replayed", len(missed))
	defer slog.Info("Event stream closed", "user_id", userID, "session_id", sessionID)

	send := func(s sequenced) error {
		data, err := json.Marshal(s.Event)
		if err != nil {
			return err
		}
		if err := writeSSEWithID(w, s.ID, s.Event.Type, string(data)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for _, s := range missed {
		if err := send(s); err != nil {
			slog.Warn("Failed to replay event", "user_id", userID, "event_id", s.ID, "error", err)
			return
		}
	}
	if err := writeSSE(w, "connected", fmt.Sprintf(`{"status":"connected","session_id":%q}`, sessionID)); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepaliveInterval())
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case s := <-sub.ch:
			if err := send(s); err != nil {
				slog.Warn("Failed to write event", "user_id", userID, "event_id", s.ID, "error", err)
				return
			}
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) retryDelay() time.Duration {
	if h.cfg != nil && h.cfg.SSE.RetryDelay > 0 {
		return h.cfg.SSE.RetryDelay
	}
	return 5 * time.Second
}

func (h *Handler) keepaliveInterval() time.Duration {
	if h.cfg != nil && h.cfg.SSE.KeepaliveInterval > 0 {
		return h.cfg.SSE.KeepaliveInterval
	}
	return 10 * time.Second
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/identity"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

// maxHistory bounds the persisted messages per session.
const maxHistory = 40

// sessionLocks serializes turns per session. Entries are dropped when the
// last holder releases them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &sessionLock{}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Service runs advising turns and persists per-session history.
type Service struct {
	advisor *Advisor
	repo    store.ConversationRepository
	metrics *metrics.Collector
	locks   *sessionLocks
}

// NewService creates a service. repo may be nil, in which case no history
// is kept.
func NewService(a *Advisor, repo store.ConversationRepository, m *metrics.Collector) *Service {
	return &Service{advisor: a, repo: repo, metrics: m, locks: newSessionLocks()}
}

// Process answers text. With a session id the turn is serialized against
// other turns of the same session, and history is loaded and saved.
func (s *Service) Process(ctx context.Context, text, sessionID string) (*Result, error) {
	start := time.Now()
	if sessionID == "" || s.repo == nil {
		res, err := s.run(ctx, &State{SessionID: sessionID, IsValid: true, Messages: []*schema.Message{schema.UserMessage(text)}})
		s.finish(res, start)
		return res, err
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.repo.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess == nil {
		sess = &domain.ConversationSession{SessionID: sessionID, CreatedAt: time.Now()}
	}
	if userID := identity.UserIDFromContext(ctx); userID != "" {
		sess.UserID = userID
	}
	stored, err := sess.Messages()
	if err != nil {
		slog.Warn("Discarding unreadable session history", "session_id", sessionID, "error", err)
		stored = nil
	}

	history := make([]*schema.Message, 0, len(stored)+1)
	for _, m := range stored {
		history = append(history, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}
	history = append(history, schema.UserMessage(text))

	state := &State{SessionID: sessionID, IsValid: true, Messages: history}
	res, err := s.run(ctx, state)
	if err != nil {
		return nil, err
	}

	sess.Department = res.Department
	sess.Track = res.Track
	sess.QueryType = res.QueryType
	if err := sess.SetMessages(toStored(state.Messages)); err != nil {
		return nil, err
	}
	if err := s.repo.UpsertConversation(ctx, sess); err != nil {
		slog.Error("Failed to save session", "session_id", sessionID, "error", err)
	}
	s.finish(res, start)
	return res, nil
}

// run executes the graph. Errors other than cancellation become an apology.
func (s *Service) run(ctx context.Context, state *State) (*Result, error) {
	out, err := s.advisor.Run(ctx, state)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Error("Advising turn failed", "session_id", state.SessionID, "error", err)
		state.Failed = true
		state.Err = err
		state.reply(ApologyMessage)
		return resultFrom(state), nil
	}
	return resultFrom(out), nil
}

func (s *Service) finish(res *Result, start time.Time) {
	if res == nil {
		return
	}
	s.metrics.RecordTurn(res.Status)
	slog.Debug("Turn finished", "department", res.Department, "status", res.Status, "duration", time.Since(start))
}

// ResetSession forgets the history of sessionID.
func (s *Service) ResetSession(ctx context.Context, sessionID string) error {
	if s.repo == nil || sessionID == "" {
		return nil
	}
	unlock := s.locks.lock(sessionID)
	defer unlock()
	return s.repo.DeleteConversation(ctx, sessionID)
}

// Close releases the advisor.
func (s *Service) Close() {
	s.advisor.Close()
}

func toStored(msgs []*schema.Message) []domain.StoredMessage {
	out := make([]domain.StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != schema.User && m.Role != schema.Assistant {
			continue
		}
		out = append(out, domain.StoredMessage{Role: string(m.Role), Content: m.Content})
	}
	if len(out) > maxHistory {
		out = out[len(out)-maxHistory:]
	}
	return out
}

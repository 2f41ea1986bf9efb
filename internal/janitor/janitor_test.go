package janitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.ConversationSession
	busy     int
	listErr  error
}

func newMemRepo(sessions ...*domain.ConversationSession) *memRepo {
	r := &memRepo{sessions: make(map[string]*domain.ConversationSession)}
	for _, s := range sessions {
		r.sessions[s.SessionID] = s
	}
	return r
}

func (r *memRepo) GetConversation(_ context.Context, id string) (*domain.ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id], nil
}

func (r *memRepo) UpsertConversation(_ context.Context, s *domain.ConversationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SessionID] = s
	return nil
}

func (r *memRepo) DeleteConversation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy > 0 {
		r.busy--
		return errors.New("database is locked")
	}
	delete(r.sessions, id)
	return nil
}

func (r *memRepo) ExpiredConversations(_ context.Context, ttl time.Duration) ([]*domain.ConversationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.ConversationSession
	for _, s := range r.sessions {
		if s.UpdatedAt.Before(time.Now().Add(-ttl)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func TestCleanupExpiredDeletesIdleConversations(t *testing.T) {
	repo := newMemRepo(
		&domain.ConversationSession{SessionID: "u1:old", UserID: "u1", UpdatedAt: time.Now().Add(-2 * time.Hour)},
		&domain.ConversationSession{SessionID: "u1:fresh", UserID: "u1", UpdatedAt: time.Now()},
	)
	repo.busy = 1

	var cleaned []string
	n := CleanupExpired(context.Background(), repo, time.Hour, func(sess *domain.ConversationSession) {
		cleaned = append(cleaned, sess.SessionID)
	})
	if n != 1 || len(cleaned) != 1 || cleaned[0] != "u1:old" {
		t.Fatalf("expected only the idle conversation to be cleaned, got %d %v", n, cleaned)
	}
	if s, _ := repo.GetConversation(context.Background(), "u1:fresh"); s == nil {
		t.Error("expected fresh conversation to remain")
	}
	if repo.len() != 1 {
		t.Errorf("expected 1 remaining conversation, got %d", repo.len())
	}
}

func TestCleanupExpiredListError(t *testing.T) {
	repo := newMemRepo()
	repo.listErr = errors.New("disk I/O error")
	if n := CleanupExpired(context.Background(), repo, time.Hour, nil); n != 0 {
		t.Errorf("expected nothing cleaned, got %d", n)
	}
}

func TestStartTTLWorkerSweeps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := newMemRepo(&domain.ConversationSession{SessionID: "u1:old", UserID: "u1", UpdatedAt: time.Now().Add(-2 * time.Hour)})

	done := make(chan string, 1)
	StartTTLWorker(ctx, repo, time.Hour, 10*time.Millisecond, func(sess *domain.ConversationSession) {
		done <- sess.SessionID
	})
	select {
	case id := <-done:
		if id != "u1:old" {
			t.Errorf("unexpected cleaned session %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not sweep")
	}
}

package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *user
	f.users[user.UserID] = &copy
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeRepo) Ping(_ context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) GetConversation(_ context.Context, _ string) (*domain.ConversationSession, error) {
	return nil, nil
}
func (f *fakeRepo) UpsertConversation(_ context.Context, _ *domain.ConversationSession) error {
	return nil
}
func (f *fakeRepo) DeleteConversation(_ context.Context, _ string) error { return nil }
func (f *fakeRepo) ExpiredConversations(_ context.Context, _ time.Duration) ([]*domain.ConversationSession, error) {
	return nil, nil
}

var errCalendarDown = errors.New("calendar down")

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

// Repository defines the interface for persisting users and conversations.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	ConversationRepository
}

// ConversationRepository persists advising history keyed by session.
type ConversationRepository interface {
	// GetConversation returns nil, nil when the session has no history.
	GetConversation(ctx context.Context, sessionID string) (*domain.ConversationSession, error)

	// UpsertConversation creates or replaces the stored history.
	UpsertConversation(ctx context.Context, session *domain.ConversationSession) error

	// DeleteConversation removes a session's history.
	DeleteConversation(ctx context.Context, sessionID string) error

	// ExpiredConversations lists sessions idle for longer than ttl.
	ExpiredConversations(ctx context.Context, ttl time.Duration) ([]*domain.ConversationSession, error)
}

// PassageRepository persists knowledge passages per namespace.
type PassageRepository interface {
	UpsertPassages(ctx context.Context, passages []domain.Passage) error
	GetPassages(ctx context.Context, namespace string, ids []string) ([]domain.Passage, error)
	LoadNamespace(ctx context.Context, namespace string) ([]domain.Passage, error)
	ListPassageIDs(ctx context.Context, namespace, prefix, after string, limit int) ([]string, error)
	DeletePassages(ctx context.Context, namespace string, ids []string) (int64, error)
	DeleteNamespace(ctx context.Context, namespace string) (int64, error)
	NamespaceCounts(ctx context.Context) (map[string]int, error)
}

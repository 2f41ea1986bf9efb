// Package janitor expires idle advising conversations.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/shared"
	"github.com/mohamadbazzy/Agentic-Rag/internal/store"
)

const (
	// DefaultInterval is how often the worker sweeps.
	DefaultInterval = 5 * time.Minute

	deleteAttempts  = 3
	deleteBaseDelay = 100 * time.Millisecond
)

// CleanupCallback is called for each conversation the worker removes.
type CleanupCallback func(session *domain.ConversationSession)

// StartTTLWorker runs a background goroutine that periodically deletes
// conversations idle for longer than ttl.
func StartTTLWorker(ctx context.Context, repo store.ConversationRepository, ttl, interval time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				CleanupExpired(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// CleanupExpired runs one sweep and returns the number of conversations
// deleted.
func CleanupExpired(ctx context.Context, repo store.ConversationRepository, ttl time.Duration, onCleanup CleanupCallback) int {
	expired, err := repo.ExpiredConversations(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to list expired conversations", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("TTL worker found expired conversations", "count", len(expired))

	cleaned := 0
	for _, sess := range expired {
		err := shared.RetryOnConflict(ctx, deleteAttempts, deleteBaseDelay, "delete_conversation", func() error {
			return repo.DeleteConversation(ctx, sess.SessionID)
		})
		if err != nil {
			if ctx.Err() != nil {
				return cleaned
			}
			slog.Warn("TTL worker failed to delete conversation after retries",
				"error", err,
				"session_id", sess.SessionID,
				"user_id", sess.UserID)
			continue
		}
		cleaned++
		if onCleanup != nil {
			onCleanup(sess)
		}
	}

	slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	return cleaned
}

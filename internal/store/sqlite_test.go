package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "advisor.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, "anon_missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil user, got %v, %v", got, err)
	}

	now := time.Now().Truncate(time.Second)
	if err := s.UpsertUser(ctx, &domain.User{UserID: "u1", Username: "anon-u1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	later := now.Add(time.Hour)
	if err := s.UpdateLastSeen(ctx, "u1", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}
	got, err = s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Fatalf("expected last seen %v, got %v", later, got.LastSeenAt)
	}
}

func TestConversationLastWriteWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.ConversationSession{SessionID: "sess-1", UserID: "u1", Department: "Mechanical Engineering (MECH)"}
	if err := first.SetMessages([]domain.StoredMessage{{Role: "user", Content: "hello"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertConversation(ctx, first); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	second := &domain.ConversationSession{SessionID: "sess-1", Department: "MSFEA Advisor"}
	if err := second.SetMessages([]domain.StoredMessage{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertConversation(ctx, second); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	got, err := s.GetConversation(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Department != "MSFEA Advisor" {
		t.Fatalf("expected last department, got %q", got.Department)
	}
	if got.UserID != "u1" {
		t.Fatalf("empty user id should keep the stored owner, got %q", got.UserID)
	}
	msgs, err := got.Messages()
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d (%v)", len(msgs), err)
	}

	if err := s.DeleteConversation(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	got, err = s.GetConversation(ctx, "sess-1")
	if err != nil || got != nil {
		t.Fatalf("expected deleted conversation, got %v, %v", got, err)
	}
}

func TestExpiredConversations(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertConversation(ctx, &domain.ConversationSession{SessionID: "fresh"}); err != nil {
		t.Fatal(err)
	}
	expired, err := s.ExpiredConversations(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ExpiredConversations failed: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("fresh session should not be expired, got %d", len(expired))
	}
	expired, err = s.ExpiredConversations(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("ExpiredConversations failed: %v", err)
	}
	if len(expired) != 1 || expired[0].SessionID != "fresh" {
		t.Fatalf("expected one expired session, got %v", expired)
	}
}

func TestPassagesAreNamespaceScoped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	passages := []domain.Passage{
		{ID: "a", Namespace: "mechanical_namespace", Content: "thermo", Source: "mech.txt",
			Metadata: map[string]any{"course_code": "MECH 310"}, Embedding: []float32{0.5, -1.25}},
		{ID: "b", Namespace: "mechanical_namespace", Content: "fluids", Source: "mech.txt"},
		{ID: "a", Namespace: "civil_namespace", Content: "concrete", Source: "civil.txt"},
	}
	if err := s.UpsertPassages(ctx, passages); err != nil {
		t.Fatalf("UpsertPassages failed: %v", err)
	}

	got, err := s.GetPassages(ctx, "mechanical_namespace", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("GetPassages failed: %v", err)
	}
	if len(got) != 1 || got[0].Content != "thermo" {
		t.Fatalf("unexpected passages %+v", got)
	}
	if got[0].Metadata["course_code"] != "MECH 310" {
		t.Fatalf("metadata not round-tripped: %v", got[0].Metadata)
	}
	if len(got[0].Embedding) != 2 || got[0].Embedding[1] != -1.25 {
		t.Fatalf("embedding not round-tripped: %v", got[0].Embedding)
	}

	ids, err := s.ListPassageIDs(ctx, "mechanical_namespace", "", "", 10)
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v (%v)", ids, err)
	}
	ids, err = s.ListPassageIDs(ctx, "mechanical_namespace", "", "a", 10)
	if err != nil || len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected paging after a, got %v (%v)", ids, err)
	}

	counts, err := s.NamespaceCounts(ctx)
	if err != nil {
		t.Fatalf("NamespaceCounts failed: %v", err)
	}
	if counts["mechanical_namespace"] != 2 || counts["civil_namespace"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	n, err := s.DeletePassages(ctx, "civil_namespace", []string{"a"})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got %d (%v)", n, err)
	}
	left, err := s.LoadNamespace(ctx, "mechanical_namespace")
	if err != nil || len(left) != 2 {
		t.Fatalf("deleting in civil must not touch mechanical, got %d (%v)", len(left), err)
	}
}

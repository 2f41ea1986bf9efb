package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps students, conversations and indexed passages in one
// SQLite file.
type SQLiteStore struct {
	db *sql.DB
	// convMu serializes conversation writes; concurrent writers on one
	// file otherwise surface as SQLITE_BUSY.
	convMu sync.Mutex
}

var (
	_ Repository        = (*SQLiteStore)(nil)
	_ PassageRepository = (*SQLiteStore)(nil)
)

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_last_seen ON users(last_seen_at)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		track TEXT NOT NULL DEFAULT '',
		query_type TEXT NOT NULL DEFAULT '',
		messages_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at)`,
	`CREATE TABLE IF NOT EXISTS passages (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		metadata_json TEXT NOT NULL DEFAULT '{}',
		embedding BLOB,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (namespace, id)
	)`,
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(path string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	return path + "?" + strings.Join(params, "&")
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser returns the student with userID, or nil when unknown.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var (
		u                          domain.User
		lastSeen, created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, last_seen_at, created_at, updated_at FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.UserID, &u.Username, &lastSeen, &created, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	u.LastSeenAt, u.CreatedAt, u.UpdatedAt = time.Unix(lastSeen, 0), time.Unix(created, 0), time.Unix(updated, 0)
	return &u, nil
}

// UpsertUser inserts u or refreshes its name and timestamps.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		u.UserID, u.Username, u.LastSeenAt.Unix(), u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.UserID, err)
	}
	return nil
}

// UpdateLastSeen records that userID was active at lastSeen.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`,
		lastSeen.Unix(), time.Now().Unix(), userID,
	)
	if err != nil {
		return fmt.Errorf("update last seen %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.Warn("Last seen update matched no student", "user_id", userID)
	}
	return nil
}

// GetConversation retrieves stored history for a session.
func (s *SQLiteStore) GetConversation(ctx context.Context, sessionID string) (*domain.ConversationSession, error) {
	query := `
		SELECT session_id, user_id, department, track, query_type,
		       messages_json, created_at, updated_at
		FROM conversations WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session domain.ConversationSession
	var createdAt, updatedAt int64
	err := row.Scan(
		&session.SessionID, &session.UserID, &session.Department, &session.Track,
		&session.QueryType, &session.MessagesJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// UpsertConversation creates or updates stored history. Last write wins.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, session *domain.ConversationSession) error {
	s.convMu.Lock()
	defer s.convMu.Unlock()

	query := `
		INSERT INTO conversations (
			session_id, user_id, department, track, query_type,
			messages_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = CASE WHEN excluded.user_id = '' THEN conversations.user_id ELSE excluded.user_id END,
			department = excluded.department,
			track = excluded.track,
			query_type = excluded.query_type,
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	messages := session.MessagesJSON
	if messages == "" {
		messages = "[]"
	}

	return shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "upsert_conversation", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.SessionID, session.UserID, session.Department, session.Track,
			session.QueryType, messages, createdAt.Unix(), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		return nil
	})
}

// DeleteConversation removes stored history.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY errors.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, sessionID string) error {
	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, "delete_conversation", func() error {
		s.convMu.Lock()
		defer s.convMu.Unlock()
		_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", sessionID, err)
	}
	return nil
}

// ExpiredConversations lists sessions not updated within ttl.
func (s *SQLiteStore) ExpiredConversations(ctx context.Context, ttl time.Duration) ([]*domain.ConversationSession, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT session_id, user_id, updated_at
		FROM conversations WHERE updated_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired conversations rows", "error", closeErr)
		}
	}()

	var sessions []*domain.ConversationSession
	for rows.Next() {
		var session domain.ConversationSession
		var updatedAt int64
		if err := rows.Scan(&session.SessionID, &session.UserID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan expired conversation row: %w", err)
		}
		session.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired conversations: %w", err)
	}
	return sessions, nil
}

// UpsertPassages stores passages, replacing any with the same namespace and id.
func (s *SQLiteStore) UpsertPassages(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	return shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "upsert_passages", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin passage tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO passages (namespace, id, content, source, metadata_json, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(namespace, id) DO UPDATE SET
				content = excluded.content,
				source = excluded.source,
				metadata_json = excluded.metadata_json,
				embedding = excluded.embedding`)
		if err != nil {
			return fmt.Errorf("prepare passage upsert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().Unix()
		for _, p := range passages {
			meta, err := json.Marshal(p.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s/%s: %w", p.Namespace, p.ID, err)
			}
			if _, err := stmt.ExecContext(ctx,
				p.Namespace, p.ID, p.Content, p.Source, string(meta), encodeVector(p.Embedding), now,
			); err != nil {
				return fmt.Errorf("upsert passage %s/%s: %w", p.Namespace, p.ID, err)
			}
		}
		return tx.Commit()
	})
}

// GetPassages fetches passages by id within one namespace. Missing ids are skipped.
func (s *SQLiteStore) GetPassages(ctx context.Context, namespace string, ids []string) ([]domain.Passage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT namespace, id, content, source, metadata_json, embedding, created_at
		FROM passages WHERE namespace = ? AND id IN (` + placeholders(len(ids)) + `)`
	return s.queryPassages(ctx, query, args...)
}

// LoadNamespace returns every passage in a namespace.
func (s *SQLiteStore) LoadNamespace(ctx context.Context, namespace string) ([]domain.Passage, error) {
	query := `SELECT namespace, id, content, source, metadata_json, embedding, created_at
		FROM passages WHERE namespace = ? ORDER BY id`
	return s.queryPassages(ctx, query, namespace)
}

// ListPassageIDs pages through ids in a namespace in lexical order.
func (s *SQLiteStore) ListPassageIDs(ctx context.Context, namespace, prefix, after string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id FROM passages WHERE namespace = ? AND id > ?`
	args := []any{namespace, after}
	if prefix != "" {
		query += ` AND substr(id, 1, ?) = ?`
		args = append(args, len(prefix), prefix)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list passage ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan passage id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeletePassages removes passages by id within one namespace.
func (s *SQLiteStore) DeletePassages(ctx context.Context, namespace string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, namespace)
	for _, id := range ids {
		args = append(args, id)
	}
	var affected int64
	err := shared.RetryOnConflict(ctx, 3, 50*time.Millisecond, "delete_passages", func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM passages WHERE namespace = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete passages in %s: %w", namespace, err)
	}
	return affected, nil
}

// DeleteNamespace removes every passage in a namespace.
func (s *SQLiteStore) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return res.RowsAffected()
}

// NamespaceCounts returns the number of passages per namespace.
func (s *SQLiteStore) NamespaceCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace, COUNT(*) FROM passages GROUP BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("count passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var ns string
		var n int
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, fmt.Errorf("scan namespace count: %w", err)
		}
		counts[ns] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) queryPassages(ctx context.Context, query string, args ...any) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Passage
	for rows.Next() {
		var p domain.Passage
		var meta string
		var blob []byte
		var createdAt int64
		if err := rows.Scan(&p.Namespace, &p.ID, &p.Content, &p.Source, &meta, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s/%s: %w", p.Namespace, p.ID, err)
			}
		}
		p.Embedding = decodeVector(blob)
		p.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

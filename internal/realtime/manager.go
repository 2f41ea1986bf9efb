// Package realtime serves advising chat over WebSocket.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

type connKey struct {
	userID    string
	sessionID string
}

// SessionManager keeps at most one live chat connection per user and tab
// session. A newer connection evicts the older one.
type SessionManager struct {
	mu    sync.RWMutex
	conns map[connKey]*websocket.Conn
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{conns: make(map[connKey]*websocket.Conn)}
}

// GetActive returns the live connection of userID/sessionID, or nil.
func (m *SessionManager) GetActive(userID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conns[connKey{userID, sessionID}]
}

// Register makes conn the live connection of userID/sessionID. The
// connection it replaces is closed in the background: a close handshake
// waits on the old reader, which may be the caller's own goroutine.
func (m *SessionManager) Register(userID, sessionID string, conn *websocket.Conn) {
	k := connKey{userID, sessionID}
	m.mu.Lock()
	prev := m.conns[k]
	m.conns[k] = conn
	m.mu.Unlock()

	if prev != nil && prev != conn {
		go closeConn(prev, websocket.StatusPolicyViolation, "session replaced")
	}
	slog.Info("Chat session registered", "user_id", userID, "session_id", sessionID, "replaced", prev != nil && prev != conn)
}

// Unregister forgets conn. It is a no-op when conn was already replaced.
func (m *SessionManager) Unregister(userID, sessionID string, conn *websocket.Conn) {
	k := connKey{userID, sessionID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[k] != conn {
		return
	}
	delete(m.conns, k)
	slog.Info("Chat session unregistered", "user_id", userID, "session_id", sessionID)
}

// CloseSession closes the live connection of userID/sessionID and reports
// whether there was one.
func (m *SessionManager) CloseSession(userID, sessionID string) bool {
	k := connKey{userID, sessionID}
	m.mu.Lock()
	conn, ok := m.conns[k]
	delete(m.conns, k)
	m.mu.Unlock()
	if !ok {
		return false
	}
	go closeConn(conn, websocket.StatusGoingAway, "session expired")
	slog.Info("Chat session closed", "user_id", userID, "session_id", sessionID)
	return true
}

// Count returns the number of live connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func closeConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	if err := conn.Close(code, reason); err != nil {
		slog.Debug("Chat connection close", "reason", reason, "error", err)
	}
}

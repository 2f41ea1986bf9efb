// Package agent exposes the advisor over HTTP: a streaming chat endpoint, a
// plain JSON query endpoint and an event stream of turn results.
package agent

import (
	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
)

// ChatRequest represents a chat request to the advisor.
type ChatRequest struct {
	Message   string `json:"message" validate:"required,max=4000"`
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Text      string `json:"text" validate:"required,max=4000"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// ChatResponse is one streamed chunk. The final chunk has Done set and
// carries the routing metadata of the turn.
type ChatResponse struct {
	Response          string                      `json:"response"`
	Done              bool                        `json:"done,omitempty"`
	Department        string                      `json:"department,omitempty"`
	Track             string                      `json:"track,omitempty"`
	QueryType         string                      `json:"query_type,omitempty"`
	Status            string                      `json:"status,omitempty"`
	Schedule          *domain.StructuredSchedule  `json:"schedule,omitempty"`
	ScheduleConflicts []calendar.InternalConflict `json:"schedule_conflicts,omitempty"`
	Sources           []string                    `json:"sources,omitempty"`
}

// Config holds streaming configuration.
type Config struct {
	// ChunkWords is the number of words sent per streamed chunk.
	ChunkWords int
}

// DefaultConfig returns default streaming configuration.
func DefaultConfig() Config {
	return Config{ChunkWords: 12}
}

// Event is a turn result published to the event stream of a session.
type Event struct {
	Type              string                      `json:"type"`
	Department        string                      `json:"department,omitempty"`
	Track             string                      `json:"track,omitempty"`
	QueryType         string                      `json:"query_type,omitempty"`
	Status            string                      `json:"status,omitempty"`
	Schedule          *domain.StructuredSchedule  `json:"schedule,omitempty"`
	ScheduleConflicts []calendar.InternalConflict `json:"schedule_conflicts,omitempty"`
	UserID            string                      `json:"-"`
	SessionID         string                      `json:"-"`
}

// Event types.
const (
	EventTurn     = "turn"
	EventSchedule = "schedule"
	EventReset    = "reset"
)

func sourcesOf(passages []knowledge.Passage) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range passages {
		if p.Source == "" || seen[p.Source] {
			continue
		}
		seen[p.Source] = true
		out = append(out, p.Source)
	}
	return out
}

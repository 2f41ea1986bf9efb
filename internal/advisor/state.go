package advisor

import (
	"github.com/cloudwego/eino/schema"

	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
)

// Turn statuses reported in a Result.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// State is threaded through every stage of one turn.
type State struct {
	SessionID string
	Messages  []*schema.Message

	IsValid         bool
	Department      Department
	DepartmentLabel string
	Track           Track
	QueryType       QueryType

	Context   []knowledge.Passage
	Forwarded []knowledge.Passage

	Schedule          *domain.StructuredSchedule
	ScheduleConflicts []calendar.InternalConflict

	// Failed is set when a stage could not produce an answer.
	Failed    bool
	FailStage Stage
	Err       error

	outcome Outcome
}

// LastUserText returns the newest user message, or "".
func (s *State) LastUserText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == schema.User {
			return s.Messages[i].Content
		}
	}
	return ""
}

func (s *State) reply(text string) {
	s.Messages = append(s.Messages, schema.AssistantMessage(text, nil))
}

// Result is what a caller gets back from one processed turn.
type Result struct {
	Content           string                      `json:"content"`
	Department        string                      `json:"department"`
	Track             string                      `json:"track,omitempty"`
	QueryType         string                      `json:"query_type,omitempty"`
	Status            string                      `json:"status"`
	Schedule          *domain.StructuredSchedule  `json:"schedule,omitempty"`
	ScheduleConflicts []calendar.InternalConflict `json:"schedule_conflicts,omitempty"`
	Context           []knowledge.Passage         `json:"context"`

	// Err is the internal failure behind an "error" status. It is never
	// serialized.
	Err error `json:"-"`
}

func resultFrom(s *State) *Result {
	r := &Result{
		Department: s.Department.Label(),
		QueryType:  string(s.QueryType),
		Status:     StatusSuccess,
		Schedule:   s.Schedule,
		Context:    s.Context,
		Err:        s.Err,
	}
	if r.Context == nil {
		r.Context = []knowledge.Passage{}
	}
	if s.Department == DeptECE {
		r.Track = s.Track.String()
	}
	r.ScheduleConflicts = s.ScheduleConflicts
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == schema.Assistant {
		r.Content = s.Messages[n-1].Content
	}
	switch {
	case s.Failed:
		r.Status = StatusError
	case !s.IsValid:
		r.Status = StatusRejected
	}
	return r
}

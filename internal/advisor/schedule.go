package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/retriever"

	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
)

var (
	// ErrMalformedSchedule is returned when an answer carries a schedule
	// block that does not decode or validate.
	ErrMalformedSchedule = errors.New("malformed schedule json")
	// ErrNoSchedule is returned when an answer carries no schedule block.
	ErrNoSchedule = errors.New("no schedule in answer")
)

const scheduleTopK = 15

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z]*[ \\t]*\\n?(.*?)```")

// ExtractSchedule pulls the fenced JSON schedule out of a generated answer.
// The first fence whose body opens an object is taken as the schedule, so
// a truncated object is reported as malformed rather than missing.
func ExtractSchedule(answer string) (*domain.StructuredSchedule, error) {
	var body string
	for _, m := range fencedBlock.FindAllStringSubmatch(answer, -1) {
		if b := strings.TrimSpace(m[1]); strings.HasPrefix(b, "{") {
			body = b
			break
		}
	}
	if body == "" {
		return nil, ErrNoSchedule
	}
	var s domain.StructuredSchedule
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}
	if !s.IsSchedule {
		return nil, ErrNoSchedule
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSchedule, err)
	}
	return &s, nil
}

// ParseCourseList splits a comma or newline separated model answer into
// upper-cased, de-duplicated course names.
func ParseCourseList(answer string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	}) {
		tok = strings.ToUpper(strings.Join(strings.Fields(strings.Trim(tok, " \t\"'`-*.")), " "))
		if tok == "" || tok == "NONE" || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func (a *Advisor) catalogSections(ctx context.Context, s *State, names []string) string {
	if a.catalog == nil || len(names) == 0 {
		return noCatalogNote
	}
	cat, err := a.catalog.Load(ctx)
	if err != nil {
		slog.Warn("Catalog unavailable", "stage", StageSchedule, "path", a.catalog.Path(), "session_id", s.SessionID, "error", err)
		return noCatalogNote
	}
	matches := cat.Match(names)
	if len(matches) == 0 {
		return noCatalogNote
	}
	return catalog.Format(matches)
}

func (a *Advisor) schedule(ctx context.Context, s *State) (Outcome, error) {
	s.Department = DeptSchedule
	msg := s.LastUserText()

	raw, err := a.classify(ctx, s, "courses", extractCoursesPrompt)
	if err != nil {
		return a.fail(ctx, s, StageSchedule, scheduleAgent, err, OutcomeDone)
	}
	names := ParseCourseList(raw)
	sections := a.catalogSections(ctx, s, names)

	query := fmt.Sprintf("Course Scheduling: %s - %s", s.QueryType, msg)
	passages, err := a.search(ctx, s, StageSchedule, scheduleAgent, query, retriever.WithTopK(scheduleTopK))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		passages = []knowledge.Passage{knowledge.FallbackPassage("Basic information about course scheduling at AUB.", "error_fallback")}
	}
	s.Context = passages

	system := fmt.Sprintf(scheduleSystemPrompt, msg, s.QueryType, sections, knowledge.JoinContent(passages))
	outcome, err := a.answer(ctx, s, StageSchedule, scheduleAgent, system)
	if err != nil || s.Failed {
		return outcome, err
	}

	answer := s.Messages[len(s.Messages)-1].Content
	sched, err := ExtractSchedule(answer)
	switch {
	case errors.Is(err, ErrNoSchedule):
	case err != nil:
		slog.Warn("Ignoring schedule block", "session_id", s.SessionID, "error", err)
	default:
		s.Schedule = sched
		s.ScheduleConflicts = calendar.InternalConflicts(sched)
		if len(s.ScheduleConflicts) > 0 {
			slog.Warn("Proposed schedule overlaps", "session_id", s.SessionID, "conflicts", len(s.ScheduleConflicts))
		}
	}
	slog.Info("Schedule answered", "session_id", s.SessionID, "courses", strings.Join(names, ","), "structured", s.Schedule != nil)
	return outcome, nil
}

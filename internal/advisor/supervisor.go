package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/retriever"

	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
)

const supervisorFallback = "General information about academic programs at AUB's Maroun Semaan Faculty of Engineering and Architecture (MSFEA)."

// parseVerdict clamps the validation answer. Only an explicit INVALID
// rejects.
func parseVerdict(answer string) bool {
	return !strings.Contains(strings.ToUpper(answer), "INVALID")
}

func (a *Advisor) supervise(ctx context.Context, s *State) (Outcome, error) {
	msg := s.LastUserText()
	if strings.TrimSpace(msg) == "" {
		s.IsValid = false
		s.Department = DeptInvalid
		a.metrics.RecordRoute(s.Department.Label())
		return OutcomeInvalid, nil
	}

	verdict, err := a.classify(ctx, s, "validate", validationPrompt)
	if err != nil {
		return a.fail(ctx, s, StageSupervisor, supervisorAgent, err, OutcomeFailed)
	}
	s.IsValid = parseVerdict(verdict)
	if !s.IsValid {
		s.Department = DeptInvalid
		slog.Info("Question rejected", "session_id", s.SessionID)
		a.metrics.RecordRoute(s.Department.Label())
		return OutcomeInvalid, nil
	}

	label, err := a.classify(ctx, s, "department", departmentPrompt)
	if err != nil {
		return a.fail(ctx, s, StageSupervisor, supervisorAgent, err, OutcomeFailed)
	}
	s.DepartmentLabel = label
	s.Department = RouteDepartment(true, label)

	qt, err := a.classify(ctx, s, "query_type", queryTypePrompt)
	if err != nil {
		return a.fail(ctx, s, StageSupervisor, supervisorAgent, err, OutcomeFailed)
	}
	s.QueryType = ParseQueryType(qt)

	query := fmt.Sprintf("%s department %s %s", label, s.QueryType, msg)
	passages, err := a.search(ctx, s, StageSupervisor, supervisorAgent, query, retriever.WithTopK(supervisorTopK))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		passages = []knowledge.Passage{knowledge.FallbackPassage(supervisorFallback, "error_fallback")}
	}
	s.Context = passages

	slog.Info("Question routed",
		"session_id", s.SessionID,
		"department", s.Department.Label(),
		"label", label,
		"query_type", s.QueryType,
		"passages", len(passages),
	)
	a.metrics.RecordRoute(s.Department.Label())
	return outcomeForDepartment(s.Department), nil
}

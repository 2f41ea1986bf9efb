package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/cloudwego/eino/components/retriever"

	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
)

const (
	responderTopK = 3
	lookupLimit   = 5
)

const industrialProgram = `The Industrial Engineering Program extends over a four-year period and is offered
exclusively on a daytime, on-campus basis. The program is offered in eleven terms
whereby eight terms are 16-week Fall/Spring semesters given over four years, and three
terms are eight-week summer terms taken during the first three years of the program.
In the summer term of the third year (Term IX), students are required to participate in a
practical training program with a local, regional or international organization. The entire
program is equivalent to five academic years but is completed in four calendar years
with three summer terms.`

var courseCodePattern = regexp.MustCompile(`[A-Z]{2,5}\s*\d{3}`)

func basicInfo(p profile) knowledge.Passage {
	return knowledge.FallbackPassage(fmt.Sprintf("Basic information about %s at AUB's MSFEA faculty.", p.name), "error_fallback")
}

// department answers from the supervisor context, topping it up from the
// responder's own namespace when the supervisor found nothing.
func (a *Advisor) department(stage Stage, dept Department) stageFunc {
	p := profiles[stage]
	return func(ctx context.Context, s *State) (Outcome, error) {
		s.Department = dept
		if len(s.Context) == 0 {
			query := fmt.Sprintf("%s: %s - %s", p.scope, s.QueryType, s.LastUserText())
			passages, err := a.search(ctx, s, stage, p.agentID, query, retriever.WithTopK(responderTopK))
			switch {
			case ctx.Err() != nil:
				return "", ctx.Err()
			case err != nil || len(passages) == 0:
				s.Context = []knowledge.Passage{basicInfo(p)}
			default:
				s.Context = passages
			}
		}
		return a.answer(ctx, s, stage, p.agentID, p.systemPrompt(s.QueryType, knowledge.JoinContent(s.Context)))
	}
}

// industrial always searches its own namespace, restricted to industrial
// documents.
func (a *Advisor) industrial(ctx context.Context, s *State) (Outcome, error) {
	p := profiles[StageIndustrial]
	s.Department = DeptIndustrial

	query := fmt.Sprintf("Industrial Engineering: %s - %s", s.QueryType, s.LastUserText())
	passages, err := a.search(ctx, s, StageIndustrial, p.agentID, query,
		retriever.WithTopK(responderTopK),
		retriever.WithDSLInfo(map[string]any{knowledge.MetaDepartment: "industrial"}),
	)
	switch {
	case ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		passages = []knowledge.Passage{knowledge.FallbackPassage(
			"Basic information about Industrial Engineering at AUB's MSFEA faculty.", "error_fallback")}
	case len(passages) == 0:
		slog.Warn("No industrial documents found, using program description", "session_id", s.SessionID)
		passages = []knowledge.Passage{knowledge.FallbackPassage(industrialProgram, "fallback_info")}
	}
	s.Context = passages
	return a.answer(ctx, s, StageIndustrial, p.agentID, p.systemPrompt(s.QueryType, knowledge.JoinContent(passages)))
}

// ece picks the track and forwards documents found for an explicit course
// code so the track responder does not search again.
func (a *Advisor) ece(ctx context.Context, s *State) (Outcome, error) {
	s.Department = DeptECE
	label, err := a.classify(ctx, s, "track", trackPrompt)
	if err != nil {
		return a.fail(ctx, s, StageECE, eceAgent, err, OutcomeFailed)
	}
	s.Track = RouteTrack(label)

	msg := s.LastUserText()
	if code := courseCodePattern.FindString(msg); code != "" {
		r := a.retrievers.Get(eceAgent)
		docs, err := r.LookupExact(ctx, "", knowledge.MetaCourseCode, code, lookupLimit)
		if err == nil && len(docs) == 0 {
			docs, err = r.Retrieve(ctx, msg, retriever.WithTopK(responderTopK))
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("Course lookup failed", "stage", StageECE, "agent_id", eceAgent, "course_code", code, "error", err)
		} else {
			s.Forwarded = knowledge.FromDocuments(docs)
		}
		slog.Debug("Course lookup", "course_code", code, "forwarded", len(s.Forwarded))
	}
	return outcomeForTrack(s.Track), nil
}

// track answers for one ECE track. Forwarded documents take precedence;
// otherwise the track searches its namespace and finally reuses the
// supervisor context.
func (a *Advisor) track(stage Stage) stageFunc {
	p := profiles[stage]
	return func(ctx context.Context, s *State) (Outcome, error) {
		passages := s.Forwarded
		if len(passages) == 0 {
			query := fmt.Sprintf("%s: %s - %s", p.scope, s.QueryType, s.LastUserText())
			found, err := a.search(ctx, s, stage, p.agentID, query, retriever.WithTopK(responderTopK))
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if err == nil && len(found) > 0 {
				passages = found
			} else {
				passages = s.Context
			}
		}
		if len(passages) == 0 {
			passages = []knowledge.Passage{basicInfo(p)}
		}
		s.Context = passages
		return a.answer(ctx, s, stage, p.agentID, p.systemPrompt(s.QueryType, knowledge.JoinContent(passages)))
	}
}

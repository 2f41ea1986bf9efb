// Package advisor routes student questions through a fixed graph of
// supervisor, department, track and schedule stages.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
	"github.com/mohamadbazzy/Agentic-Rag/internal/knowledge"
	"github.com/mohamadbazzy/Agentic-Rag/internal/llm"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

// ErrGeneration wraps every failed LLM call.
var ErrGeneration = errors.New("generation failed")

// Supervisor retrieval depth.
const supervisorTopK = 3

const (
	supervisorAgent = "supervisor"
	eceAgent        = "ece"
	scheduleAgent   = "schedule_maker"
)

// Config wires an Advisor.
type Config struct {
	Chat model.BaseChatModel
	// Classifier answers the short labelling prompts. Defaults to Chat.
	Classifier         model.BaseChatModel
	Retrievers         *knowledge.RetrieverCache
	Catalog            *catalog.Loader
	Metrics            *metrics.Collector
	ClassifierCacheTTL time.Duration
}

// Advisor owns the compiled stage graph.
type Advisor struct {
	chat       model.BaseChatModel
	classifier model.BaseChatModel
	retrievers *knowledge.RetrieverCache
	catalog    *catalog.Loader
	metrics    *metrics.Collector
	cache      *classifierCache
	graph      compose.Runnable[*State, *State]
}

// New compiles the advising graph. It fails when the transition table is
// inconsistent.
func New(ctx context.Context, cfg Config) (*Advisor, error) {
	if cfg.Chat == nil {
		return nil, errors.New("advisor: chat model is required")
	}
	if cfg.Retrievers == nil {
		return nil, errors.New("advisor: retriever cache is required")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = cfg.Chat
	}
	cache, err := newClassifierCache(cfg.ClassifierCacheTTL, cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("advisor: classifier cache: %w", err)
	}

	a := &Advisor{
		chat:       cfg.Chat,
		classifier: cfg.Classifier,
		retrievers: cfg.Retrievers,
		catalog:    cfg.Catalog,
		metrics:    cfg.Metrics,
		cache:      cache,
	}
	graph, err := advisingFlow().compile(ctx, a.stages())
	if err != nil {
		cache.close()
		return nil, fmt.Errorf("advisor: compile graph: %w", err)
	}
	a.graph = graph
	return a, nil
}

// Close releases the classifier cache.
func (a *Advisor) Close() {
	a.cache.close()
}

func (a *Advisor) stages() map[Stage]stageFunc {
	return map[Stage]stageFunc{
		StageSupervisor:     a.supervise,
		StageReject:         a.reject,
		StageChemical:       a.department(StageChemical, DeptChemical),
		StageMechanical:     a.department(StageMechanical, DeptMechanical),
		StageCivil:          a.department(StageCivil, DeptCivil),
		StageGeneral:        a.department(StageGeneral, DeptGeneral),
		StageIndustrial:     a.industrial,
		StageECE:            a.ece,
		StageSystems:        a.track(StageSystems),
		StageCommunications: a.track(StageCommunications),
		StageECETrack:       a.track(StageECETrack),
		StageSchedule:       a.schedule,
	}
}

// Run executes one turn over s. The latest user message must already be
// appended to s.Messages.
func (a *Advisor) Run(ctx context.Context, s *State) (*State, error) {
	out, err := a.graph.Invoke(ctx, s)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Advisor) callOptions(s *State) []model.Option {
	if s.SessionID == "" {
		return nil
	}
	return []model.Option{llm.WithSessionHint(s.SessionID)}
}

func (a *Advisor) generate(ctx context.Context, m model.BaseChatModel, s *State, msgs []*schema.Message) (string, error) {
	out, err := m.Generate(ctx, msgs, a.callOptions(s)...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if out == nil {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return strings.TrimSpace(out.Content), nil
}

// classify asks the classifier model a labelling prompt about the latest
// user message, consulting the cache first.
func (a *Advisor) classify(ctx context.Context, s *State, kind, prompt string) (string, error) {
	msg := s.LastUserText()
	if label, ok := a.cache.get(kind, msg); ok {
		return label, nil
	}
	label, err := a.generate(ctx, a.classifier, s, []*schema.Message{
		schema.UserMessage(fmt.Sprintf(prompt, msg)),
	})
	if err != nil {
		return "", err
	}
	if label != "" {
		a.cache.set(kind, msg, label)
	}
	return label, nil
}

// search retrieves passages for agentID. Failures are logged and counted as
// a fallback; the caller decides what to substitute.
func (a *Advisor) search(ctx context.Context, s *State, stage Stage, agentID, query string, opts ...retriever.Option) ([]knowledge.Passage, error) {
	docs, err := a.retrievers.Get(agentID).Retrieve(ctx, query, opts...)
	if err != nil {
		slog.Warn("Retrieval failed, using fallback context",
			"stage", stage, "agent_id", agentID, "session_id", s.SessionID, "error", err)
		a.metrics.RecordRetrieval(agentID, "fallback")
		return nil, err
	}
	return knowledge.FromDocuments(docs), nil
}

// fail ends the turn with an apology. Context cancellation is returned as
// an error instead so the graph stops.
func (a *Advisor) fail(ctx context.Context, s *State, stage Stage, agentID string, err error, outcome Outcome) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	slog.Error("Stage failed", "stage", stage, "agent_id", agentID, "session_id", s.SessionID, "error", err)
	s.Failed = true
	s.FailStage = stage
	s.Err = err
	s.reply(ApologyMessage)
	return outcome, nil
}

// answer prepends system to the conversation and appends the model reply.
func (a *Advisor) answer(ctx context.Context, s *State, stage Stage, agentID, system string) (Outcome, error) {
	msgs := make([]*schema.Message, 0, len(s.Messages)+1)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, s.Messages...)
	text, err := a.generate(ctx, a.chat, s, msgs)
	if err != nil {
		return a.fail(ctx, s, stage, agentID, err, OutcomeDone)
	}
	s.reply(text)
	return OutcomeDone, nil
}

func (a *Advisor) reject(_ context.Context, s *State) (Outcome, error) {
	s.IsValid = false
	s.Department = DeptInvalid
	s.reply(RejectionMessage)
	return OutcomeDone, nil
}

package advisor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudwego/eino/compose"
)

// Stage is a node of the advising graph.
type Stage string

const (
	StageSupervisor     Stage = "supervisor"
	StageReject         Stage = "reject"
	StageChemical       Stage = "chemical"
	StageMechanical     Stage = "mechanical"
	StageCivil          Stage = "civil"
	StageIndustrial     Stage = "industrial"
	StageGeneral        Stage = "msfea_advisor"
	StageECE            Stage = "ece"
	StageSystems        Stage = "cse"
	StageCommunications Stage = "cce"
	StageECETrack       Stage = "ece_track"
	StageSchedule       Stage = "schedule_helper"
	StageEnd            Stage = compose.END
)

// Outcome is what a stage reports when it finishes.
type Outcome string

const (
	OutcomeDone           Outcome = "done"
	OutcomeFailed         Outcome = "failed"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeChemical       Outcome = "chemical"
	OutcomeMechanical     Outcome = "mechanical"
	OutcomeCivil          Outcome = "civil"
	OutcomeIndustrial     Outcome = "industrial"
	OutcomeGeneral        Outcome = "general"
	OutcomeECE            Outcome = "ece"
	OutcomeSchedule       Outcome = "schedule"
	OutcomeSystems        Outcome = "systems"
	OutcomeCommunications Outcome = "communications"
	OutcomeGeneralTrack   Outcome = "general_track"
)

// ErrTransitionTable is returned when the transition table is incomplete or
// points at an unknown stage.
var ErrTransitionTable = errors.New("invalid transition table")

type transition struct {
	from    Stage
	outcome Outcome
}

// stageFunc runs one stage and reports its outcome.
type stageFunc func(ctx context.Context, s *State) (Outcome, error)

// flow is a fixed topology: which outcomes every stage may emit and where
// each (stage, outcome) pair leads.
type flow struct {
	emits map[Stage][]Outcome
	next  map[transition]Stage
}

func outcomeForDepartment(d Department) Outcome {
	switch d {
	case DeptInvalid:
		return OutcomeInvalid
	case DeptChemical:
		return OutcomeChemical
	case DeptMechanical:
		return OutcomeMechanical
	case DeptCivil:
		return OutcomeCivil
	case DeptIndustrial:
		return OutcomeIndustrial
	case DeptECE:
		return OutcomeECE
	case DeptSchedule:
		return OutcomeSchedule
	default:
		return OutcomeGeneral
	}
}

func outcomeForTrack(t Track) Outcome {
	switch t {
	case TrackSystems:
		return OutcomeSystems
	case TrackCommunications:
		return OutcomeCommunications
	default:
		return OutcomeGeneralTrack
	}
}

func advisingFlow() flow {
	responders := []Stage{
		StageReject, StageChemical, StageMechanical, StageCivil, StageIndustrial,
		StageGeneral, StageSystems, StageCommunications, StageECETrack, StageSchedule,
	}
	f := flow{
		emits: map[Stage][]Outcome{
			StageSupervisor: {
				OutcomeInvalid, OutcomeChemical, OutcomeMechanical, OutcomeCivil, OutcomeIndustrial,
				OutcomeGeneral, OutcomeECE, OutcomeSchedule, OutcomeFailed,
			},
			StageECE: {OutcomeSystems, OutcomeCommunications, OutcomeGeneralTrack, OutcomeFailed},
		},
		next: map[transition]Stage{
			{StageSupervisor, OutcomeInvalid}:    StageReject,
			{StageSupervisor, OutcomeChemical}:   StageChemical,
			{StageSupervisor, OutcomeMechanical}: StageMechanical,
			{StageSupervisor, OutcomeCivil}:      StageCivil,
			{StageSupervisor, OutcomeIndustrial}: StageIndustrial,
			{StageSupervisor, OutcomeGeneral}:    StageGeneral,
			{StageSupervisor, OutcomeECE}:        StageECE,
			{StageSupervisor, OutcomeSchedule}:   StageSchedule,
			{StageSupervisor, OutcomeFailed}:     StageEnd,

			{StageECE, OutcomeSystems}:        StageSystems,
			{StageECE, OutcomeCommunications}: StageCommunications,
			{StageECE, OutcomeGeneralTrack}:   StageECETrack,
			{StageECE, OutcomeFailed}:         StageEnd,
		},
	}
	for _, r := range responders {
		f.emits[r] = []Outcome{OutcomeDone}
		f.next[transition{r, OutcomeDone}] = StageEnd
	}
	return f
}

// validate checks that every emitted outcome has a transition, that no
// transition is dead, and that every target is a known stage.
func (f flow) validate() error {
	for stage, outcomes := range f.emits {
		for _, o := range outcomes {
			to, ok := f.next[transition{stage, o}]
			if !ok {
				return fmt.Errorf("%w: %s has no transition for outcome %q", ErrTransitionTable, stage, o)
			}
			if _, known := f.emits[to]; !known && to != StageEnd {
				return fmt.Errorf("%w: %s/%s leads to unknown stage %s", ErrTransitionTable, stage, o, to)
			}
		}
	}
	for t := range f.next {
		emitted := false
		for _, o := range f.emits[t.from] {
			if o == t.outcome {
				emitted = true
				break
			}
		}
		if !emitted {
			return fmt.Errorf("%w: %s never emits %q", ErrTransitionTable, t.from, t.outcome)
		}
	}
	if _, ok := f.emits[StageSupervisor]; !ok {
		return fmt.Errorf("%w: missing entry stage %s", ErrTransitionTable, StageSupervisor)
	}
	return nil
}

func (f flow) targets(stage Stage) []Stage {
	seen := make(map[Stage]bool)
	var out []Stage
	for _, o := range f.emits[stage] {
		to := f.next[transition{stage, o}]
		if !seen[to] {
			seen[to] = true
			out = append(out, to)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// compile builds the eino graph for f. Every stage in f must have a
// function in stages.
func (f flow) compile(ctx context.Context, stages map[Stage]stageFunc) (compose.Runnable[*State, *State], error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	g := compose.NewGraph[*State, *State]()
	names := make([]Stage, 0, len(f.emits))
	for stage := range f.emits {
		names = append(names, stage)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, stage := range names {
		fn, ok := stages[stage]
		if !ok {
			return nil, fmt.Errorf("%w: no handler for stage %s", ErrTransitionTable, stage)
		}
		if err := g.AddLambdaNode(string(stage), compose.InvokableLambda(f.node(stage, fn))); err != nil {
			return nil, fmt.Errorf("add stage %s: %w", stage, err)
		}
	}

	if err := g.AddEdge(compose.START, string(StageSupervisor)); err != nil {
		return nil, fmt.Errorf("add entry edge: %w", err)
	}
	for _, stage := range names {
		targets := f.targets(stage)
		if len(targets) == 1 {
			if err := g.AddEdge(string(stage), string(targets[0])); err != nil {
				return nil, fmt.Errorf("add edge %s -> %s: %w", stage, targets[0], err)
			}
			continue
		}
		ends := make(map[string]bool, len(targets))
		for _, t := range targets {
			ends[string(t)] = true
		}
		branch := compose.NewGraphBranch(f.condition(stage), ends)
		if err := g.AddBranch(string(stage), branch); err != nil {
			return nil, fmt.Errorf("add branch %s: %w", stage, err)
		}
	}

	return g.Compile(ctx,
		compose.WithGraphName("advisor"),
		compose.WithMaxRunSteps(len(names)+2),
	)
}

func (f flow) node(stage Stage, fn stageFunc) func(ctx context.Context, s *State) (*State, error) {
	return func(ctx context.Context, s *State) (*State, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := fn(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage, err)
		}
		s.outcome = outcome
		return s, nil
	}
}

func (f flow) condition(stage Stage) func(ctx context.Context, s *State) (string, error) {
	return func(_ context.Context, s *State) (string, error) {
		to, ok := f.next[transition{stage, s.outcome}]
		if !ok {
			return "", fmt.Errorf("%w: %s emitted undeclared outcome %q", ErrTransitionTable, stage, s.outcome)
		}
		return string(to), nil
	}
}

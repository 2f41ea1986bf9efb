package namespace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Agent identifiers used by the advisor responders.
const (
	AgentAdvisor       = "advisor"
	AgentSupervisor    = "supervisor"
	AgentMechanical    = "mechanical"
	AgentChemical      = "chemical"
	AgentCivil         = "civil"
	AgentECE           = "ece"
	AgentECETrack      = "ece_track"
	AgentCSE           = "cse"
	AgentCCE           = "cce"
	AgentMSFEAAdvisor  = "msfea_advisor"
	AgentIndustrial    = "industrial"
	AgentGPA           = "gpa"
	AgentScheduleMaker = "schedule_maker"
)

// Source records where a registry configuration came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceFile    Source = "file"
	SourceDefault Source = "default"
)

// NamespaceFor returns the conventional namespace of an agent.
func NamespaceFor(agentID string) string {
	return agentID + "_namespace"
}

// DefaultConfig returns the built-in agent to namespace mapping.
// ece_track shares the ECE namespace.
func DefaultConfig() map[string][]string {
	agents := []string{
		AgentAdvisor, AgentSupervisor, AgentMechanical, AgentChemical, AgentCivil,
		AgentECE, AgentCSE, AgentCCE, AgentMSFEAAdvisor, AgentIndustrial,
		AgentGPA, AgentScheduleMaker,
	}
	cfg := make(map[string][]string, len(agents)+1)
	for _, a := range agents {
		cfg[a] = []string{NamespaceFor(a)}
	}
	cfg[AgentECETrack] = []string{NamespaceFor(AgentECE)}
	return cfg
}

// LoadConfig resolves the registry configuration. The inline JSON value wins,
// then the YAML or JSON file at path, then DefaultConfig. A source that is
// unreadable or yields no usable entries falls through to the next one.
func LoadConfig(inline, path string) (map[string][]string, Source) {
	if inline != "" {
		cfg, err := Parse([]byte(inline))
		switch {
		case err != nil:
			slog.Warn("Ignoring invalid inline namespace config", "error", err)
		case len(cfg) == 0:
			slog.Warn("Inline namespace config has no usable entries")
		default:
			return cfg, SourceEnv
		}
	}

	if path != "" {
		cfg, err := LoadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("Namespace config file not found, using defaults", "path", path)
		case err != nil:
			slog.Warn("Ignoring invalid namespace config file", "path", path, "error", err)
		case len(cfg) == 0:
			slog.Warn("Namespace config file has no usable entries", "path", path)
		default:
			return cfg, SourceFile
		}
	}

	return DefaultConfig(), SourceDefault
}

// LoadFile reads and parses a registry file.
func LoadFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read namespace config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) mapping of agent id to namespace list.
// Entries whose value is not a list are skipped; non-string items are dropped.
func Parse(data []byte) (map[string][]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse namespace config: %w", err)
	}

	cfg := make(map[string][]string, len(raw))
	for agent, v := range raw {
		items, ok := v.([]any)
		if !ok {
			slog.Warn("Skipping namespace entry that is not a list", "agent_id", agent)
			continue
		}
		var namespaces []string
		for _, item := range items {
			if s, ok := item.(string); ok {
				namespaces = append(namespaces, s)
			}
		}
		cfg[agent] = dedupe(namespaces)
	}
	return cfg, nil
}

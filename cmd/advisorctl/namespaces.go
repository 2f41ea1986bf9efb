package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/namespace"
)

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "Show the agent namespace registry",
	Long:  `Print which namespaces each agent may read and write, and where the registry came from.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		entries, source := namespace.LoadConfig(cfg.Namespaces.JSON, cfg.Namespaces.Path)
		printNamespaces(cmd, namespace.NewRegistry(entries), source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(namespacesCmd)
}

func printNamespaces(cmd *cobra.Command, reg *namespace.Registry, source namespace.Source) {
	out := cmd.OutOrStdout()
	snapshot := reg.Snapshot()
	agents := make([]string, 0, len(snapshot))
	for a := range snapshot {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	fmt.Fprintf(out, "source: %s\n", source)
	for _, a := range agents {
		fmt.Fprintf(out, "%-16s %s\n", a, strings.Join(snapshot[a], ", "))
	}
}

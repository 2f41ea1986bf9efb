package main

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mohamadbazzy/Agentic-Rag/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the advisor as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing ask_advisor,
route_department, find_courses and calendar_links. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s := mcptools.New(a.Advisor, a.Catalog, a.Location())
		slog.Info("Serving MCP over stdio", "version", mcptools.Version)
		return server.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

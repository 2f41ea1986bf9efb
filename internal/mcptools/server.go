// Package mcptools exposes the advisor as MCP tools.
//
// Each tool is a struct with its dependencies injected via constructor,
// a Definition that returns the mcp.Tool schema and a Handle that serves
// calls. Tool failures are reported as error results, never as protocol
// errors.
package mcptools

import (
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

const instructions = `This server answers academic advising questions for the Maroun Semaan Faculty
of Engineering and Architecture (MSFEA) at AUB. Use ask_advisor for questions,
find_courses to look up sections, calendar_links to export a schedule and
route_department to inspect routing.`

// New creates an MCP server with every advisor tool registered.
func New(proc Processor, loader *catalog.Loader, loc *time.Location) *server.MCPServer {
	s := server.NewMCPServer(
		"msfea-advisor",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	ask := NewAskTool(proc)
	s.AddTool(ask.Definition(), ask.Handle)

	route := NewRouteTool()
	s.AddTool(route.Definition(), route.Handle)

	courses := NewCoursesTool(loader)
	s.AddTool(courses.Definition(), courses.Handle)

	links := NewLinksTool(loc)
	s.AddTool(links.Definition(), links.Handle)

	return s
}

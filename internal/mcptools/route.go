package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
)

// RouteTool handles the route_department MCP tool. It maps a classifier
// label to a responder without calling a model.
type RouteTool struct{}

// NewRouteTool creates a RouteTool.
func NewRouteTool() *RouteTool {
	return &RouteTool{}
}

// Definition returns the MCP tool definition for route_department.
func (t *RouteTool) Definition() mcp.Tool {
	return mcp.NewTool("route_department",
		mcp.WithDescription("Show which advisor responder a department label routes to."),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Department label, e.g. \"Electrical and Computer Engineering\" or \"Schedule Helper\""),
		),
		mcp.WithString("track",
			mcp.Description("Optional ECE track label, e.g. CSE or CCE"),
		),
	)
}

// Handle processes the route_department tool call.
func (t *RouteTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	label := req.GetString("label", "")
	if label == "" {
		return mcp.NewToolResultError("'label' is required"), nil
	}
	dept := advisor.RouteDepartment(true, label)
	text := fmt.Sprintf("%q routes to %s (agent %s)", label, dept.Label(), dept.AgentID())
	if dept == advisor.DeptECE {
		tr := advisor.RouteTrack(req.GetString("track", ""))
		text += fmt.Sprintf("\ntrack: %s (%s, agent %s)", tr, tr.Code(), tr.AgentID())
	}
	return mcp.NewToolResultText(text), nil
}

package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
)

// Processor answers one advising turn.
type Processor interface {
	Process(ctx context.Context, text, sessionID string) (*advisor.Result, error)
}

// AskTool handles the ask_advisor MCP tool.
type AskTool struct {
	proc Processor
}

// NewAskTool creates an AskTool.
func NewAskTool(proc Processor) *AskTool {
	return &AskTool{proc: proc}
}

// Definition returns the MCP tool definition for ask_advisor.
func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask_advisor",
		mcp.WithDescription(
			"Ask the MSFEA academic advisor a question about engineering programs, courses, "+
				"requirements or schedules at AUB. Pass a session_id to keep conversation history.",
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The student's question"),
		),
		mcp.WithString("session_id",
			mcp.Description("Conversation id; omit for a one-off question"),
		),
	)
}

// Handle processes the ask_advisor tool call.
func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(req.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("'question' is required"), nil
	}

	res, err := t.proc.Process(ctx, question, req.GetString("session_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("advisor failed: %v", err)), nil
	}

	var b strings.Builder
	b.WriteString(res.Content)
	fmt.Fprintf(&b, "\n\n[department: %s | status: %s", res.Department, res.Status)
	if res.Track != "" {
		fmt.Fprintf(&b, " | track: %s", res.Track)
	}
	b.WriteString("]")
	if len(res.ScheduleConflicts) > 0 {
		fmt.Fprintf(&b, "\nWarning: the proposed schedule has %d overlapping meetings.", len(res.ScheduleConflicts))
	}
	return mcp.NewToolResultText(b.String()), nil
}

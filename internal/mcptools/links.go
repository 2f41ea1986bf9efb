package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/domain"
)

// LinksTool handles the calendar_links MCP tool.
type LinksTool struct {
	loc *time.Location
	now func() time.Time
}

// NewLinksTool creates a LinksTool that interprets times in loc.
func NewLinksTool(loc *time.Location) *LinksTool {
	if loc == nil {
		loc = time.UTC
	}
	return &LinksTool{loc: loc, now: time.Now}
}

// Definition returns the MCP tool definition for calendar_links.
func (t *LinksTool) Definition() mcp.Tool {
	return mcp.NewTool("calendar_links",
		mcp.WithDescription(
			"Turn a structured schedule into Google Calendar links, one per weekly meeting. "+
				"Overlapping meetings are reported.",
		),
		mcp.WithString("schedule_json",
			mcp.Required(),
			mcp.Description(`Schedule JSON: {"is_schedule": true, "schedule": [{"course_code", "section", "title", "meetings": [{"days", "start_time", "end_time", "location"}]}]}`),
		),
	)
}

// Handle processes the calendar_links tool call.
func (t *LinksTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("schedule_json", "")
	if raw == "" {
		return mcp.NewToolResultError("'schedule_json' is required"), nil
	}
	var s domain.StructuredSchedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid schedule json: %v", err)), nil
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	for _, l := range calendar.Links(&s, t.now(), t.loc) {
		fmt.Fprintf(&b, "%s %s %s\n  %s\n", l.Course, l.Day, l.Time, l.URL)
	}
	for _, c := range calendar.InternalConflicts(&s) {
		fmt.Fprintf(&b, "Overlap on %s: %s (%s) and %s (%s)\n", c.Day, c.First, c.FirstTime, c.Second, c.SecondTime)
	}
	return mcp.NewToolResultText(b.String()), nil
}

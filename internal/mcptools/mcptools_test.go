package mcptools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/calendar"
	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
)

func makeReq(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	var out string
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

type fakeProcessor struct {
	res       *advisor.Result
	err       error
	text      string
	sessionID string
}

func (f *fakeProcessor) Process(_ context.Context, text, sessionID string) (*advisor.Result, error) {
	f.text, f.sessionID = text, sessionID
	return f.res, f.err
}

func TestAskTool(t *testing.T) {
	proc := &fakeProcessor{res: &advisor.Result{
		Content:    "CMPS 200 is offered every fall.",
		Department: advisor.DeptECE.Label(),
		Track:      "CSE",
		Status:     advisor.StatusSuccess,
		ScheduleConflicts: []calendar.InternalConflict{
			{First: "A", Second: "B", Day: "Monday"},
		},
	}}
	tool := NewAskTool(proc)
	assert.Equal(t, "ask_advisor", tool.Definition().Name)

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{
		"question":   "  When is CMPS 200 offered?  ",
		"session_id": "s1",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "CMPS 200 is offered every fall.")
	assert.Contains(t, text, "department: Electrical and Computer Engineering (ECE)")
	assert.Contains(t, text, "track: CSE")
	assert.Contains(t, text, "1 overlapping meetings")
	assert.Equal(t, "When is CMPS 200 offered?", proc.text)
	assert.Equal(t, "s1", proc.sessionID)
}

func TestAskToolErrors(t *testing.T) {
	tool := NewAskTool(&fakeProcessor{err: errors.New("boom")})

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"question": " "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "'question' is required")

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"question": "hi"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "boom")
}

func TestRouteTool(t *testing.T) {
	tool := NewRouteTool()

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"department", map[string]any{"label": "Mechanical Engineering"}, []string{"Mechanical Engineering (MECH)", "agent mechanical"}},
		{"ece track", map[string]any{"label": "ECE", "track": "CCE"}, []string{"agent ece", "track: communications (CCE, agent cce)"}},
		{"invalid", map[string]any{"label": "Invalid"}, []string{"Invalid"}},
		{"schedule", map[string]any{"label": "Schedule Helper"}, []string{"agent schedule_maker"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(tt.args))
			require.NoError(t, err)
			assert.False(t, res.IsError)
			text := resultText(t, res)
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}
		})
	}

	res, err := tool.Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

const testCatalog = `{
  "metadata": {"source": "test"},
  "202610": {
    "term_name": "Fall 2025-2026",
    "subjects": {
      "CMPS": {
        "subject_name": "Computer Science",
        "courses": {
          "CMPS 200": [
            {"course_title": "Introduction to Programming", "section": "1",
             "meeting_times": [{"days": "MWF", "start_time": "9:00 am", "end_time": "9:50 am", "instructors": "Jane Doe"}]}
          ]
        }
      }
    }
  }
}`

func TestCoursesTool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	tool := NewCoursesTool(catalog.NewLoader(path))

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"courses": "cmps 200, PHYS 210"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "Course: CMPS 200 - Introduction to Programming")
	assert.Contains(t, text, "Fall 2025-2026")

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"courses": "PHYS 210"}))
	require.NoError(t, err)
	assert.Equal(t, "No matching courses found in the catalog.", resultText(t, res))

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{"courses": ""}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCoursesToolWithoutCatalog(t *testing.T) {
	res, err := NewCoursesTool(nil).Handle(context.Background(), makeReq(map[string]any{"courses": "CMPS 200"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	missing := NewCoursesTool(catalog.NewLoader(filepath.Join(t.TempDir(), "missing.json")))
	res, err = missing.Handle(context.Background(), makeReq(map[string]any{"courses": "CMPS 200"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "catalog unavailable")
}

func TestLinksTool(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Beirut")
	require.NoError(t, err)
	tool := NewLinksTool(loc)
	tool.now = func() time.Time { return time.Date(2025, 9, 1, 8, 0, 0, 0, loc) }

	schedule := `{"is_schedule": true, "schedule": [
	  {"course_code": "CMPS 200", "section": "1", "title": "Intro",
	   "meetings": [{"days": ["Monday", "Wednesday"], "start_time": "9:00 am", "end_time": "9:50 am"}]},
	  {"course_code": "MATH 201", "section": "2", "title": "Calculus III",
	   "meetings": [{"days": ["Monday"], "start_time": "9:30 am", "end_time": "10:45 am"}]}
	]}`
	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"schedule_json": schedule}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "https://calendar.google.com/calendar/render?")
	assert.Contains(t, text, "CMPS 200")
	assert.Contains(t, text, "MATH 201")
	assert.Contains(t, text, "Overlap on Monday")
}

func TestLinksToolRejectsBadSchedules(t *testing.T) {
	tool := NewLinksTool(nil)
	for name, raw := range map[string]string{
		"empty":     "",
		"not json":  "{",
		"no course": `{"is_schedule": true, "schedule": []}`,
		"bad day":   `{"is_schedule": true, "schedule": [{"course_code": "X 1", "meetings": [{"days": ["Funday"], "start_time": "9:00", "end_time": "10:00"}]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			res, err := tool.Handle(context.Background(), makeReq(map[string]any{"schedule_json": raw}))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestNewRegistersTools(t *testing.T) {
	s := New(&fakeProcessor{}, nil, time.UTC)
	require.NotNil(t, s)
	tools := s.ListTools()
	for _, name := range []string{"ask_advisor", "route_department", "find_courses", "calendar_links"} {
		assert.Contains(t, tools, name)
	}
}

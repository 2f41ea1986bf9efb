package mcptools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mohamadbazzy/Agentic-Rag/internal/advisor"
	"github.com/mohamadbazzy/Agentic-Rag/internal/catalog"
)

// CoursesTool handles the find_courses MCP tool.
type CoursesTool struct {
	loader *catalog.Loader
}

// NewCoursesTool creates a CoursesTool.
func NewCoursesTool(loader *catalog.Loader) *CoursesTool {
	return &CoursesTool{loader: loader}
}

// Definition returns the MCP tool definition for find_courses.
func (t *CoursesTool) Definition() mcp.Tool {
	return mcp.NewTool("find_courses",
		mcp.WithDescription("Look up course sections in the course catalog, with meeting times and instructors."),
		mcp.WithString("courses",
			mcp.Required(),
			mcp.Description("Comma separated course codes, e.g. \"CMPS 200, MATH 201\""),
		),
	)
}

// Handle processes the find_courses tool call.
func (t *CoursesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := advisor.ParseCourseList(req.GetString("courses", ""))
	if len(names) == 0 {
		return mcp.NewToolResultError("'courses' is required"), nil
	}
	if t.loader == nil {
		return mcp.NewToolResultError("no course catalog is configured"), nil
	}
	cat, err := t.loader.Load(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("catalog unavailable: %v", err)), nil
	}
	matches := cat.Match(names)
	if len(matches) == 0 {
		return mcp.NewToolResultText("No matching courses found in the catalog."), nil
	}
	return mcp.NewToolResultText(catalog.Format(matches)), nil
}

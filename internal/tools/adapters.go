package tools

import (
	"context"
	"log"
	"time"

	"github.com/cexll/agentsdk-go/pkg/tool"
)

// Tool names as exposed to the agent and the tool_test endpoint.
const (
	NameListCourses         = "list_my_courses"
	NameUpcomingAssignments = "get_upcoming_assignments"
	NameAnnouncements       = "get_announcements"
)

// Tools returns the agent-facing adapters for this set. The Canvas
// token stays inside the client; no schema or argument ever carries it.
func (s *Set) Tools() []tool.Tool {
	return []tool.Tool{
		&coursesTool{set: s},
		&assignmentsTool{set: s},
		&announcementsTool{set: s},
	}
}

func (s *Set) run(name string, fn func() (string, error)) (*tool.ToolResult, error) {
	start := time.Now()
	text, err := fn()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		s.record(err)
		log.Printf("[tool] %s failed elapsedMs=%d req_id=%s: %v", name, elapsed, s.requestID, err)
		return &tool.ToolResult{Success: false, Error: err}, err
	}
	log.Printf("[tool] %s ok elapsedMs=%d req_id=%s", name, elapsed, s.requestID)
	return &tool.ToolResult{Success: true, Output: text}, nil
}

func emptySchema() *tool.JSONSchema {
	return &tool.JSONSchema{Type: "object", Properties: map[string]interface{}{}}
}

type coursesTool struct{ set *Set }

func (t *coursesTool) Name() string { return NameListCourses }

func (t *coursesTool) Description() string {
	return "List the full name and id of every course the user is actively enrolled in. " +
		"Use when the user asks about their courses or a course reference is ambiguous."
}

func (t *coursesTool) Schema() *tool.JSONSchema { return emptySchema() }

func (t *coursesTool) Execute(ctx context.Context, _ map[string]interface{}) (*tool.ToolResult, error) {
	return t.set.run(NameListCourses, func() (string, error) {
		return t.set.ListMyCourses(ctx)
	})
}

type assignmentsTool struct{ set *Set }

func (t *assignmentsTool) Name() string { return NameUpcomingAssignments }

func (t *assignmentsTool) Description() string {
	return "List assignments across all active courses that are not yet due and not yet submitted, " +
		"earliest deadline first. Use when the user asks about assignments, deadlines, or DDLs."
}

func (t *assignmentsTool) Schema() *tool.JSONSchema { return emptySchema() }

func (t *assignmentsTool) Execute(ctx context.Context, _ map[string]interface{}) (*tool.ToolResult, error) {
	return t.set.run(NameUpcomingAssignments, func() (string, error) {
		return t.set.UpcomingAssignments(ctx)
	})
}

type announcementsTool struct{ set *Set }

func (t *announcementsTool) Name() string { return NameAnnouncements }

func (t *announcementsTool) Description() string {
	return "List recent course announcements, newest first. Set course_name to the exact name of one " +
		"course to scope the query, or leave it empty for all active courses."
}

func (t *announcementsTool) Schema() *tool.JSONSchema {
	return &tool.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"course_name": map[string]interface{}{
				"type":        "string",
				"description": "Exact course name to filter by; leave empty for all courses.",
			},
		},
	}
}

func (t *announcementsTool) Execute(ctx context.Context, params map[string]interface{}) (*tool.ToolResult, error) {
	courseName, _ := params["course_name"].(string)
	return t.set.run(NameAnnouncements, func() (string, error) {
		return t.set.Announcements(ctx, courseName)
	})
}

package tools

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jypengpeng/CanvasLMS-Agent/internal/canvas"
)

const (
	// announcementLimit caps how many announcements one query returns.
	announcementLimit = 5
	// announcementBodyMax bounds the plain-text body length in runes.
	announcementBodyMax = 240
)

// Set exposes the three Canvas query tools over one request-scoped
// client. Every operation returns a human-readable text block; empty
// upstream data renders as descriptive text, never as an error.
type Set struct {
	client    *canvas.Client
	requestID string
	firstErr  error
}

// NewSet binds the tools to a client. The client already carries the
// caller's token, so nothing secret crosses this boundary again.
func NewSet(client *canvas.Client, requestID string) *Set {
	if requestID == "" {
		requestID = "-"
	}
	return &Set{client: client, requestID: requestID}
}

// ListMyCourses renders the caller's active courses as a numbered list
// sorted by name.
func (s *Set) ListMyCourses(ctx context.Context) (string, error) {
	courses, err := s.client.Courses(ctx)
	if err != nil {
		return "", fmt.Errorf("list_my_courses: %w", err)
	}
	if len(courses) == 0 {
		return "You are not enrolled in any active courses.", nil
	}

	sortCourses(courses)
	lines := make([]string, len(courses))
	for i, c := range courses {
		lines[i] = fmt.Sprintf("%d. %s (id %d)", i+1, c.Name, c.ID)
	}
	return strings.Join(lines, "\n"), nil
}

// UpcomingAssignments merges the assignments of every active course,
// keeps the ones due strictly in the future and not yet submitted, and
// renders them earliest deadline first. Ties order by course name then
// assignment name.
func (s *Set) UpcomingAssignments(ctx context.Context) (string, error) {
	courses, err := s.client.Courses(ctx)
	if err != nil {
		return "", fmt.Errorf("get_upcoming_assignments: %w", err)
	}

	now := time.Now()
	type entry struct {
		due    time.Time
		course string
		name   string
	}
	var entries []entry
	for _, course := range courses {
		assignments, err := s.client.Assignments(ctx, course.ID)
		if err != nil {
			return "", fmt.Errorf("get_upcoming_assignments: course %d: %w", course.ID, err)
		}
		for _, a := range assignments {
			if a.DueAt == nil || !a.DueAt.After(now) {
				continue
			}
			if a.Submitted() {
				continue
			}
			name := a.Name
			if name == "" {
				name = "Untitled assignment"
			}
			entries = append(entries, entry{due: *a.DueAt, course: course.Name, name: name})
		}
	}
	if len(entries) == 0 {
		return "No assignments with upcoming deadlines.", nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].due.Equal(entries[j].due) {
			return entries[i].due.Before(entries[j].due)
		}
		if entries[i].course != entries[j].course {
			return entries[i].course < entries[j].course
		}
		return entries[i].name < entries[j].name
	})

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("[%s] %s - due %s", e.course, e.name, formatTime(e.due))
	}
	return strings.Join(lines, "\n"), nil
}

// Announcements renders the most recent announcements, newest first.
// A non-empty courseName scopes the query to the course whose name
// matches it exactly, ignoring case; an unmatched name renders as
// descriptive text rather than an error.
func (s *Set) Announcements(ctx context.Context, courseName string) (string, error) {
	courses, err := s.client.Courses(ctx)
	if err != nil {
		return "", fmt.Errorf("get_announcements: %w", err)
	}

	names := make(map[int64]string, len(courses))
	for _, c := range courses {
		names[c.ID] = c.Name
	}

	var ids []int64
	filter := strings.TrimSpace(courseName)
	if filter != "" {
		match, ok := resolveCourse(courses, filter)
		if !ok {
			return fmt.Sprintf("No course named %q was found among your active courses.", filter), nil
		}
		ids = []int64{match.ID}
	} else {
		for _, c := range courses {
			ids = append(ids, c.ID)
		}
	}

	announcements, err := s.client.Announcements(ctx, ids, announcementLimit)
	if err != nil {
		return "", fmt.Errorf("get_announcements: %w", err)
	}
	if len(announcements) == 0 {
		return "No announcements found.", nil
	}

	sort.SliceStable(announcements, func(i, j int) bool {
		return announcements[i].PostedTime().After(announcements[j].PostedTime())
	})
	if len(announcements) > announcementLimit {
		announcements = announcements[:announcementLimit]
	}

	lines := make([]string, len(announcements))
	for i, a := range announcements {
		label := names[a.CourseID()]
		if label == "" {
			label = a.ContextCode
		}
		if label == "" {
			label = "unknown course"
		}
		title := a.Title
		if title == "" {
			title = "Untitled announcement"
		}
		lines[i] = fmt.Sprintf("[%s] %s - posted %s: %s", label, title, postedLabel(a), stripHTML(a.Message))
	}
	return strings.Join(lines, "\n"), nil
}

// RecordedError returns the first upstream failure observed while the
// agent was driving the adapters, or nil. The reasoning loop only sees
// tool failures as feedback text, so the gateway reads this to decide
// whether the run's outcome is trustworthy.
func (s *Set) RecordedError() error { return s.firstErr }

func (s *Set) record(err error) {
	if s.firstErr == nil {
		s.firstErr = err
	}
}

func sortCourses(courses []canvas.Course) {
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].Name != courses[j].Name {
			return courses[i].Name < courses[j].Name
		}
		return courses[i].ID < courses[j].ID
	})
}

// resolveCourse finds the course whose name equals the filter ignoring
// case. With duplicate names the first (name, id) pair wins so repeated
// calls resolve identically.
func resolveCourse(courses []canvas.Course, filter string) (canvas.Course, bool) {
	sorted := append([]canvas.Course(nil), courses...)
	sortCourses(sorted)
	for _, c := range sorted {
		if strings.EqualFold(c.Name, filter) {
			return c, true
		}
	}
	return canvas.Course{}, false
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format("2006-01-02 15:04 MST")
}

func postedLabel(a canvas.Announcement) string {
	ts := a.PostedTime()
	if ts.IsZero() {
		return "unknown"
	}
	return formatTime(ts)
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// stripHTML flattens announcement markup to a single line of plain text
// and truncates it for compact tool output.
func stripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) > announcementBodyMax {
		return string(runes[:announcementBodyMax]) + "…"
	}
	return text
}

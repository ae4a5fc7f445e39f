package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jypengpeng/CanvasLMS-Agent/internal/canvas"
)

const testToken = "canvas-secret-token"

// fakeCanvas serves a minimal Canvas API out of in-memory fixtures.
func fakeCanvas(t *testing.T, courses []canvas.Course, assignments map[int64][]canvas.Assignment, announcements []canvas.Announcement) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(courses)
	})
	mux.HandleFunc("/api/v1/courses/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 5 || parts[4] != "assignments" {
			http.NotFound(w, r)
			return
		}
		id, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(assignments[id])
	})
	mux.HandleFunc("/api/v1/announcements", func(w http.ResponseWriter, r *http.Request) {
		var filtered []canvas.Announcement
		codes := r.URL.Query()["context_codes[]"]
		for _, a := range announcements {
			for _, code := range codes {
				if a.ContextCode == code {
					filtered = append(filtered, a)
					break
				}
			}
		}
		json.NewEncoder(w).Encode(filtered)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSet(t *testing.T, courses []canvas.Course, assignments map[int64][]canvas.Assignment, announcements []canvas.Announcement) *Set {
	t.Helper()
	srv := fakeCanvas(t, courses, assignments, announcements)
	return NewSet(canvas.New(srv.URL, testToken, "test"), "test")
}

func tp(t time.Time) *time.Time { return &t }

func TestListMyCourses(t *testing.T) {
	set := newTestSet(t, []canvas.Course{
		{ID: 2, Name: "MATH201"},
		{ID: 1, Name: "CS101"},
	}, nil, nil)

	out, err := set.ListMyCourses(context.Background())
	if err != nil {
		t.Fatalf("ListMyCourses error: %v", err)
	}
	want := "1. CS101 (id 1)\n2. MATH201 (id 2)"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestListMyCourses_Empty(t *testing.T) {
	set := newTestSet(t, nil, nil, nil)

	out, err := set.ListMyCourses(context.Background())
	if err != nil {
		t.Fatalf("ListMyCourses error: %v", err)
	}
	if out != "You are not enrolled in any active courses." {
		t.Errorf("output = %q", out)
	}
}

func TestUpcomingAssignments_Scenario(t *testing.T) {
	now := time.Now().UTC()
	in2d := now.Add(48 * time.Hour)
	in5d := now.Add(120 * time.Hour)
	past := now.Add(-24 * time.Hour)

	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}, {ID: 2, Name: "MATH201"}},
		map[int64][]canvas.Assignment{
			1: {{ID: 10, Name: "Project 1", CourseID: 1, DueAt: tp(in2d)}},
			2: {
				{ID: 20, Name: "Problem set", CourseID: 2, DueAt: tp(in5d)},
				{ID: 21, Name: "Old quiz", CourseID: 2, DueAt: tp(past)},
			},
		}, nil)

	out, err := set.UpcomingAssignments(context.Background())
	if err != nil {
		t.Fatalf("UpcomingAssignments error: %v", err)
	}

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "[CS101] Project 1 - due ") {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[MATH201] Problem set - due ") {
		t.Errorf("lines[1] = %q", lines[1])
	}
	if strings.Contains(out, "Old quiz") {
		t.Errorf("past-due assignment leaked into output: %q", out)
	}
}

func TestUpcomingAssignments_Filtering(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(72 * time.Hour)

	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}},
		map[int64][]canvas.Assignment{
			1: {
				{ID: 1, Name: "Keep me", CourseID: 1, DueAt: tp(future)},
				{ID: 2, Name: "No deadline", CourseID: 1},
				{ID: 3, Name: "Turned in", CourseID: 1, DueAt: tp(future),
					Submission: &canvas.Submission{WorkflowState: "submitted", SubmittedAt: tp(now)}},
			},
		}, nil)

	out, err := set.UpcomingAssignments(context.Background())
	if err != nil {
		t.Fatalf("UpcomingAssignments error: %v", err)
	}
	if !strings.Contains(out, "Keep me") {
		t.Errorf("missing future assignment: %q", out)
	}
	if strings.Contains(out, "No deadline") {
		t.Errorf("assignment without due date leaked: %q", out)
	}
	if strings.Contains(out, "Turned in") {
		t.Errorf("submitted assignment leaked: %q", out)
	}
}

func TestUpcomingAssignments_TieOrder(t *testing.T) {
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)

	set := newTestSet(t,
		[]canvas.Course{{ID: 2, Name: "Zoology"}, {ID: 1, Name: "Algebra"}},
		map[int64][]canvas.Assignment{
			1: {
				{ID: 11, Name: "B task", CourseID: 1, DueAt: tp(due)},
				{ID: 12, Name: "A task", CourseID: 1, DueAt: tp(due)},
			},
			2: {{ID: 21, Name: "A task", CourseID: 2, DueAt: tp(due)}},
		}, nil)

	out, err := set.UpcomingAssignments(context.Background())
	if err != nil {
		t.Fatalf("UpcomingAssignments error: %v", err)
	}

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), out)
	}
	wantOrder := []string{"[Algebra] A task", "[Algebra] B task", "[Zoology] A task"}
	for i, prefix := range wantOrder {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("lines[%d] = %q, want prefix %q", i, lines[i], prefix)
		}
	}
}

func TestUpcomingAssignments_Empty(t *testing.T) {
	set := newTestSet(t, []canvas.Course{{ID: 1, Name: "CS101"}},
		map[int64][]canvas.Assignment{}, nil)

	out, err := set.UpcomingAssignments(context.Background())
	if err != nil {
		t.Fatalf("UpcomingAssignments error: %v", err)
	}
	if out != "No assignments with upcoming deadlines." {
		t.Errorf("output = %q", out)
	}
}

func TestAnnouncements_CaseInsensitiveExactMatch(t *testing.T) {
	posted := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}, {ID: 2, Name: "MATH201"}},
		nil,
		[]canvas.Announcement{
			{ID: 1, Title: "Midterm", ContextCode: "course_1", PostedAt: tp(posted), Message: "Room change"},
			{ID: 2, Title: "Homework", ContextCode: "course_2", PostedAt: tp(posted), Message: "Due soon"},
		})

	out, err := set.Announcements(context.Background(), "cs101")
	if err != nil {
		t.Fatalf("Announcements error: %v", err)
	}
	if !strings.Contains(out, "[CS101] Midterm") {
		t.Errorf("missing CS101 announcement: %q", out)
	}
	if strings.Contains(out, "Homework") {
		t.Errorf("other course's announcement leaked: %q", out)
	}
}

func TestAnnouncements_SubstringDoesNotMatch(t *testing.T) {
	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}},
		nil, nil)

	out, err := set.Announcements(context.Background(), "CS")
	if err != nil {
		t.Fatalf("Announcements error: %v", err)
	}
	if out != `No course named "CS" was found among your active courses.` {
		t.Errorf("output = %q", out)
	}
}

func TestAnnouncements_UnknownCourse(t *testing.T) {
	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}},
		nil, nil)

	out, err := set.Announcements(context.Background(), "Basket Weaving")
	if err != nil {
		t.Fatalf("Announcements error: %v", err)
	}
	if out != `No course named "Basket Weaving" was found among your active courses.` {
		t.Errorf("output = %q", out)
	}
}

func TestAnnouncements_RecencyOrderAndCap(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	var anns []canvas.Announcement
	for i := 0; i < 7; i++ {
		anns = append(anns, canvas.Announcement{
			ID:          int64(i + 1),
			Title:       "News " + strconv.Itoa(i+1),
			ContextCode: "course_1",
			PostedAt:    tp(base.Add(time.Duration(i) * 24 * time.Hour)),
			Message:     "body",
		})
	}

	set := newTestSet(t, []canvas.Course{{ID: 1, Name: "CS101"}}, nil, anns)

	out, err := set.Announcements(context.Background(), "")
	if err != nil {
		t.Fatalf("Announcements error: %v", err)
	}

	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5: %q", len(lines), out)
	}
	// Newest first.
	if !strings.Contains(lines[0], "News 7") {
		t.Errorf("lines[0] = %q, want News 7", lines[0])
	}
	if !strings.Contains(lines[4], "News 3") {
		t.Errorf("lines[4] = %q, want News 3", lines[4])
	}
}

func TestAnnouncements_Empty(t *testing.T) {
	set := newTestSet(t, []canvas.Course{{ID: 1, Name: "CS101"}}, nil, nil)

	out, err := set.Announcements(context.Background(), "")
	if err != nil {
		t.Fatalf("Announcements error: %v", err)
	}
	if out != "No announcements found." {
		t.Errorf("output = %q", out)
	}
}

func TestAnnouncements_BodyStrippedAndTruncated(t *testing.T) {
	posted := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	long := strings.Repeat("a", 300)

	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}},
		nil,
		[]canvas.Announcement{{
			ID:          1,
			Title:       "Long",
			ContextCode: "course_1",
			PostedAt:    tp(posted),
			Message:     "<p>" + long + "</p>",
		}})

	out, err := set.Announcements(context.Background(), "")
	if err != nil {
		t.Fatalf("Announcements error: %v", err)
	}
	if strings.Contains(out, "<p>") {
		t.Errorf("markup leaked into output: %q", out)
	}
	if !strings.HasSuffix(out, strings.Repeat("a", announcementBodyMax)+"…") {
		t.Errorf("body not truncated to %d runes: %q", announcementBodyMax, out)
	}
}

func TestToolOutputNeverContainsToken(t *testing.T) {
	posted := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	due := time.Now().Add(48 * time.Hour)

	set := newTestSet(t,
		[]canvas.Course{{ID: 1, Name: "CS101"}},
		map[int64][]canvas.Assignment{
			1: {{ID: 1, Name: "HW", CourseID: 1, DueAt: tp(due)}},
		},
		[]canvas.Announcement{{ID: 1, Title: "Hi", ContextCode: "course_1", PostedAt: tp(posted), Message: "x"}})

	ctx := context.Background()
	outputs := []string{}

	for _, fn := range []func() (string, error){
		func() (string, error) { return set.ListMyCourses(ctx) },
		func() (string, error) { return set.UpcomingAssignments(ctx) },
		func() (string, error) { return set.Announcements(ctx, "") },
	} {
		out, err := fn()
		if err != nil {
			t.Fatalf("tool error: %v", err)
		}
		outputs = append(outputs, out)
	}

	for i, out := range outputs {
		if strings.Contains(out, testToken) {
			t.Errorf("outputs[%d] contains the token: %q", i, out)
		}
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"plain text", "plain text"},
		{"a\n\n  b\tc", "a b c"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := stripHTML(tt.in); got != tt.want {
			t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

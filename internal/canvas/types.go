package canvas

import (
	"strconv"
	"strings"
	"time"
)

// Course is one active enrollment as reported by the courses listing
// endpoint.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Assignment belongs to one course. DueAt is nil when the assignment
// has no deadline. Submission is populated only when the listing was
// requested with include[]=submission.
type Assignment struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	CourseID   int64       `json:"course_id"`
	DueAt      *time.Time  `json:"due_at"`
	Submission *Submission `json:"submission"`
}

// Submission is the caller's own submission state for an assignment.
type Submission struct {
	WorkflowState string     `json:"workflow_state"`
	SubmittedAt   *time.Time `json:"submitted_at"`
}

// Submitted reports whether the caller already turned this assignment
// in. Assignments without submission data count as not submitted.
func (a Assignment) Submitted() bool {
	if a.Submission == nil {
		return false
	}
	if a.Submission.SubmittedAt != nil {
		return true
	}
	switch a.Submission.WorkflowState {
	case "submitted", "graded", "pending_review":
		return true
	}
	return false
}

// Announcement is one entry from the aggregate announcements endpoint.
// ContextCode names the owning course as "course_<id>".
type Announcement struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	ContextCode string     `json:"context_code"`
	PostedAt    *time.Time `json:"posted_at"`
	CreatedAt   *time.Time `json:"created_at"`
}

// PostedTime returns the announcement's posted_at, falling back to
// created_at for delayed posts. The zero time means neither was set.
func (a Announcement) PostedTime() time.Time {
	if a.PostedAt != nil {
		return *a.PostedAt
	}
	if a.CreatedAt != nil {
		return *a.CreatedAt
	}
	return time.Time{}
}

// CourseID parses the numeric course id out of ContextCode. Zero means
// the context code was absent or not course-scoped.
func (a Announcement) CourseID() int64 {
	raw, ok := strings.CutPrefix(a.ContextCode, "course_")
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Package task defines the task model shared by the API, the store
// adapter, and the reminder scheduler.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// Priority ranks a task's importance.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a user-owned work item. Persistence lives in the external
// store; DueDate stays in its wire form because the store returns
// timestamps as strings and the scheduler must tolerate malformed
// values without failing a whole batch.
type Task struct {
	ID          string   `json:"id,omitempty"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
	AIGenerated bool     `json:"ai_generated,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// Validate checks the fields a client may set. Empty status and
// priority are filled with defaults rather than rejected.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title exceeds 500 characters")
	}
	if t.Status == "" {
		t.Status = StatusTodo
	} else if !ValidStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	} else if !ValidPriority(t.Priority) {
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	if t.DueDate != "" {
		if _, err := ParseDueDate(t.DueDate); err != nil {
			return fmt.Errorf("invalid due_date: %w", err)
		}
	}
	return nil
}

// dueDateLayouts are tried in order when parsing wire timestamps.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDueDate parses a stored due-date string onto a single naive
// timeline: any timezone offset is stripped so the wall-clock digits
// compare directly against local now. Reminder windows span hours, so
// this coarse normalization is deliberate.
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty due date")
	}
	for _, layout := range dueDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized due date %q", s)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskhive/taskhive/task"
)

const tasksTable = "tasks"

// ErrTaskNotFound marks lookups that matched no row.
var ErrTaskNotFound = fmt.Errorf("task not found")

// Tasks is the typed task repository layered on the generic client.
type Tasks struct {
	client *Client
}

// NewTasks creates the task repository.
func NewTasks(c *Client) *Tasks {
	return &Tasks{client: c}
}

// TaskFilter narrows List and CountTasks results. OwnerID is mandatory
// for request-scoped calls; the scheduler passes it empty to see all
// owners.
type TaskFilter struct {
	OwnerID  string
	Status   task.Status
	Priority task.Priority
	Category string
	Limit    int
	Offset   int
}

func (f TaskFilter) columns() map[string]string {
	m := map[string]string{}
	if f.OwnerID != "" {
		m["owner_id"] = f.OwnerID
	}
	if f.Status != "" {
		m["status"] = string(f.Status)
	}
	if f.Priority != "" {
		m["priority"] = string(f.Priority)
	}
	if f.Category != "" {
		m["category"] = f.Category
	}
	return m
}

// List returns tasks matching the filter, newest first.
func (r *Tasks) List(ctx context.Context, f TaskFilter) ([]task.Task, error) {
	rows, err := r.client.Query(ctx, tasksTable, QueryOptions{
		Filters: f.columns(),
		Order:   "created_at.desc",
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
	if err != nil {
		return nil, err
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		var t task.Task
		if err := json.Unmarshal(row, &t); err != nil {
			return nil, fmt.Errorf("store: decode task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the filter.
func (r *Tasks) CountTasks(ctx context.Context, f TaskFilter) (int, error) {
	return r.client.Count(ctx, tasksTable, f.columns())
}

// Get fetches one task scoped to its owner.
func (r *Tasks) Get(ctx context.Context, ownerID, id string) (*task.Task, error) {
	rows, err := r.client.Query(ctx, tasksTable, QueryOptions{
		Filters: map[string]string{"id": id, "owner_id": ownerID},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrTaskNotFound
	}
	var t task.Task
	if err := json.Unmarshal(rows[0], &t); err != nil {
		return nil, fmt.Errorf("store: decode task: %w", err)
	}
	return &t, nil
}

// Create inserts a task and returns the stored representation.
func (r *Tasks) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	row, err := r.client.Insert(ctx, tasksTable, t)
	if err != nil {
		return nil, err
	}
	var created task.Task
	if err := json.Unmarshal(row, &created); err != nil {
		return nil, fmt.Errorf("store: decode created task: %w", err)
	}
	return &created, nil
}

// Update patches the fields present in changes, owner scoped.
func (r *Tasks) Update(ctx context.Context, ownerID, id string, changes map[string]any) (*task.Task, error) {
	row, err := r.client.Update(ctx, tasksTable, map[string]string{"id": id, "owner_id": ownerID}, changes)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	var updated task.Task
	if err := json.Unmarshal(row, &updated); err != nil {
		return nil, fmt.Errorf("store: decode updated task: %w", err)
	}
	return &updated, nil
}

// Delete removes a task, owner scoped.
func (r *Tasks) Delete(ctx context.Context, ownerID, id string) error {
	return r.client.Delete(ctx, tasksTable, map[string]string{"id": id, "owner_id": ownerID})
}

// FetchAll returns up to limit tasks across all owners for the
// reminder scheduler. Accounts beyond the page cap are truncated; the
// cap is a configured limit, not a hidden constant.
func (r *Tasks) FetchAll(ctx context.Context, limit int) ([]task.Task, error) {
	return r.List(ctx, TaskFilter{Limit: limit})
}

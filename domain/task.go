package domain

import (
	"strings"
	"time"
)

// Status is the persisted task state and the sole source of column placement.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Column is one of the three fixed display buckets derived from Status.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "inProgress"
	ColumnDone       Column = "done"
)

// Columns returns the buckets in display order.
func Columns() [3]Column {
	return [3]Column{ColumnTodo, ColumnInProgress, ColumnDone}
}

// Status maps a column back to the status persisted for tasks dropped into it.
func (c Column) Status() Status {
	switch c {
	case ColumnInProgress:
		return StatusInProgress
	case ColumnDone:
		return StatusDone
	default:
		return StatusTodo
	}
}

// ColumnForStatus resolves a raw status string to its column. Backends spell
// the middle state inconsistently ("in-progress", "in_progress", "inProgress"),
// so matching ignores case, hyphens and underscores.
func ColumnForStatus(raw string) (Column, bool) {
	folded := strings.ToLower(raw)
	folded = strings.ReplaceAll(folded, "-", "")
	folded = strings.ReplaceAll(folded, "_", "")
	switch folded {
	case "todo":
		return ColumnTodo, true
	case "inprogress":
		return ColumnInProgress, true
	case "done":
		return ColumnDone, true
	}
	return "", false
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	// Assignee is a member reference; empty means unassigned.
	Assignee string     `json:"assignee,omitempty"`
	DueDate  *time.Time `json:"dueDate,omitempty"`
	LabelIDs []string   `json:"labelIds,omitempty"`
	Priority Priority   `json:"priority,omitempty"`
	Status   Status     `json:"status"`
	// Order defines position within the status group. Values need not be
	// contiguous; only their relative ordering matters.
	Order int `json:"order"`
}

// TaskDraft carries the fields a client may set when creating a task.
type TaskDraft struct {
	BoardID     string     `json:"boardId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	LabelIDs    []string   `json:"labelIds,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Status      Status     `json:"status,omitempty"`
}

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	LabelIDs    *[]string  `json:"labelIds,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Order       *int       `json:"order,omitempty"`
}

// Apply copies the patched fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Assignee != nil {
		t.Assignee = *p.Assignee
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.LabelIDs != nil {
		t.LabelIDs = append([]string(nil), (*p.LabelIDs)...)
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
}

// ReorderEntry is one element of a reorder batch. A batch spans at most two
// status groups and never lists the same task twice.
type ReorderEntry struct {
	ID     string `json:"id"`
	Order  int    `json:"order"`
	Status Status `json:"status"`
}

// Package board implements the collaborative kanban board core: payload
// normalization, the drag-reorder engine and the board controller.
package board

import "boardsync/domain"

// ColumnSet holds the three display columns. It is owned by a Controller;
// only the controller and its drag engine mutate it.
type ColumnSet struct {
	Todo       []domain.Task
	InProgress []domain.Task
	Done       []domain.Task
}

// Tasks returns the task list of the given column.
func (cs *ColumnSet) Tasks(col domain.Column) []domain.Task {
	switch col {
	case domain.ColumnInProgress:
		return cs.InProgress
	case domain.ColumnDone:
		return cs.Done
	default:
		return cs.Todo
	}
}

func (cs *ColumnSet) setTasks(col domain.Column, tasks []domain.Task) {
	switch col {
	case domain.ColumnInProgress:
		cs.InProgress = tasks
	case domain.ColumnDone:
		cs.Done = tasks
	default:
		cs.Todo = tasks
	}
}

// Find locates a task by ID and returns its column and index.
func (cs *ColumnSet) Find(id string) (domain.Column, int, bool) {
	for _, col := range domain.Columns() {
		for i, t := range cs.Tasks(col) {
			if t.ID == id {
				return col, i, true
			}
		}
	}
	return "", 0, false
}

// Task returns a copy of the task with the given ID.
func (cs *ColumnSet) Task(id string) (domain.Task, bool) {
	col, i, ok := cs.Find(id)
	if !ok {
		return domain.Task{}, false
	}
	return cs.Tasks(col)[i], true
}

// Total counts tasks across all columns.
func (cs *ColumnSet) Total() int {
	return len(cs.Todo) + len(cs.InProgress) + len(cs.Done)
}

// Clone deep-copies the column lists.
func (cs *ColumnSet) Clone() ColumnSet {
	clone := ColumnSet{}
	for _, col := range domain.Columns() {
		src := cs.Tasks(col)
		dst := make([]domain.Task, len(src))
		copy(dst, src)
		clone.setTasks(col, dst)
	}
	return clone
}

// arrayMove removes the element at from and re-inserts it at to, preserving
// the relative order of everything else.
func arrayMove(tasks []domain.Task, from, to int) []domain.Task {
	if from < 0 || from >= len(tasks) {
		return tasks
	}
	moved := tasks[from]
	tasks = append(tasks[:from], tasks[from+1:]...)
	if to < 0 {
		to = 0
	}
	if to > len(tasks) {
		to = len(tasks)
	}
	tasks = append(tasks, domain.Task{})
	copy(tasks[to+1:], tasks[to:])
	tasks[to] = moved
	return tasks
}

package board

import (
	"math"

	"boardsync/domain"
)

// Phase of the drag session state machine.
type Phase int

const (
	// PhaseIdle means no gesture is in progress.
	PhaseIdle Phase = iota
	// PhasePressed means the pointer is down on a card but has not moved
	// far enough to count as a drag.
	PhasePressed
	// PhaseDragging means an active drag session owns the column state.
	PhaseDragging
)

// ActivationDistance is the pointer travel required before a press becomes a
// drag, so plain clicks still open the card instead of starting a gesture.
const ActivationDistance = 6.0

// Point is a pointer position in screen coordinates.
type Point struct {
	X float64
	Y float64
}

func (p Point) distanceTo(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Target identifies what the pointer was released over: a card, or a
// column's empty drop zone.
type Target struct {
	TaskID string
	Column domain.Column
}

// Commit is the persistence payload produced by a completed drag: the full
// ordered destination column plus, for cross-column moves, the full
// remaining source column. A task never appears twice in the batch.
type Commit struct {
	TaskID string
	Source domain.Column
	Dest   domain.Column
	Batch  []domain.ReorderEntry
}

// CrossColumn reports whether the drag changed the task's status group.
func (c Commit) CrossColumn() bool { return c.Source != c.Dest }

// Engine is the drag session state machine. It mutates its controller's
// column set during the gesture; persistence of the final order is the
// controller's job. A read-only engine (viewer role) never leaves PhaseIdle.
type Engine struct {
	cols     *ColumnSet
	readOnly bool

	phase  Phase
	taskID string
	origin Point
	source domain.Column
}

// NewEngine creates an engine over the given column set.
func NewEngine(cols *ColumnSet, readOnly bool) *Engine {
	return &Engine{cols: cols, readOnly: readOnly}
}

// Phase returns the current session phase.
func (e *Engine) Phase() Phase { return e.phase }

// ActiveTask returns the ID of the task being dragged, if any.
func (e *Engine) ActiveTask() (string, bool) {
	if e.phase != PhaseDragging {
		return "", false
	}
	return e.taskID, true
}

// Press begins tracking a pointer press on a card. It reports whether the
// press was accepted. Read-only engines and unknown tasks are refused.
func (e *Engine) Press(taskID string, at Point) bool {
	if e.readOnly || e.phase != PhaseIdle {
		return false
	}
	if _, _, ok := e.cols.Find(taskID); !ok {
		return false
	}
	e.phase = PhasePressed
	e.taskID = taskID
	e.origin = at
	return true
}

// Move tracks pointer movement. A press turns into a drag once the pointer
// travels past the activation distance; the source column is snapshotted at
// that moment to decide later whether a status change must be persisted.
func (e *Engine) Move(at Point) {
	if e.phase != PhasePressed {
		return
	}
	if e.origin.distanceTo(at) < ActivationDistance {
		return
	}
	col, _, ok := e.cols.Find(e.taskID)
	if !ok {
		e.reset()
		return
	}
	e.phase = PhaseDragging
	e.source = col
}

// HoverTask reorders the in-memory columns as the dragged card passes over
// another card. Same-column hovers are a stable array move; cross-column
// hovers move the card into the hovered column at the hovered position.
// Purely local, no network.
func (e *Engine) HoverTask(overID string) {
	if e.phase != PhaseDragging || overID == e.taskID {
		return
	}
	from, fromIdx, ok := e.cols.Find(e.taskID)
	if !ok {
		return
	}
	to, toIdx, ok := e.cols.Find(overID)
	if !ok {
		return
	}

	if from == to {
		if fromIdx != toIdx {
			e.cols.setTasks(from, arrayMove(e.cols.Tasks(from), fromIdx, toIdx))
		}
		return
	}
	e.moveAcross(from, fromIdx, to, toIdx)
}

// HoverColumn handles hovering over a column's drop zone (typically an empty
// column): the card moves to the end of that column.
func (e *Engine) HoverColumn(col domain.Column) {
	if e.phase != PhaseDragging {
		return
	}
	from, fromIdx, ok := e.cols.Find(e.taskID)
	if !ok || from == col {
		return
	}
	e.moveAcross(from, fromIdx, col, len(e.cols.Tasks(col)))
}

func (e *Engine) moveAcross(from domain.Column, fromIdx int, to domain.Column, toIdx int) {
	fromTasks := e.cols.Tasks(from)
	moved := fromTasks[fromIdx]
	e.cols.setTasks(from, append(fromTasks[:fromIdx:fromIdx], fromTasks[fromIdx+1:]...))

	toTasks := e.cols.Tasks(to)
	if toIdx < 0 || toIdx > len(toTasks) {
		toIdx = len(toTasks)
	}
	toTasks = append(toTasks, domain.Task{})
	copy(toTasks[toIdx+1:], toTasks[toIdx:])
	toTasks[toIdx] = moved
	e.cols.setTasks(to, toTasks)
}

// Drop completes the session. The destination is the column that contains
// the drop target (or the targeted drop zone itself). When no destination
// resolves, the session ends without producing a commit. When the
// destination differs from the drag-start snapshot, the task's status is
// rewritten to the destination column's status before the batch is built.
func (e *Engine) Drop(over Target) (Commit, bool) {
	if e.phase != PhaseDragging {
		e.reset()
		return Commit{}, false
	}
	taskID := e.taskID
	source := e.source
	defer e.reset()

	dest, ok := e.resolveDest(over)
	if !ok {
		return Commit{}, false
	}

	// Make sure the dragged card actually sits in the destination; a drop
	// without intervening hover events still has to move it.
	cur, curIdx, found := e.cols.Find(taskID)
	if !found {
		return Commit{}, false
	}
	if cur != dest {
		insertAt := len(e.cols.Tasks(dest))
		if over.TaskID != "" {
			if col, idx, ok := e.cols.Find(over.TaskID); ok && col == dest {
				insertAt = idx
			}
		}
		e.moveAcross(cur, curIdx, dest, insertAt)
	}

	if dest != source {
		destTasks := e.cols.Tasks(dest)
		if _, idx, ok := e.cols.Find(taskID); ok {
			destTasks[idx].Status = dest.Status()
		}
		e.cols.setTasks(dest, destTasks)
	}

	return Commit{
		TaskID: taskID,
		Source: source,
		Dest:   dest,
		Batch:  e.buildBatch(source, dest),
	}, true
}

func (e *Engine) resolveDest(over Target) (domain.Column, bool) {
	if over.TaskID != "" {
		if over.TaskID == e.taskID {
			// Dropped over itself: wherever it currently sits.
			if col, _, ok := e.cols.Find(e.taskID); ok {
				return col, true
			}
			return "", false
		}
		if col, _, ok := e.cols.Find(over.TaskID); ok {
			return col, true
		}
	}
	switch over.Column {
	case domain.ColumnTodo, domain.ColumnInProgress, domain.ColumnDone:
		return over.Column, true
	}
	return "", false
}

// buildBatch enumerates the destination column and, for cross-column moves,
// the remaining source column, assigning order indexes. The moved task is
// listed only under its destination.
func (e *Engine) buildBatch(source, dest domain.Column) []domain.ReorderEntry {
	seen := make(map[string]struct{})
	var batch []domain.ReorderEntry
	appendColumn := func(col domain.Column) {
		status := col.Status()
		for i, t := range e.cols.Tasks(col) {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			batch = append(batch, domain.ReorderEntry{ID: t.ID, Order: i, Status: status})
		}
	}
	appendColumn(dest)
	if source != dest {
		appendColumn(source)
	}
	return batch
}

// Cancel abandons the session without building a commit.
func (e *Engine) Cancel() { e.reset() }

func (e *Engine) reset() {
	e.phase = PhaseIdle
	e.taskID = ""
	e.source = ""
	e.origin = Point{}
}

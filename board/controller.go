package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// ErrRoleInsufficient is returned when a viewer-role user attempts a
// mutation. It is raised locally, before any network call.
var ErrRoleInsufficient = errors.New("role does not permit modification")

// ErrNotLoaded is returned when an operation runs before Load succeeded.
var ErrNotLoaded = errors.New("board not loaded")

// ErrUnknownLabel is returned when a label mutation names an id the board
// does not have.
var ErrUnknownLabel = errors.New("unknown label")

// API is the slice of the backend surface the controller depends on.
type API interface {
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	GetBoardTasks(ctx context.Context, boardID string) (json.RawMessage, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ReorderTasks(ctx context.Context, boardID string, batch []domain.ReorderEntry) error
	UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error)
}

// NoticeLevel classifies transient user-facing notifications.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient user-facing notification.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Option customizes a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger replaces the default logger.
func WithControllerLogger(l *log.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

// WithNotifier installs the callback that surfaces transient notices.
func WithNotifier(fn func(Notice)) ControllerOption {
	return func(c *Controller) { c.notify = fn }
}

// Controller owns the canonical column state for one board view and exposes
// the task, label and board operations with optimistic-then-confirm
// semantics. All methods are safe for concurrent use, though the intended
// caller is a single UI event loop.
type Controller struct {
	api      API
	log      *log.Logger
	notify   func(Notice)
	viewerID string

	mu      sync.Mutex
	loaded  bool
	boardID string
	board   domain.Board
	role    domain.Role
	cols    ColumnSet
	engine  *Engine
}

// NewController creates a controller for the given viewer.
func NewController(api API, viewerID string, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:      api,
		viewerID: viewerID,
		log:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) surface(level NoticeLevel, msg string) {
	if c.notify != nil {
		c.notify(Notice{Level: level, Message: msg})
	}
}

// Load fetches board metadata and tasks and resolves the viewer's role.
// NotFound and Forbidden from the API propagate unchanged so the caller can
// navigate away.
func (c *Controller) Load(ctx context.Context, boardID string) (err error) {
	metrics, ctx := newLoadMetrics(ctx, c.log, boardID)
	defer func() { metrics.Done(err) }()

	fetchStart := time.Now()
	board, err := c.api.GetBoard(ctx, boardID)
	metrics.ObserveBoardFetch(time.Since(fetchStart))
	if err != nil {
		metrics.SetErrorStage("fetch_board")
		return err
	}

	fetchStart = time.Now()
	raw, err := c.api.GetBoardTasks(ctx, boardID)
	metrics.ObserveTaskFetch(time.Since(fetchStart))
	if err != nil {
		metrics.SetErrorStage("fetch_tasks")
		return err
	}

	cols, err := Normalize(raw, board.Labels, c.log)
	if err != nil {
		metrics.SetErrorStage("normalize")
		return err
	}
	metrics.SetTasksLoaded(cols.Total())

	role := board.RoleOf(c.viewerID)

	c.mu.Lock()
	c.loaded = true
	c.boardID = boardID
	c.board = board
	c.role = role
	c.cols = cols
	c.engine = NewEngine(&c.cols, !role.CanEdit())
	c.mu.Unlock()
	return nil
}

// Refresh refetches task state from the server and replaces the local
// columns. It is the rollback and convergence path for every mutation.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	boardID := c.boardID
	labels := c.board.Labels
	c.mu.Unlock()

	raw, err := c.api.GetBoardTasks(ctx, boardID)
	if err != nil {
		return err
	}
	cols, err := Normalize(raw, labels, c.log)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cols = cols
	c.engine = NewEngine(&c.cols, !c.role.CanEdit())
	c.mu.Unlock()
	return nil
}

// refreshBoard refetches board metadata (labels, collaborators, title) and
// then tasks, used after label mutations whose effects cascade into tasks.
func (c *Controller) refreshBoard(ctx context.Context) error {
	c.mu.Lock()
	boardID := c.boardID
	c.mu.Unlock()

	board, err := c.api.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.board = board
	c.role = board.RoleOf(c.viewerID)
	c.mu.Unlock()
	return c.Refresh(ctx)
}

// Columns returns a snapshot of the current column state.
func (c *Controller) Columns() ColumnSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cols.Clone()
}

// Board returns the loaded board metadata.
func (c *Controller) Board() domain.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board
}

// Role returns the viewer's resolved role on the loaded board.
func (c *Controller) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Controller) guardEdit() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return "", ErrNotLoaded
	}
	if !c.role.CanEdit() {
		return "", ErrRoleInsufficient
	}
	return c.boardID, nil
}

// CreateTask creates a task and refetches: initial placement order is
// server-determined, so there is no optimistic path here.
func (c *Controller) CreateTask(ctx context.Context, draft domain.TaskDraft) error {
	boardID, err := c.guardEdit()
	if err != nil {
		return err
	}
	draft.BoardID = boardID
	if draft.Status == "" {
		draft.Status = domain.StatusTodo
	}
	if _, err := c.api.CreateTask(ctx, draft); err != nil {
		c.surface(NoticeError, "Failed to create task")
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("refresh after create failed")
	}
	return nil
}

// UpdateTask optimistically applies the patch to the matching in-memory
// task, wherever it currently sits, then confirms with the server. On
// failure it surfaces an error and refetches to roll back.
func (c *Controller) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	if _, err := c.guardEdit(); err != nil {
		return err
	}

	c.mu.Lock()
	if col, idx, ok := c.cols.Find(id); ok {
		tasks := c.cols.Tasks(col)
		patch.Apply(&tasks[idx])
	}
	c.mu.Unlock()

	if _, err := c.api.UpdateTask(ctx, id, patch); err != nil {
		c.surface(NoticeError, "Update failed")
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.WithError(rerr).Warn("rollback refresh failed")
		}
		return err
	}
	return nil
}

// DeleteTask removes the task locally, then issues the delete. Failures are
// surfaced; there is no silent retry.
func (c *Controller) DeleteTask(ctx context.Context, id string) error {
	if _, err := c.guardEdit(); err != nil {
		return err
	}

	c.mu.Lock()
	if col, idx, ok := c.cols.Find(id); ok {
		tasks := c.cols.Tasks(col)
		c.cols.setTasks(col, append(tasks[:idx:idx], tasks[idx+1:]...))
	}
	c.mu.Unlock()

	if err := c.api.DeleteTask(ctx, id); err != nil {
		c.surface(NoticeError, "Delete failed")
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.WithError(rerr).Warn("rollback refresh failed")
		}
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("refresh after delete failed")
	}
	return nil
}

// replaceLabels sends the full new label array and refetches board and task
// state, since label renames and deletions change task-visible labels.
func (c *Controller) replaceLabels(ctx context.Context, labels []domain.Label) error {
	boardID, err := c.guardEdit()
	if err != nil {
		return err
	}
	patch := domain.BoardPatch{Labels: &labels}
	if _, err := c.api.UpdateBoard(ctx, boardID, patch); err != nil {
		c.surface(NoticeError, "Failed to update labels")
		return err
	}
	if err := c.refreshBoard(ctx); err != nil {
		c.log.WithError(err).Warn("refresh after label update failed")
	}
	return nil
}

// CreateLabel adds a label to the board's set. The server assigns the
// identifier.
func (c *Controller) CreateLabel(ctx context.Context, name, color string) error {
	c.mu.Lock()
	labels := append([]domain.Label(nil), c.board.Labels...)
	c.mu.Unlock()
	labels = append(labels, domain.Label{Name: name, Color: color})
	return c.replaceLabels(ctx, labels)
}

// UpdateLabel renames or recolors a label.
func (c *Controller) UpdateLabel(ctx context.Context, id, name, color string) error {
	c.mu.Lock()
	if _, ok := c.board.LabelByID(id); !ok {
		c.mu.Unlock()
		return ErrUnknownLabel
	}
	labels := append([]domain.Label(nil), c.board.Labels...)
	c.mu.Unlock()
	for i := range labels {
		if labels[i].ID == id {
			labels[i].Name = name
			labels[i].Color = color
		}
	}
	return c.replaceLabels(ctx, labels)
}

// DeleteLabel removes a label. The backend cascades removal of the label
// from all tasks; the refetch makes that visible.
func (c *Controller) DeleteLabel(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, ok := c.board.LabelByID(id); !ok {
		c.mu.Unlock()
		return ErrUnknownLabel
	}
	labels := make([]domain.Label, 0, len(c.board.Labels))
	for _, l := range c.board.Labels {
		if l.ID != id {
			labels = append(labels, l)
		}
	}
	c.mu.Unlock()
	return c.replaceLabels(ctx, labels)
}

// RenameBoard renames the board. The local title only changes after the
// server confirms.
func (c *Controller) RenameBoard(ctx context.Context, title string) error {
	boardID, err := c.guardEdit()
	if err != nil {
		return err
	}
	board, err := c.api.UpdateBoard(ctx, boardID, domain.BoardPatch{Title: &title})
	if err != nil {
		c.surface(NoticeError, "Rename failed")
		return err
	}
	c.mu.Lock()
	c.board = board
	c.mu.Unlock()
	return nil
}

// PressCard starts tracking a pointer press on a card. Viewer-role users
// never enter a drag session.
func (c *Controller) PressCard(taskID string, at Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil {
		return false
	}
	return c.engine.Press(taskID, at)
}

// MovePointer feeds pointer movement into the drag engine.
func (c *Controller) MovePointer(at Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.Move(at)
	}
}

// Dragging reports whether a drag session is active.
func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine != nil && c.engine.Phase() == PhaseDragging
}

// HoverCard applies the optimistic reorder for the card under the pointer.
func (c *Controller) HoverCard(overID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.HoverTask(overID)
	}
}

// HoverColumn applies the optimistic move into a column drop zone.
func (c *Controller) HoverColumn(col domain.Column) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.HoverColumn(col)
	}
}

// CancelDrag abandons the current gesture without persisting.
func (c *Controller) CancelDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		c.engine.Cancel()
	}
}

// DropCard completes the gesture and persists the final order. On failure
// the optimistic move is discarded by refetching authoritative state; on
// success the state is refetched anyway, because the server's order is the
// one that counts.
func (c *Controller) DropCard(ctx context.Context, over Target) error {
	c.mu.Lock()
	if c.engine == nil {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	commit, ok := c.engine.Drop(over)
	boardID := c.boardID
	c.mu.Unlock()
	if !ok {
		return nil
	}

	metrics, ctx := newCommitMetrics(ctx, c.log, commit)
	err := c.api.ReorderTasks(ctx, boardID, commit.Batch)
	metrics.Done(err)
	if err != nil {
		c.surface(NoticeError, "Failed to save task order")
		if rerr := c.Refresh(ctx); rerr != nil {
			c.log.WithError(rerr).Warn("rollback refresh failed")
		}
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("refresh after reorder failed")
	}
	return nil
}

// HandleRemoteEvent absorbs a foreign realtime event: surface who did what,
// then refetch. Echo suppression happens upstream in the realtime bridge;
// this method assumes the event is from another collaborator.
func (c *Controller) HandleRemoteEvent(ctx context.Context, ev domain.Event) {
	actor := ev.ActorName
	if actor == "" {
		actor = "Someone"
	}
	switch ev.Type {
	case domain.EventTaskCreated:
		c.surface(NoticeInfo, actor+" added a task")
	case domain.EventTaskUpdated:
		c.surface(NoticeInfo, actor+" updated a task")
	case domain.EventTaskDeleted:
		c.surface(NoticeInfo, actor+" deleted a task")
	case domain.EventTasksReordered:
		note := actor + " reordered tasks"
		if data, err := ev.ReorderData(); err == nil && len(data.Entries) > 0 {
			note = fmt.Sprintf("%s reordered %d tasks", actor, len(data.Entries))
		}
		c.surface(NoticeInfo, note)
	case domain.EventBoardUpdated:
		note := actor + " updated the board"
		if data, err := ev.BoardData(); err == nil && data.Title != "" {
			note = fmt.Sprintf("%s renamed the board to %q", actor, data.Title)
		}
		c.surface(NoticeInfo, note)
	default:
		return
	}
	if ev.Type == domain.EventBoardUpdated {
		if err := c.refreshBoard(ctx); err != nil {
			c.log.WithError(err).Warn("refresh after remote board update failed")
		}
		return
	}
	if err := c.Refresh(ctx); err != nil {
		c.log.WithError(err).Warn("refresh after remote event failed")
	}
}

package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"boardsync/domain"
)

// Store errors surfaced to handlers.
var (
	ErrBoardNotFound = storeError("board not found")
	ErrTaskNotFound  = storeError("task not found")
	ErrTokenNotFound = storeError("share token not found")
)

type storeError string

func (e storeError) Error() string { return string(e) }

// ListFilter narrows a board listing.
type ListFilter struct {
	Search string
	Filter string // "all", "own" or "shared"
	Page   int
	Limit  int
}

// ListResult is one page of boards plus pagination totals.
type ListResult struct {
	Boards     []domain.Board
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// MemoryStore keeps boards and tasks in process memory. It is the backing
// store of the reference server; everything is lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	boards      map[string]*domain.Board
	tasks       map[string]map[string]*domain.Task // boardID -> taskID -> task
	taskBoard   map[string]string                  // taskID -> boardID
	shareTokens map[string]string                  // token -> boardID
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		boards:      make(map[string]*domain.Board),
		tasks:       make(map[string]map[string]*domain.Task),
		taskBoard:   make(map[string]string),
		shareTokens: make(map[string]string),
	}
}

// CreateBoard creates a board owned by ownerID.
func (s *MemoryStore) CreateBoard(ownerID, ownerName, title, description string) domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	board := &domain.Board{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		OwnerID:     ownerID,
		Collaborators: []domain.Collaborator{
			{UserID: ownerID, Name: ownerName, Role: domain.RoleOwner},
		},
	}
	s.boards[board.ID] = board
	s.tasks[board.ID] = make(map[string]*domain.Task)
	return *board
}

// GetBoard returns a copy of the board.
func (s *MemoryStore) GetBoard(id string) (domain.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, ok := s.boards[id]
	if !ok {
		return domain.Board{}, ErrBoardNotFound
	}
	return cloneBoard(board), nil
}

// ListBoards returns the boards visible to userID, filtered and paged.
func (s *MemoryStore) ListBoards(userID string, f ListFilter) ListResult {
	s.mu.RLock()
	matched := make([]domain.Board, 0)
	for _, board := range s.boards {
		if board.RoleOf(userID) == "" {
			continue
		}
		switch f.Filter {
		case "own":
			if board.OwnerID != userID {
				continue
			}
		case "shared":
			if board.OwnerID == userID {
				continue
			}
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(board.Title), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, cloneBoard(board))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Title < matched[j].Title })

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = 20
	}
	total := len(matched)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return ListResult{
		Boards:     matched[start:end],
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

// UpdateBoard applies the patch. A label replacement cascades: label ids no
// longer present are stripped from every task on the board.
func (s *MemoryStore) UpdateBoard(id string, patch domain.BoardPatch) (domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[id]
	if !ok {
		return domain.Board{}, ErrBoardNotFound
	}
	if patch.Title != nil {
		board.Title = *patch.Title
	}
	if patch.Description != nil {
		board.Description = *patch.Description
	}
	if patch.Labels != nil {
		labels := make([]domain.Label, len(*patch.Labels))
		copy(labels, *patch.Labels)
		for i := range labels {
			if labels[i].ID == "" {
				labels[i].ID = uuid.NewString()
			}
		}
		board.Labels = labels

		kept := make(map[string]bool, len(labels))
		for _, l := range labels {
			kept[l.ID] = true
		}
		for _, task := range s.tasks[id] {
			filtered := task.LabelIDs[:0:0]
			for _, lid := range task.LabelIDs {
				if kept[lid] {
					filtered = append(filtered, lid)
				}
			}
			task.LabelIDs = filtered
		}
	}
	return cloneBoard(board), nil
}

// CreateShareLink mints (or returns the existing) share token for the board.
func (s *MemoryStore) CreateShareLink(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[id]
	if !ok {
		return "", ErrBoardNotFound
	}
	if board.ShareToken != "" {
		return board.ShareToken, nil
	}
	token := uuid.NewString()
	board.ShareToken = token
	s.shareTokens[token] = id
	return token, nil
}

// RevokeShareLink invalidates the board's share token.
func (s *MemoryStore) RevokeShareLink(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[id]
	if !ok {
		return ErrBoardNotFound
	}
	delete(s.shareTokens, board.ShareToken)
	board.ShareToken = ""
	return nil
}

// JoinBoard adds userID to the board behind the share token, as an editor.
// Joining a board the user is already on is a no-op.
func (s *MemoryStore) JoinBoard(token, userID, userName string) (domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	boardID, ok := s.shareTokens[token]
	if !ok {
		return domain.Board{}, ErrTokenNotFound
	}
	board := s.boards[boardID]
	if board.RoleOf(userID) == "" {
		board.Collaborators = append(board.Collaborators, domain.Collaborator{
			UserID: userID,
			Name:   userName,
			Role:   domain.RoleEditor,
		})
	}
	return cloneBoard(board), nil
}

// SetCollaboratorRole changes the role of an existing collaborator. The
// owner's own entry cannot be downgraded.
func (s *MemoryStore) SetCollaboratorRole(boardID, userID string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	if userID == board.OwnerID {
		return storeError("cannot change owner role")
	}
	for i := range board.Collaborators {
		if board.Collaborators[i].UserID == userID {
			board.Collaborators[i].Role = role
			return nil
		}
	}
	return storeError("collaborator not found")
}

// RemoveCollaborator drops a collaborator from the board.
func (s *MemoryStore) RemoveCollaborator(boardID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	if userID == board.OwnerID {
		return storeError("cannot remove owner")
	}
	for i := range board.Collaborators {
		if board.Collaborators[i].UserID == userID {
			board.Collaborators = append(board.Collaborators[:i:i], board.Collaborators[i+1:]...)
			return nil
		}
	}
	return storeError("collaborator not found")
}

// CreateTask appends a task to the end of its status group.
func (s *MemoryStore) CreateTask(draft domain.TaskDraft) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	boardTasks, ok := s.tasks[draft.BoardID]
	if !ok {
		return domain.Task{}, ErrBoardNotFound
	}
	status := draft.Status
	if status == "" {
		status = domain.StatusTodo
	}
	order := 0
	for _, t := range boardTasks {
		if t.Status == status {
			order++
		}
	}
	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Assignee:    draft.Assignee,
		DueDate:     draft.DueDate,
		LabelIDs:    append([]string(nil), draft.LabelIDs...),
		Priority:    draft.Priority,
		Status:      status,
		Order:       order,
	}
	boardTasks[task.ID] = task
	s.taskBoard[task.ID] = draft.BoardID
	return *task, nil
}

// GetTask returns a copy of the task and the board it belongs to.
func (s *MemoryStore) GetTask(id string) (domain.Task, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	boardID, ok := s.taskBoard[id]
	if !ok {
		return domain.Task{}, "", ErrTaskNotFound
	}
	return *s.tasks[boardID][id], boardID, nil
}

// UpdateTask applies the patch to the task.
func (s *MemoryStore) UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	boardID, ok := s.taskBoard[id]
	if !ok {
		return domain.Task{}, ErrTaskNotFound
	}
	task := s.tasks[boardID][id]
	patch.Apply(task)
	return *task, nil
}

// DeleteTask removes the task.
func (s *MemoryStore) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	boardID, ok := s.taskBoard[id]
	if !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks[boardID], id)
	delete(s.taskBoard, id)
	return nil
}

// KanbanGroups returns the board's tasks grouped by status, ordered. All
// three groups are always present so clients can render empty columns.
func (s *MemoryStore) KanbanGroups(boardID string) (map[string][]domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	boardTasks, ok := s.tasks[boardID]
	if !ok {
		return nil, ErrBoardNotFound
	}
	groups := map[string][]domain.Task{
		string(domain.StatusTodo):       {},
		string(domain.StatusInProgress): {},
		string(domain.StatusDone):       {},
	}
	for _, task := range boardTasks {
		key := string(task.Status)
		groups[key] = append(groups[key], *task)
	}
	for key := range groups {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Order < group[j].Order })
		groups[key] = group
	}
	return groups, nil
}

// ApplyReorder applies a reorder batch as a unit: each entry sets the order
// and status of one task. Entries naming unknown tasks fail the whole batch
// before any mutation.
func (s *MemoryStore) ApplyReorder(boardID string, entries []domain.ReorderEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	boardTasks, ok := s.tasks[boardID]
	if !ok {
		return ErrBoardNotFound
	}
	for _, e := range entries {
		if _, ok := boardTasks[e.ID]; !ok {
			return ErrTaskNotFound
		}
	}
	for _, e := range entries {
		task := boardTasks[e.ID]
		task.Order = e.Order
		if e.Status != "" {
			task.Status = e.Status
		}
	}
	return nil
}

func cloneBoard(b *domain.Board) domain.Board {
	out := *b
	out.Collaborators = append([]domain.Collaborator(nil), b.Collaborators...)
	out.Labels = append([]domain.Label(nil), b.Labels...)
	return out
}

package server

import (
	"context"

	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

// Storage abstracts the board/task store for handlers.
type Storage interface {
	CreateBoard(ownerID, ownerName, title, description string) domain.Board
	GetBoard(id string) (domain.Board, error)
	ListBoards(userID string, f ListFilter) ListResult
	UpdateBoard(id string, patch domain.BoardPatch) (domain.Board, error)
	CreateShareLink(id string) (string, error)
	RevokeShareLink(id string) error
	JoinBoard(token, userID, userName string) (domain.Board, error)
	SetCollaboratorRole(boardID, userID string, role domain.Role) error
	RemoveCollaborator(boardID, userID string) error
	CreateTask(draft domain.TaskDraft) (domain.Task, error)
	GetTask(id string) (domain.Task, string, error)
	UpdateTask(id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(id string) error
	KanbanGroups(boardID string) (map[string][]domain.Task, error)
	ApplyReorder(boardID string, entries []domain.ReorderEntry) error
}

// Authenticator is implemented by types able to extract caller identity from
// Authorization headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}

// Deduper prevents reprocessing of retried reorder batches.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, boardID, key string) (bool, error)
	// Remove deletes a previously added key, used when applying the batch fails.
	Remove(ctx context.Context, boardID, key string) error
}

// Broadcaster fans board events out to stream subscribers and feeds the
// per-board event streams.
type Broadcaster interface {
	Publish(ctx context.Context, ev domain.Event)
	Subscribe(ctx context.Context, boardID string) (*redis.PubSub, <-chan *redis.Message)
}

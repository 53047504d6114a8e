package domain

import "encoding/json"

// Event kinds broadcast on a board channel.
const (
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskDeleted    = "task-deleted"
	EventTasksReordered = "tasks-reordered"
	EventBoardUpdated   = "board-updated"
)

// KnownEventType reports whether t is a kind this client understands.
func KnownEventType(t string) bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted,
		EventTasksReordered, EventBoardUpdated:
		return true
	}
	return false
}

// Event is a board mutation broadcast to all subscribers of the board
// channel. ActorID identifies the user who performed the mutation so clients
// can suppress echoes of their own actions.
type Event struct {
	BoardID   string          `json:"boardId"`
	Type      string          `json:"type"`
	ActorID   string          `json:"actorId"`
	ActorName string          `json:"actorName,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Time      int64           `json:"time"`
}

// TaskEventData is the payload of task-created, task-updated and
// task-deleted events.
type TaskEventData struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title,omitempty"`
}

// ReorderEventData is the payload of tasks-reordered events.
type ReorderEventData struct {
	Entries []ReorderEntry `json:"entries"`
}

// BoardEventData is the payload of board-updated events.
type BoardEventData struct {
	Title string `json:"title,omitempty"`
}

// TaskData decodes the payload of a task event.
func (e Event) TaskData() (TaskEventData, error) {
	var d TaskEventData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// ReorderData decodes the payload of a tasks-reordered event.
func (e Event) ReorderData() (ReorderEventData, error) {
	var d ReorderEventData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

// BoardData decodes the payload of a board-updated event.
func (e Event) BoardData() (BoardEventData, error) {
	var d BoardEventData
	err := json.Unmarshal(e.Data, &d)
	return d, err
}

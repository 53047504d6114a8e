package server

import (
	"testing"

	"boardsync/domain"
)

func TestCreateTaskAppendsToStatusGroup(t *testing.T) {
	store := NewMemoryStore()
	board := store.CreateBoard("u1", "Uma", "Board", "")

	for i := 0; i < 3; i++ {
		task, err := store.CreateTask(domain.TaskDraft{BoardID: board.ID, Title: "t", Status: domain.StatusTodo})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if task.Order != i {
			t.Fatalf("task %d got order %d", i, task.Order)
		}
	}
	task, err := store.CreateTask(domain.TaskDraft{BoardID: board.ID, Title: "other group"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != domain.StatusTodo || task.Order != 3 {
		t.Fatalf("draft without status = %+v", task)
	}
}

func TestJoinBoardIdempotent(t *testing.T) {
	store := NewMemoryStore()
	board := store.CreateBoard("u1", "Uma", "Board", "")
	token, err := store.CreateShareLink(board.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}

	if _, err := store.JoinBoard(token, "u2", "Max"); err != nil {
		t.Fatalf("join: %v", err)
	}
	joined, err := store.JoinBoard(token, "u2", "Max")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	count := 0
	for _, c := range joined.Collaborators {
		if c.UserID == "u2" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("rejoin duplicated the collaborator: %+v", joined.Collaborators)
	}
}

func TestCreateShareLinkStable(t *testing.T) {
	store := NewMemoryStore()
	board := store.CreateBoard("u1", "Uma", "Board", "")

	first, err := store.CreateShareLink(board.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	second, err := store.CreateShareLink(board.ID)
	if err != nil {
		t.Fatalf("share again: %v", err)
	}
	if first != second {
		t.Fatal("re-sharing must keep the existing token")
	}
}

func TestListBoardsOwnVsShared(t *testing.T) {
	store := NewMemoryStore()
	own := store.CreateBoard("u1", "Uma", "Mine", "")
	other := store.CreateBoard("u2", "Max", "Theirs", "")
	token, _ := store.CreateShareLink(other.ID)
	if _, err := store.JoinBoard(token, "u1", "Uma"); err != nil {
		t.Fatalf("join: %v", err)
	}

	all := store.ListBoards("u1", ListFilter{})
	if all.Total != 2 {
		t.Fatalf("all total = %d", all.Total)
	}
	owned := store.ListBoards("u1", ListFilter{Filter: "own"})
	if owned.Total != 1 || owned.Boards[0].ID != own.ID {
		t.Fatalf("own = %+v", owned.Boards)
	}
	shared := store.ListBoards("u1", ListFilter{Filter: "shared"})
	if shared.Total != 1 || shared.Boards[0].ID != other.ID {
		t.Fatalf("shared = %+v", shared.Boards)
	}
}

package server

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"boardsync/board"
	"boardsync/client"
	"boardsync/domain"
	"boardsync/realtime"
)

// TestCollaborationRoundTrip drives the full loop through a live server: one
// collaborator drags a card across columns and the other, connected only via
// the event stream, converges on the same state. The actor's own bridge must
// stay silent.
func TestCollaborationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.e)
	defer srv.Close()

	quiet := log.New()
	quiet.SetOutput(io.Discard)
	ctx := context.Background()

	ownerAPI := client.New(srv.URL, signToken(t, "owner-1", "Olive"), client.WithLogger(quiet))
	ownerID, err := ownerAPI.ViewerID()
	if err != nil {
		t.Fatalf("owner id: %v", err)
	}
	ownerCtl := board.NewController(ownerAPI, ownerID, board.WithControllerLogger(quiet))
	if err := ownerCtl.Load(ctx, env.board.ID); err != nil {
		t.Fatalf("owner load: %v", err)
	}
	if err := ownerCtl.CreateTask(ctx, domain.TaskDraft{Title: "alpha"}); err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if err := ownerCtl.CreateTask(ctx, domain.TaskDraft{Title: "beta"}); err != nil {
		t.Fatalf("create beta: %v", err)
	}

	editorAPI := client.New(srv.URL, signToken(t, "editor-1", "Eddy"), client.WithLogger(quiet))
	editorID, err := editorAPI.ViewerID()
	if err != nil {
		t.Fatalf("editor id: %v", err)
	}
	var noticeMu sync.Mutex
	var notices []board.Notice
	editorCtl := board.NewController(editorAPI, editorID,
		board.WithControllerLogger(quiet),
		board.WithNotifier(func(n board.Notice) {
			noticeMu.Lock()
			notices = append(notices, n)
			noticeMu.Unlock()
		}))
	if err := editorCtl.Load(ctx, env.board.ID); err != nil {
		t.Fatalf("editor load: %v", err)
	}

	var ownerEchoes atomic.Int32
	ownerBridge := realtime.NewBridge(ownerAPI, ownerID,
		func(context.Context, domain.Event) { ownerEchoes.Add(1) },
		realtime.WithBackoff(50*time.Millisecond, 100*time.Millisecond),
		realtime.WithLogger(quiet))
	ownerBridge.Join(ctx, env.board.ID)
	defer ownerBridge.Leave()

	editorBridge := realtime.NewBridge(editorAPI, editorID,
		func(ctx context.Context, ev domain.Event) { editorCtl.HandleRemoteEvent(ctx, ev) },
		realtime.WithBackoff(50*time.Millisecond, 100*time.Millisecond),
		realtime.WithLogger(quiet))
	editorBridge.Join(ctx, env.board.ID)
	defer editorBridge.Leave()

	// Give the pubsub subscriptions a moment to land before mutating.
	time.Sleep(150 * time.Millisecond)

	cols := ownerCtl.Columns()
	if len(cols.Todo) != 2 || cols.Todo[0].Title != "alpha" {
		t.Fatalf("owner todo = %+v", cols.Todo)
	}
	taskID := cols.Todo[0].ID

	if !ownerCtl.PressCard(taskID, board.Point{}) {
		t.Fatal("press refused")
	}
	ownerCtl.MovePointer(board.Point{X: 12, Y: 0})
	ownerCtl.HoverColumn(domain.ColumnInProgress)
	if err := ownerCtl.DropCard(ctx, board.Target{Column: domain.ColumnInProgress}); err != nil {
		t.Fatalf("drop: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		got := editorCtl.Columns()
		if len(got.InProgress) == 1 && got.InProgress[0].ID == taskID && len(got.Todo) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("editor never converged: %+v", got)
		}
		time.Sleep(25 * time.Millisecond)
	}

	noticeMu.Lock()
	noticed := len(notices)
	noticeMu.Unlock()
	if noticed == 0 {
		t.Fatal("editor received no notice for the remote mutation")
	}
	if n := ownerEchoes.Load(); n != 0 {
		t.Fatalf("actor received %d echoes of its own mutations", n)
	}
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"

	"boardsync/domain"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "name": "Test User"})
	s, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestNotReadyGuard(t *testing.T) {
	c := New("http://example.invalid", "")
	if c.Ready() {
		t.Fatal("client without token reports ready")
	}
	if _, err := c.GetBoard(context.Background(), "b1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := c.DeleteTask(context.Background(), "t1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestViewerIDFromToken(t *testing.T) {
	c := New("http://example.invalid", signedToken(t, "user-42"))
	got, err := c.ViewerID()
	if err != nil {
		t.Fatalf("ViewerID: %v", err)
	}
	if got != "user-42" {
		t.Fatalf("viewer id = %q", got)
	}
}

func TestGetBoardUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/boards/b1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"b1","title":"Sprint","ownerId":"user-1"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	board, err := c.GetBoard(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetBoard: %v", err)
	}
	if board.ID != "b1" || board.Title != "Sprint" || board.OwnerID != "user-1" {
		t.Fatalf("board = %+v", board)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrNotAuthenticated},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}))
		c := New(srv.URL, "tok")
		_, err := c.GetBoard(context.Background(), "b1")
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
			t.Fatalf("status %d: message not carried: %v", tc.status, err)
		}
	}
}

func TestServerErrorIsNotSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.GetBoard(context.Background(), "b1")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sentinel := range []error{ErrNotAuthenticated, ErrForbidden, ErrNotFound} {
		if errors.Is(err, sentinel) {
			t.Fatalf("500 mapped to %v", sentinel)
		}
	}
}

func TestReorderTasksSendsBatchAndIdempotencyKey(t *testing.T) {
	var seen struct {
		Tasks   []domain.ReorderEntry `json:"tasks"`
		BoardID string                `json:"boardId"`
	}
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/tasks/reorder" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		key = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	batch := []domain.ReorderEntry{
		{ID: "a", Order: 0, Status: domain.StatusInProgress},
		{ID: "b", Order: 0, Status: domain.StatusTodo},
	}
	c := New(srv.URL, "tok")
	if err := c.ReorderTasks(context.Background(), "b1", batch); err != nil {
		t.Fatalf("ReorderTasks: %v", err)
	}
	if key == "" {
		t.Fatal("missing Idempotency-Key header")
	}
	if seen.BoardID != "b1" || len(seen.Tasks) != 2 || seen.Tasks[0].ID != "a" {
		t.Fatalf("body = %+v", seen)
	}
}

func TestGetBoardTasksReturnsRawPayload(t *testing.T) {
	payload := `{"success":true,"data":{"todo":[{"id":"t1","title":"x","status":"todo","order":0}],"in-progress":[],"done":[]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("boardId"); got != "b1" {
			t.Fatalf("boardId = %q", got)
		}
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	raw, err := c.GetBoardTasks(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetBoardTasks: %v", err)
	}
	var parsed map[string]any
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("raw payload not JSON: %v", err)
	}
	if _, ok := parsed["data"]; !ok {
		t.Fatalf("payload lost its wrapper: %s", raw)
	}
}

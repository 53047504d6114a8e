// Package client implements the HTTP JSON client for the board API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

const maxResponseSize = 4 << 20 // 4 MiB

// Client talks to the board API with a bearer credential. A Client without a
// credential refuses every call with ErrNotAuthenticated.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for the given base URL and bearer token. The token may
// be empty; the client then stays in the "not ready" guard state.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		log:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready reports whether a credential is present.
func (c *Client) Ready() bool { return c.token != "" }

// ViewerID extracts the subject claim from the bearer token. The token is
// not verified here; verification is the server's job. The subject is only
// used locally, for echo suppression on the realtime channel.
func (c *Client) ViewerID() (string, error) {
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(c.token, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any, headers map[string]string) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if err := sonic.Unmarshal(data, &msg); err == nil {
			apiErr.Message = msg.Message
		}
		c.log.WithFields(log.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("api request failed")
		return apiErr
	}

	if out != nil {
		return sonic.Unmarshal(data, out)
	}
	return nil
}

type boardEnvelope struct {
	Data domain.Board `json:"data"`
}

type taskEnvelope struct {
	Data domain.Task `json:"data"`
}

// BoardPage is one page of a board listing.
type BoardPage struct {
	Boards     []domain.Board
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// GetBoard fetches board metadata. Missing boards and boards the viewer is
// not a member of fail with ErrNotFound and ErrForbidden respectively.
func (c *Client) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	var env boardEnvelope
	err := c.do(ctx, http.MethodGet, "/api/boards/"+id, nil, nil, &env, nil)
	return env.Data, err
}

// ListBoards fetches one page of boards visible to the viewer. Params come
// from a listquery.State.
func (c *Client) ListBoards(ctx context.Context, params url.Values) (BoardPage, error) {
	var env struct {
		Data       []domain.Board `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			Limit      int `json:"limit"`
			Total      int `json:"total"`
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/boards", params, nil, &env, nil); err != nil {
		return BoardPage{}, err
	}
	return BoardPage{
		Boards:     env.Data,
		Page:       env.Pagination.Page,
		Limit:      env.Pagination.Limit,
		Total:      env.Pagination.Total,
		TotalPages: env.Pagination.TotalPages,
	}, nil
}

// GetBoardTasks fetches the board's tasks grouped by status. The payload is
// returned raw because its shape varies by backend version; board.Normalize
// is the one place that interprets it.
func (c *Client) GetBoardTasks(ctx context.Context, boardID string) (json.RawMessage, error) {
	q := url.Values{"boardId": {boardID}}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/tasks/kanban", q, nil, &raw, nil)
	return raw, err
}

// CreateTask creates a task and returns the server's version of it.
func (c *Client) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	var env taskEnvelope
	err := c.do(ctx, http.MethodPost, "/api/tasks", nil, draft, &env, nil)
	return env.Data, err
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var env taskEnvelope
	err := c.do(ctx, http.MethodPatch, "/api/tasks/"+id, nil, patch, &env, nil)
	return env.Data, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+id, nil, nil, nil, nil)
}

// ReorderTasks persists a reorder batch. The batch may span two status
// groups; the server applies it as a unit. An idempotency key guards
// against duplicate delivery on retried requests.
func (c *Client) ReorderTasks(ctx context.Context, boardID string, batch []domain.ReorderEntry) error {
	body := struct {
		Tasks   []domain.ReorderEntry `json:"tasks"`
		BoardID string                `json:"boardId"`
	}{Tasks: batch, BoardID: boardID}
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	return c.do(ctx, http.MethodPatch, "/api/tasks/reorder", nil, body, nil, headers)
}

// UpdateBoard applies a partial board update. Labels, when present, replace
// the whole set.
func (c *Client) UpdateBoard(ctx context.Context, id string, patch domain.BoardPatch) (domain.Board, error) {
	var env boardEnvelope
	err := c.do(ctx, http.MethodPatch, "/api/boards/"+id, nil, patch, &env, nil)
	return env.Data, err
}

// CreateShareLink enables join-by-link for the board and returns the token.
func (c *Client) CreateShareLink(ctx context.Context, id string) (string, error) {
	var env struct {
		Data struct {
			ShareToken string `json:"shareToken"`
		} `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/boards/"+id+"/share", nil, nil, &env, nil)
	return env.Data.ShareToken, err
}

// RevokeShareLink disables join-by-link for the board.
func (c *Client) RevokeShareLink(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/boards/"+id+"/share", nil, nil, nil, nil)
}

// JoinBoard joins a shared board via its share token.
func (c *Client) JoinBoard(ctx context.Context, shareToken string) (domain.Board, error) {
	var env boardEnvelope
	err := c.do(ctx, http.MethodPost, "/api/boards/join/"+shareToken, nil, nil, &env, nil)
	return env.Data, err
}

// UpdateCollaboratorRole changes a collaborator's role on the board.
func (c *Client) UpdateCollaboratorRole(ctx context.Context, boardID, userID string, role domain.Role) error {
	body := struct {
		Role domain.Role `json:"role"`
	}{Role: role}
	return c.do(ctx, http.MethodPatch, "/api/boards/"+boardID+"/collaborators/"+userID, nil, body, nil, nil)
}

// RemoveCollaborator removes a collaborator from the board.
func (c *Client) RemoveCollaborator(ctx context.Context, boardID, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/boards/"+boardID+"/collaborators/"+userID, nil, nil, nil, nil)
}

// OpenEventStream opens the board's SSE event channel. The caller owns the
// returned body and must close it to leave the channel.
func (c *Client) OpenEventStream(ctx context.Context, boardID string) (io.ReadCloser, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/boards/"+boardID+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, bus Broadcaster, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{store: store, auth: auth, deduper: deduper, bus: bus, log: logger}

	e.Use(echoprometheus.NewMiddleware("boardsync"))
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/healthz", h.healthz)

	e.GET("/api/boards", h.listBoards)
	e.POST("/api/boards", h.createBoard)
	e.GET("/api/boards/:id", h.getBoard)
	e.PATCH("/api/boards/:id", h.updateBoard)
	e.POST("/api/boards/:id/share", h.createShareLink)
	e.DELETE("/api/boards/:id/share", h.revokeShareLink)
	e.POST("/api/boards/join/:token", h.joinBoard)
	e.PATCH("/api/boards/:id/collaborators/:userId", h.setCollaboratorRole)
	e.DELETE("/api/boards/:id/collaborators/:userId", h.removeCollaborator)
	e.GET("/api/boards/:id/events", h.streamEvents)

	e.GET("/api/tasks/kanban", h.getKanban)
	e.POST("/api/tasks", h.createTask)
	e.PATCH("/api/tasks/reorder", h.reorderTasks)
	e.PATCH("/api/tasks/:id", h.updateTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
}

type handlers struct {
	store   Storage
	auth    Authenticator
	deduper Deduper
	bus     Broadcaster
	log     *log.Logger
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

func jsonData(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(out)
}

func (h *handlers) identity(c echo.Context) (Identity, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		// EventSource cannot set headers, so streams may pass the token
		// as a query parameter instead.
		if token := c.QueryParam("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}
	return h.auth.IdentityFromAuthHeader(authHeader)
}

// boardRole authenticates the caller and resolves their role on the board.
// On failure the response is already written and handled is false.
func (h *handlers) boardRole(c echo.Context, boardID string) (Identity, domain.Board, domain.Role, bool) {
	who, err := h.identity(c)
	if err != nil {
		_ = jsonError(c, http.StatusUnauthorized, err.Error())
		return Identity{}, domain.Board{}, "", false
	}
	board, err := h.store.GetBoard(boardID)
	if err != nil {
		_ = jsonError(c, http.StatusNotFound, "board not found")
		return Identity{}, domain.Board{}, "", false
	}
	role := board.RoleOf(who.ID)
	if role == "" {
		_ = jsonError(c, http.StatusForbidden, "not a board member")
		return Identity{}, domain.Board{}, "", false
	}
	return who, board, role, true
}

func (h *handlers) healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) listBoards(c echo.Context) error {
	who, err := h.identity(c)
	if err != nil {
		return jsonError(c, http.StatusUnauthorized, err.Error())
	}
	f := ListFilter{
		Search: strings.TrimSpace(c.QueryParam("search")),
		Filter: c.QueryParam("filter"),
	}
	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return jsonError(c, http.StatusBadRequest, "invalid page")
		}
		f.Page = n
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return jsonError(c, http.StatusBadRequest, "invalid limit")
		}
		f.Limit = n
	}
	res := h.store.ListBoards(who.ID, f)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    res.Boards,
		"pagination": echo.Map{
			"page":       res.Page,
			"limit":      res.Limit,
			"total":      res.Total,
			"totalPages": res.TotalPages,
		},
	})
}

func (h *handlers) createBoard(c echo.Context) error {
	who, err := h.identity(c)
	if err != nil {
		return jsonError(c, http.StatusUnauthorized, err.Error())
	}
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := decodeBody(c, &body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(body.Title) == "" {
		return jsonError(c, http.StatusBadRequest, "title is required")
	}
	board := h.store.CreateBoard(who.ID, who.Name, body.Title, body.Description)
	return jsonData(c, http.StatusCreated, board)
}

func (h *handlers) getBoard(c echo.Context) error {
	_, board, _, ok := h.boardRole(c, c.Param("id"))
	if !ok {
		return nil
	}
	return jsonData(c, http.StatusOK, board)
}

func (h *handlers) updateBoard(c echo.Context) error {
	who, _, role, ok := h.boardRole(c, c.Param("id"))
	if !ok {
		return nil
	}
	if !role.CanEdit() {
		return jsonError(c, http.StatusForbidden, "viewer role cannot modify the board")
	}
	var patch domain.BoardPatch
	if err := decodeBody(c, &patch); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	board, err := h.store.UpdateBoard(c.Param("id"), patch)
	if err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	h.publish(c, domain.Event{
		BoardID:   board.ID,
		Type:      domain.EventBoardUpdated,
		ActorID:   who.ID,
		ActorName: who.Name,
	}, domain.BoardEventData{Title: board.Title})
	return jsonData(c, http.StatusOK, board)
}

func (h *handlers) createShareLink(c echo.Context) error {
	_, board, role, ok := h.boardRole(c, c.Param("id"))
	if !ok {
		return nil
	}
	if role != domain.RoleOwner {
		return jsonError(c, http.StatusForbidden, "only the owner can share the board")
	}
	token, err := h.store.CreateShareLink(board.ID)
	if err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	return jsonData(c, http.StatusOK, echo.Map{"shareToken": token})
}

func (h *handlers) revokeShareLink(c echo.Context) error {
	_, board, role, ok := h.boardRole(c, c.Param("id"))
	if !ok {
		return nil
	}
	if role != domain.RoleOwner {
		return jsonError(c, http.StatusForbidden, "only the owner can revoke sharing")
	}
	if err := h.store.RevokeShareLink(board.ID); err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) joinBoard(c echo.Context) error {
	who, err := h.identity(c)
	if err != nil {
		return jsonError(c, http.StatusUnauthorized, err.Error())
	}
	board, err := h.store.JoinBoard(c.Param("token"), who.ID, who.Name)
	if err != nil {
		return jsonError(c, http.StatusNotFound, "invalid share link")
	}
	return jsonData(c, http.StatusOK, board)
}

func (h *handlers) setCollaboratorRole(c echo.Context) error {
	_, board, role, ok := h.boardRole(c, c.Param("id"))
	if !ok {
		return nil
	}
	if role != domain.RoleOwner {
		return jsonError(c, http.StatusForbidden, "only the owner can manage collaborators")
	}
	var body struct {
		Role domain.Role `json:"role"`
	}
	if err := decodeBody(c, &body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if body.Role != domain.RoleEditor && body.Role != domain.RoleViewer {
		return jsonError(c, http.StatusBadRequest, "invalid role")
	}
	if err := h.store.SetCollaboratorRole(board.ID, c.Param("userId"), body.Role); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) removeCollaborator(c echo.Context) error {
	_, board, role, ok := h.boardRole(c, c.Param("id"))
	if !ok {
		return nil
	}
	if role != domain.RoleOwner {
		return jsonError(c, http.StatusForbidden, "only the owner can manage collaborators")
	}
	if err := h.store.RemoveCollaborator(board.ID, c.Param("userId")); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getKanban(c echo.Context) error {
	boardID := c.QueryParam("boardId")
	if boardID == "" {
		return jsonError(c, http.StatusBadRequest, "boardId is required")
	}
	if _, _, _, ok := h.boardRole(c, boardID); !ok {
		return nil
	}
	groups, err := h.store.KanbanGroups(boardID)
	if err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	return jsonData(c, http.StatusOK, groups)
}

func (h *handlers) createTask(c echo.Context) error {
	var draft domain.TaskDraft
	if err := decodeBody(c, &draft); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if draft.BoardID == "" {
		return jsonError(c, http.StatusBadRequest, "boardId is required")
	}
	if strings.TrimSpace(draft.Title) == "" {
		return jsonError(c, http.StatusBadRequest, "title is required")
	}
	if draft.Priority != "" && !draft.Priority.Valid() {
		return jsonError(c, http.StatusBadRequest, "invalid priority")
	}
	if draft.Status != "" && !draft.Status.Valid() {
		return jsonError(c, http.StatusBadRequest, "invalid status")
	}
	who, _, role, ok := h.boardRole(c, draft.BoardID)
	if !ok {
		return nil
	}
	if !role.CanEdit() {
		return jsonError(c, http.StatusForbidden, "viewer role cannot create tasks")
	}
	task, err := h.store.CreateTask(draft)
	if err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	h.publish(c, domain.Event{
		BoardID:   draft.BoardID,
		Type:      domain.EventTaskCreated,
		ActorID:   who.ID,
		ActorName: who.Name,
	}, domain.TaskEventData{TaskID: task.ID, Title: task.Title})
	return jsonData(c, http.StatusCreated, task)
}

func (h *handlers) updateTask(c echo.Context) error {
	taskID := c.Param("id")
	_, boardID, err := h.store.GetTask(taskID)
	if err != nil {
		// Authenticate before admitting whether the task exists.
		if _, idErr := h.identity(c); idErr != nil {
			return jsonError(c, http.StatusUnauthorized, idErr.Error())
		}
		return jsonError(c, http.StatusNotFound, "task not found")
	}
	who, _, role, ok := h.boardRole(c, boardID)
	if !ok {
		return nil
	}
	if !role.CanEdit() {
		return jsonError(c, http.StatusForbidden, "viewer role cannot modify tasks")
	}
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return jsonError(c, http.StatusBadRequest, "invalid priority")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return jsonError(c, http.StatusBadRequest, "invalid status")
	}
	task, err := h.store.UpdateTask(taskID, patch)
	if err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	h.publish(c, domain.Event{
		BoardID:   boardID,
		Type:      domain.EventTaskUpdated,
		ActorID:   who.ID,
		ActorName: who.Name,
	}, domain.TaskEventData{TaskID: task.ID, Title: task.Title})
	return jsonData(c, http.StatusOK, task)
}

func (h *handlers) deleteTask(c echo.Context) error {
	taskID := c.Param("id")
	task, boardID, err := h.store.GetTask(taskID)
	if err != nil {
		if _, idErr := h.identity(c); idErr != nil {
			return jsonError(c, http.StatusUnauthorized, idErr.Error())
		}
		return jsonError(c, http.StatusNotFound, "task not found")
	}
	who, _, role, ok := h.boardRole(c, boardID)
	if !ok {
		return nil
	}
	if !role.CanEdit() {
		return jsonError(c, http.StatusForbidden, "viewer role cannot delete tasks")
	}
	if err := h.store.DeleteTask(taskID); err != nil {
		return jsonError(c, http.StatusNotFound, err.Error())
	}
	h.publish(c, domain.Event{
		BoardID:   boardID,
		Type:      domain.EventTaskDeleted,
		ActorID:   who.ID,
		ActorName: who.Name,
	}, domain.TaskEventData{TaskID: taskID, Title: task.Title})
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) reorderTasks(c echo.Context) error {
	var body struct {
		Tasks   []domain.ReorderEntry `json:"tasks"`
		BoardID string                `json:"boardId"`
	}
	if err := decodeBody(c, &body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid body")
	}
	if body.BoardID == "" {
		return jsonError(c, http.StatusBadRequest, "boardId is required")
	}
	for _, entry := range body.Tasks {
		if entry.Status != "" && !entry.Status.Valid() {
			return jsonError(c, http.StatusBadRequest, "invalid status")
		}
	}
	who, _, role, ok := h.boardRole(c, body.BoardID)
	if !ok {
		return nil
	}
	if !role.CanEdit() {
		return jsonError(c, http.StatusForbidden, "viewer role cannot reorder tasks")
	}

	ctx := c.Request().Context()
	idemKey := c.Request().Header.Get("Idempotency-Key")
	if idemKey != "" && h.deduper != nil {
		fresh, err := h.deduper.Add(ctx, body.BoardID, idemKey)
		if err != nil {
			h.log.WithError(err).Warn("idempotency check failed, applying anyway")
		} else if !fresh {
			// Retried delivery of a batch already applied.
			return c.JSON(http.StatusOK, echo.Map{"success": true})
		}
	}

	if err := h.store.ApplyReorder(body.BoardID, body.Tasks); err != nil {
		if idemKey != "" && h.deduper != nil {
			if rerr := h.deduper.Remove(ctx, body.BoardID, idemKey); rerr != nil {
				h.log.WithError(rerr).Warn("idempotency key cleanup failed")
			}
		}
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	h.publish(c, domain.Event{
		BoardID:   body.BoardID,
		Type:      domain.EventTasksReordered,
		ActorID:   who.ID,
		ActorName: who.Name,
	}, domain.ReorderEventData{Entries: body.Tasks})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *handlers) publish(c echo.Context, ev domain.Event, payload any) {
	if h.bus == nil {
		return
	}
	data, err := sonic.Marshal(payload)
	if err != nil {
		h.log.WithError(err).Error("marshal event payload")
	} else {
		ev.Data = data
	}
	h.bus.Publish(c.Request().Context(), ev)
}

func (h *handlers) streamEvents(c echo.Context) error {
	boardID := c.Param("id")
	if _, _, _, ok := h.boardRole(c, boardID); !ok {
		return nil
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return jsonError(c, http.StatusInternalServerError, "stream unsupported")
	}

	ctx := c.Request().Context()
	sub, msgs := h.bus.Subscribe(ctx, boardID)
	defer sub.Close()

	// Open the stream immediately so clients see the connection succeed.
	if _, err := c.Response().Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte(msg.Payload)); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/lyzr/workflow-engine/cmd/restapi/service"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
)

// TaskHandler exposes the Human Task Queue over HTTP (§6.2 subresources
// /assign, /complete, /reject, /pending, /queue/stats).
type TaskHandler struct {
	runService *service.RunService
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(runService *service.RunService) *TaskHandler {
	return &TaskHandler{runService: runService}
}

func (h *TaskHandler) store() taskqueue.Store {
	return h.runService.TaskStore()
}

// List handles GET /api/v1/tasks.
func (h *TaskHandler) List(c echo.Context) error {
	filters := taskqueue.Filters{
		WorkflowID: c.QueryParam("workflow_id"),
		RoleID:     c.QueryParam("role_id"),
		AssigneeID: c.QueryParam("assignee_id"),
		Status:     taskqueue.Status(c.QueryParam("status")),
	}
	tasks, err := h.store().List(c.Request().Context(), filters)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, tasks)
}

// createRequest is the body of POST /api/v1/tasks: a directly-enqueued
// task, for operational use outside a workflow run (e.g. backfilling a
// manual task the engine itself never created).
type createRequest struct {
	ActivityID   string                 `json:"activity_id"`
	ActivityName string                 `json:"activity_name"`
	TokenID      string                 `json:"token_id"`
	WorkflowID   string                 `json:"workflow_id"`
	RoleID       string                 `json:"role_id"`
	Priority     taskqueue.Priority     `json:"priority"`
	Inputs       map[string]interface{} `json:"inputs"`
	CreatedBy    string                 `json:"created_by"`
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}
	task := &taskqueue.HumanTask{
		ID:           uuid.NewString(),
		ActivityID:   req.ActivityID,
		ActivityName: req.ActivityName,
		TokenID:      req.TokenID,
		WorkflowID:   req.WorkflowID,
		RoleID:       req.RoleID,
		Priority:     req.Priority,
		Inputs:       req.Inputs,
		CreatedBy:    req.CreatedBy,
	}
	if err := h.store().Create(c.Request().Context(), task); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, task)
}

// Get handles GET /api/v1/tasks/:id.
func (h *TaskHandler) Get(c echo.Context) error {
	task, err := h.store().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, task)
}

// assignRequest is the body of POST /api/v1/tasks/:id/assign.
type assignRequest struct {
	UserID   string `json:"user_id"`
	Assigner string `json:"assigner"`
}

// Assign handles POST /api/v1/tasks/:id/assign.
func (h *TaskHandler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}
	if err := h.store().Assign(c.Request().Context(), c.Param("id"), req.UserID, req.Assigner); err != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"error": err.Error()})
	}
	return c.NoContent(http.StatusOK)
}

// Start handles POST /api/v1/tasks/:id/start (the explicit pending ->
// assigned -> in_progress transition Open Question (a) preserves).
func (h *TaskHandler) Start(c echo.Context) error {
	if err := h.store().Start(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"error": err.Error()})
	}
	return c.NoContent(http.StatusOK)
}

// completeRequest is the body of POST /api/v1/tasks/:id/complete.
type completeRequest struct {
	Outputs map[string]interface{} `json:"outputs"`
}

// Complete handles POST /api/v1/tasks/:id/complete, then resumes the
// suspended token and drives its run back to quiescence (§4.6).
func (h *TaskHandler) Complete(c echo.Context) error {
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}
	taskID := c.Param("id")
	if err := h.store().Complete(c.Request().Context(), taskID, req.Outputs); err != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"error": err.Error()})
	}
	result, err := h.runService.Resolve(c.Request().Context(), taskID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// rejectRequest is the body of POST /api/v1/tasks/:id/reject.
type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/v1/tasks/:id/reject.
func (h *TaskHandler) Reject(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
	}
	taskID := c.Param("id")
	if err := h.store().Reject(c.Request().Context(), taskID, req.Reason); err != nil {
		return c.JSON(http.StatusConflict, map[string]interface{}{"error": err.Error()})
	}
	result, err := h.runService.Resolve(c.Request().Context(), taskID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// Pending handles GET /api/v1/tasks/pending?role_id=....
func (h *TaskHandler) Pending(c echo.Context) error {
	role := c.QueryParam("role_id")
	if role == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "role_id is required"})
	}
	tasks, err := h.store().PendingByRole(c.Request().Context(), role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, tasks)
}

// QueueStats handles GET /api/v1/tasks/queue/stats: a per-status count
// across every task in the store, the simplest useful dashboard signal.
func (h *TaskHandler) QueueStats(c echo.Context) error {
	tasks, err := h.store().List(c.Request().Context(), taskqueue.Filters{})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
	}
	stats := map[taskqueue.Status]int{}
	for _, t := range tasks {
		stats[t.Status]++
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total": len(tasks),
		"by_status": stats,
	})
}

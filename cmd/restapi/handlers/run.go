package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/workflow-engine/cmd/restapi/service"
	"github.com/lyzr/workflow-engine/internal/graph"
)

// RunHandler handles workflow execution requests (§6.2).
type RunHandler struct {
	runService *service.RunService
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runService *service.RunService) *RunHandler {
	return &RunHandler{runService: runService}
}

// RunRequest is the body of POST /api/v1/workflows/run: the workflow
// document to load plus the run's initial inputs.
type RunRequest struct {
	Document graph.Document         `json:"document"`
	Inputs   map[string]interface{} `json:"inputs"`
}

// Run handles POST /api/v1/workflows/run.
func (h *RunHandler) Run(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	result, err := h.runService.Run(c.Request().Context(), &req.Document, req.Inputs)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, result)
}

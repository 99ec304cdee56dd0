package main

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/workflow-engine/cmd/restapi/handlers"
)

// registerRoutes wires the routes named in SPEC_FULL §6.2, grounded on the
// teacher's cmd/orchestrator/routes group-per-resource layout.
func registerRoutes(e *echo.Echo, runHandler *handlers.RunHandler, taskHandler *handlers.TaskHandler) {
	workflows := e.Group("/api/v1/workflows")
	{
		workflows.POST("/run", runHandler.Run)
	}

	tasks := e.Group("/api/v1/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)
		tasks.GET("/pending", taskHandler.Pending)
		tasks.GET("/queue/stats", taskHandler.QueueStats)
		tasks.GET("/:id", taskHandler.Get)
		tasks.POST("/:id/assign", taskHandler.Assign)
		tasks.POST("/:id/start", taskHandler.Start)
		tasks.POST("/:id/complete", taskHandler.Complete)
		tasks.POST("/:id/reject", taskHandler.Reject)
	}
}

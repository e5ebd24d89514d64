package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/cmd/engine-sim/handlers"
	"github.com/xka/flowmon/cmd/engine-sim/service"
	"github.com/xka/flowmon/common/logger"
)

// RegisterWorkflowRoutes registers the worker manager routes under /{version}
func RegisterWorkflowRoutes(e *echo.Echo, version string, engine *service.EngineService, log *logger.Logger) {
	h := handlers.NewWorkflowHandler(engine, log)

	wf := e.Group("/" + version + "/workflow")
	{
		wf.POST("", h.SubmitWorkflow) // POST /v1/workflow
		wf.GET("/:id", h.GetWorkflow) // GET /v1/workflow/{run_id}
	}
}

package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/cmd/monitor/container"
	"github.com/xka/flowmon/cmd/monitor/handlers"
	"github.com/xka/flowmon/cmd/monitor/middleware"
)

// RegisterEditorRoutes registers the per-editor session routes
func RegisterEditorRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewEditorHandler(c)
	limits := c.Components.Config.RateLimit
	limit := func(scope string) echo.MiddlewareFunc {
		return middleware.EditorRateLimit(c.Limiter, scope, limits.Requests, limits.Window)
	}

	editor := e.Group("/api/v1/editor")
	editor.Use(middleware.ExtractEditorID()) // X-Editor-ID is mandatory
	{
		editor.POST("/runs", h.StartRun, limit("runs"))      // POST /api/v1/editor/runs
		editor.GET("/session", h.GetSession)                 // GET /api/v1/editor/session?filter=all
		editor.PUT("/graph", h.PutGraph)                     // PUT /api/v1/editor/graph
		editor.POST("/stop", h.StopPolling)                  // POST /api/v1/editor/stop
		editor.POST("/refresh", h.Refresh, limit("refresh")) // POST /api/v1/editor/refresh
		editor.DELETE("/session", h.ClearSession)            // DELETE /api/v1/editor/session
	}
}

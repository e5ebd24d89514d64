package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/cmd/monitor/container"
	"github.com/xka/flowmon/cmd/monitor/middleware"
	"github.com/xka/flowmon/cmd/monitor/service"
	"github.com/xka/flowmon/common/bootstrap"
	"github.com/xka/flowmon/common/logview"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/xjson"
)

// EditorHandler exposes an editor's execution session
type EditorHandler struct {
	components *bootstrap.Components
	monitor    *service.MonitorService
}

// NewEditorHandler creates a new editor handler
func NewEditorHandler(c *container.Container) *EditorHandler {
	return &EditorHandler{
		components: c.Components,
		monitor:    c.MonitorService,
	}
}

type startRunRequest struct {
	ID    string           `json:"id,omitempty"`
	Nodes []models.Node    `json:"nodes"`
	Edges []models.Edge    `json:"edges"`
	Patch xjson.RawMessage `json:"patch,omitempty"`
	Until string           `json:"until,omitempty"`
}

// StartRun submits the editor's graph and starts watching the run
// POST /api/v1/editor/runs
func (h *EditorHandler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()
	editorID := middleware.GetEditorID(c)

	var req startRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	h.components.Logger.Info("starting run",
		"editor_id", editorID,
		"nodes", len(req.Nodes),
		"edges", len(req.Edges),
		"patched", len(req.Patch) > 0)

	runID, err := h.monitor.StartRun(ctx, &service.StartRunRequest{
		EditorID: editorID,
		Graph:    &models.WorkflowGraph{ID: req.ID, Nodes: req.Nodes, Edges: req.Edges},
		Patch:    req.Patch,
		Until:    req.Until,
	})
	if err != nil {
		h.components.Logger.Error("failed to start run", "editor_id", editorID, "error", err)
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"run_id": runID,
	})
}

// GetSession returns the current session view
// GET /api/v1/editor/session?filter=all
func (h *EditorHandler) GetSession(c echo.Context) error {
	view, err := h.monitor.Session(middleware.GetEditorID(c), filterParam(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// PutGraph replaces the graph the session is overlaid on
// PUT /api/v1/editor/graph
func (h *EditorHandler) PutGraph(c echo.Context) error {
	ctx := c.Request().Context()

	var g models.WorkflowGraph
	if err := c.Bind(&g); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}

	if err := h.monitor.SetGraph(ctx, middleware.GetEditorID(c), &g); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StopPolling stops watching the run; the last snapshot stays available
// POST /api/v1/editor/stop
func (h *EditorHandler) StopPolling(c echo.Context) error {
	if err := h.monitor.Stop(middleware.GetEditorID(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Refresh fetches the run status immediately
// POST /api/v1/editor/refresh
func (h *EditorHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	view, err := h.monitor.Refresh(ctx, middleware.GetEditorID(c), filterParam(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// ClearSession discards the session
// DELETE /api/v1/editor/session
func (h *EditorHandler) ClearSession(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.monitor.Clear(ctx, middleware.GetEditorID(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func filterParam(c echo.Context) string {
	if filter := c.QueryParam("filter"); filter != "" {
		return filter
	}
	return logview.FilterAll
}

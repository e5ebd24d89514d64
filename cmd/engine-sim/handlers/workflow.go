package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/cmd/engine-sim/service"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/xjson"
)

// WorkflowHandler speaks the worker manager's workflow API
type WorkflowHandler struct {
	engine *service.EngineService
	logger *logger.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(engine *service.EngineService, logger *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		engine: engine,
		logger: logger,
	}
}

type submitRequest struct {
	ID    string        `json:"id"`
	Nodes []models.Node `json:"nodes"`
	Edges []models.Edge `json:"edges"`
}

// SubmitWorkflow schedules a workflow run
// POST /:version/workflow
func (h *WorkflowHandler) SubmitWorkflow(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status": "error",
			"error":  "invalid request body",
		})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	graph := &models.WorkflowGraph{ID: req.ID, Nodes: req.Nodes, Edges: req.Edges}
	if err := h.engine.Submit(req.ID, graph); err != nil {
		h.logger.Warn("workflow rejected", "run_id", req.ID, "error", err)
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"id": req.ID,
		},
	})
}

// GetWorkflow returns the run's current result document, JSON-encoded
// inside data.results
// GET /:version/workflow/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	runID := c.Param("id")

	snap, err := h.engine.Snapshot(runID)
	if errors.Is(err, service.ErrRunNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	}

	results, err := xjson.Marshal(snap)
	if err != nil {
		h.logger.Error("failed to encode snapshot", "run_id", runID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"status": "error",
			"error":  "failed to encode results",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"results": string(results),
		},
	})
}

package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/xjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WorkerManagerClient submits workflows to the worker manager and reads back
// their execution results
type WorkerManagerClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
	tracer  trace.Tracer
}

// NewWorkerManagerClient creates a new worker manager client
func NewWorkerManagerClient(cfg ClientConfig, logger Logger) *WorkerManagerClient {
	return &WorkerManagerClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    NewHTTPClient(cfg.httpClient(), logger),
		logger:  logger,
		tracer:  otel.Tracer("github.com/xka/flowmon/common/clients"),
	}
}

type submitNode struct {
	ID   string         `json:"id"`
	Type *string        `json:"type"`
	Data map[string]any `json:"data"`
}

type submitRequest struct {
	Nodes []submitNode  `json:"nodes"`
	Edges []models.Edge `json:"edges"`
	ID    string        `json:"id"`
}

// Submit posts the graph for execution under a freshly generated run id and
// returns that id. Execution overlay fields are never sent.
func (c *WorkerManagerClient) Submit(ctx context.Context, graph *models.WorkflowGraph) (string, error) {
	if graph == nil || len(graph.Nodes) == 0 {
		return "", fmt.Errorf("submit workflow: %w: empty graph", models.ErrNotInitialized)
	}

	runID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "workermanager.submit",
		trace.WithAttributes(attribute.String("run_id", runID), attribute.Int("nodes", len(graph.Nodes))))
	defer span.End()

	req := submitRequest{
		Nodes: make([]submitNode, 0, len(graph.Nodes)),
		Edges: graph.Edges,
		ID:    runID,
	}
	if req.Edges == nil {
		req.Edges = []models.Edge{}
	}
	for _, n := range graph.Nodes {
		var typ *string
		if n.Kind != "" {
			kind := string(n.Kind)
			typ = &kind
		}
		req.Nodes = append(req.Nodes, submitNode{ID: n.ID, Type: typ, Data: n.SubmissionData()})
	}

	body, err := xjson.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}

	c.logger.Info("submitting workflow", "run_id", runID, "nodes", len(req.Nodes), "edges", len(req.Edges))

	resp, err := c.http.DoRequest(ctx, http.MethodPost, c.baseURL+"/workflow", bytes.NewReader(body))
	if err != nil {
		return "", c.fail(span, &models.TransportError{Op: "submit workflow", Err: err})
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", c.fail(span, &models.TransportError{
			Op:         "submit workflow",
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		})
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Info("workflow submitted", "run_id", runID, "status", resp.StatusCode)
	return runID, nil
}

// FetchStatus returns the raw execution snapshot of a run. The worker
// manager wraps it as {data: {results: "<json>"}}; an embedded object under
// results is accepted as well.
func (c *WorkerManagerClient) FetchStatus(ctx context.Context, runID string) ([]byte, error) {
	if runID == "" {
		return nil, fmt.Errorf("fetch status: %w: empty run id", models.ErrNotInitialized)
	}

	ctx, span := c.tracer.Start(ctx, "workermanager.fetch_status",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	endpoint := fmt.Sprintf("%s/workflow/%s", c.baseURL, url.PathEscape(runID))
	resp, err := c.http.DoRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.fail(span, &models.TransportError{Op: "fetch status", Err: err})
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, &models.TransportError{Op: "fetch status", StatusCode: resp.StatusCode, Err: err})
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(span, &models.TransportError{
			Op:         "fetch status",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		})
	}

	raw, err := extractResults(body)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("fetch status %s: %w", runID, err))
	}

	c.logger.Debug("fetched run status", "run_id", runID, "bytes", len(raw))
	return raw, nil
}

func extractResults(body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, models.Malformed("empty response body")
	}
	if !gjson.ValidBytes(body) {
		return nil, models.Malformed("response body is not valid JSON")
	}

	results := gjson.GetBytes(body, "data.results")
	switch {
	case !results.Exists() || results.Type == gjson.Null:
		return nil, models.Malformed("response has no data.results")
	case results.Type == gjson.String:
		raw := []byte(results.Str)
		if !gjson.ValidBytes(raw) {
			return nil, models.Malformed("data.results is not valid JSON")
		}
		return raw, nil
	case results.IsObject():
		return []byte(results.Raw), nil
	default:
		return nil, models.Malformed("data.results has unexpected type %s", results.Type)
	}
}

func (c *WorkerManagerClient) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Error("worker manager request failed", "error", err)
	return err
}

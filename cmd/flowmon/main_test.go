package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/cmd/engine-sim/routes"
	"github.com/xka/flowmon/cmd/engine-sim/service"
	"github.com/xka/flowmon/common/clients"
	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/poller"
)

const okGraph = `
nodes:
  - id: start
    type: manualStartNode
    data:
      label: Start
  - id: wait
    type: waitingNode
    data:
      duration: "30"
  - id: call
    type: httpRequestNode
    data:
      method: GET
      url: https://example.com
edges:
  - {id: e1, source: start, target: wait}
  - {id: e2, source: wait, target: call}
`

const brokenGraph = `{
	"nodes": [
		{"id": "start", "type": "manualStartNode", "data": {}},
		{"id": "call", "type": "httpRequestNode", "data": {"url": ""}},
		{"id": "after", "type": "httpRequestNode", "data": {"url": "https://example.com"}}
	],
	"edges": [
		{"id": "e1", "source": "start", "target": "call"},
		{"id": "e2", "source": "call", "target": "after"}
	]
}`

type testApp struct {
	*app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	e := echo.New()
	engine := service.NewEngineService(10*time.Millisecond, 1, logger.Nop())
	routes.RegisterWorkflowRoutes(e, "v1", engine, logger.Nop())
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	cfg := config.Defaults("flowmon-test")
	cfg.Polling.Interval = 10 * time.Millisecond
	cfg.Polling.MaxBackoff = 20 * time.Millisecond
	cfg.Polling.FetchTimeout = time.Second
	cfg.Polling.MaxConsecutiveFailures = 2

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	a := newApp(cfg, logger.Nop(), stdout, stderr)
	a.client = clients.NewWorkerManagerClient(clients.ClientConfig{BaseURL: srv.URL + "/v1"}, logger.Nop())
	return &testApp{app: a, stdout: stdout, stderr: stderr}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunMain_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, runMain(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: flowmon")

	stderr.Reset()
	assert.Equal(t, exitUsage, runMain(context.Background(), []string{"launch"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "launch"`)

	stderr.Reset()
	assert.Equal(t, exitUsage, runMain(context.Background(), []string{"run"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-graph is required")

	assert.Equal(t, exitOK, runMain(context.Background(), []string{"help"}, &stdout, &stderr))
}

func TestRun_SucceedsAgainstSimulator(t *testing.T) {
	a := newTestApp(t)
	path := writeFile(t, "graph.yaml", okGraph)

	code := a.run(context.Background(), []string{"-graph", path, "-interval", "10ms"})
	require.Equal(t, exitOK, code, a.stderr.String())

	out := a.stdout.String()
	assert.Contains(t, out, "submitted (3 nodes)")
	assert.Contains(t, out, "status:    success (100%)")
	assert.Contains(t, out, "3 succeeded")
	assert.Contains(t, out, "[call] Simulated response 200 OK")
}

func TestRun_FailedRunExitsOne(t *testing.T) {
	a := newTestApp(t)
	path := writeFile(t, "graph.json", brokenGraph)

	code := a.run(context.Background(), []string{"-graph", path, "-filter", "after"})
	require.Equal(t, exitFailed, code, a.stderr.String())

	out := a.stdout.String()
	assert.Contains(t, out, "status:    error (0%)")
	assert.Contains(t, out, "request URL is empty")
	assert.Contains(t, out, "logs (Node after (1))")
	assert.NotContains(t, out, "[workflow]")
}

func TestRun_PatchOverridesGraph(t *testing.T) {
	a := newTestApp(t)
	path := writeFile(t, "graph.json", brokenGraph)
	patch := writeFile(t, "fix.json", `[{"op": "replace", "path": "/nodes/1/data/url", "value": "https://fixed.example.com"}]`)

	code := a.run(context.Background(), []string{"-graph", path, "-patch", patch})
	require.Equal(t, exitOK, code, a.stderr.String())
	assert.Contains(t, a.stdout.String(), "GET https://fixed.example.com")
}

func TestRun_InvalidGraph(t *testing.T) {
	a := newTestApp(t)
	path := writeFile(t, "graph.json", `{"nodes": [{"id": "a", "type": "httpRequestNode", "data": {}}], "edges": []}`)

	assert.Equal(t, exitUsage, a.run(context.Background(), []string{"-graph", path}))
	assert.Contains(t, a.stderr.String(), "no manual start node")
}

func TestWatch_UntilCondition(t *testing.T) {
	a := newTestApp(t)
	path := writeFile(t, "graph.yaml", okGraph)
	g, err := a.loader.Load(context.Background(), path)
	require.NoError(t, err)
	runID, err := a.client.Submit(context.Background(), g)
	require.NoError(t, err)

	code := a.watch(context.Background(), []string{"-run", runID, "-until", `counts.succeeded >= 1`})
	assert.Equal(t, exitOK, code, a.stderr.String())
	assert.Contains(t, a.stdout.String(), "run:       "+runID)
}

func TestWatch_BadCondition(t *testing.T) {
	a := newTestApp(t)
	assert.Equal(t, exitUsage, a.watch(context.Background(), []string{"-run", "run-1", "-until", "progress >"}))
}

func TestWatch_UnknownRunLosesConnection(t *testing.T) {
	a := newTestApp(t)

	code := a.watch(context.Background(), []string{"-run", "missing"})
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, a.stdout.String(), "connection lost")
}

func TestWatch_Interrupted(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, exitUsage, a.watch(ctx, []string{"-run", "missing"}))
	assert.Contains(t, a.stderr.String(), "interrupted")
}

func TestStatus(t *testing.T) {
	a := newTestApp(t)
	path := writeFile(t, "graph.yaml", okGraph)
	g, err := a.loader.Load(context.Background(), path)
	require.NoError(t, err)
	runID, err := a.client.Submit(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, exitOK, a.status(context.Background(), []string{"-run", runID}))
	assert.Contains(t, a.stdout.String(), "run:       "+runID)

	assert.Equal(t, exitUsage, a.status(context.Background(), []string{"-run", "missing"}))
	assert.Contains(t, a.stderr.String(), "status=404")
}

func TestProgressLine(t *testing.T) {
	sess := poller.Session{RunID: "run-1", State: poller.StatePolling, IsPolling: true}
	assert.Equal(t, "[no_data] waiting for first result", progressLine(sess))

	sess.LastSnapshot = &models.ExecutionSnapshot{
		Status:         models.StatusRunning,
		TotalNodeCount: 4,
		NodeResults: []models.NodeResult{
			{NodeID: "a", Status: models.StatusSuccess},
			{NodeID: "b", Status: models.StatusRunning},
		},
	}
	assert.Equal(t, "[live] running  25%  1/4 nodes", progressLine(sess))

	sess.LastError = errors.New("timeout")
	assert.Equal(t, "[stale] running  25%  1/4 nodes  (retrying: timeout)", progressLine(sess))
}

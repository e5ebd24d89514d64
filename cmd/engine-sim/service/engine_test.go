package service

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/cmd/engine-sim/security"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*EngineService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	engine := NewEngineService(100*time.Millisecond, 1, logger.Nop())
	engine.now = clock.Now
	return engine, clock
}

func chain(nodes ...models.Node) *models.WorkflowGraph {
	g := &models.WorkflowGraph{Nodes: nodes}
	for i := 1; i < len(nodes); i++ {
		g.Edges = append(g.Edges, models.Edge{
			ID:     nodes[i-1].ID + "-" + nodes[i].ID,
			Source: nodes[i-1].ID,
			Target: nodes[i].ID,
		})
	}
	return g
}

func start() models.Node {
	return models.Node{ID: "start", Kind: models.KindManualStart, Params: models.ManualStartParams{}}
}

func httpNode(id, url string) models.Node {
	return models.Node{ID: id, Kind: models.KindHTTPRequest, Params: models.HTTPRequestParams{Method: "GET", URL: url}}
}

func waitNode(id string, ms int64) models.Node {
	return models.Node{ID: id, Kind: models.KindWait, Params: models.WaitParams{Duration: strconv.FormatInt(ms, 10)}}
}

func TestEngine_Progression(t *testing.T) {
	engine, clock := newTestEngine(t)
	require.NoError(t, engine.Submit("run-1", chain(start(), waitNode("wait", 200), httpNode("call", "https://example.com"))))

	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, snap.Status)
	assert.Equal(t, 3, snap.TotalNodeCount)
	require.Len(t, snap.NodeResults, 2)
	assert.Equal(t, models.StatusSuccess, snap.NodeResults[0].Status)
	assert.Equal(t, models.StatusRunning, snap.NodeResults[1].Status)

	clock.Advance(250 * time.Millisecond)
	snap, err = engine.Snapshot("run-1")
	require.NoError(t, err)
	require.Len(t, snap.NodeResults, 3)
	assert.Equal(t, models.StatusSuccess, snap.NodeResults[1].Status)
	assert.Equal(t, int64(200), snap.NodeResults[1].DurationMs)
	assert.Equal(t, models.StatusRunning, snap.NodeResults[2].Status)
	assert.Equal(t, models.StatusRunning, snap.Status)

	clock.Advance(time.Second)
	snap, err = engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, int64(300), snap.DurationMs)
	assert.Equal(t, []string{"Workflow started", "Workflow completed"}, snap.WorkflowLogs)
	assert.Equal(t, map[string]any{"statusCode": 200, "simulated": true}, snap.NodeResults[2].Result)
	assert.NotZero(t, snap.EndedAt)
}

func TestEngine_FailureSkipsDownstream(t *testing.T) {
	engine, clock := newTestEngine(t)
	g := chain(start(), httpNode("broken", ""), httpNode("after", "https://example.com"))
	require.NoError(t, engine.Submit("run-1", g))

	clock.Advance(time.Second)
	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, snap.Status)
	assert.Equal(t, "node broken failed", snap.ErrorMessage)
	require.Len(t, snap.NodeResults, 3)
	assert.Equal(t, models.StatusError, snap.NodeResults[1].Status)
	assert.Equal(t, "request URL is empty", snap.NodeResults[1].Error)
	assert.Equal(t, models.StatusSkipped, snap.NodeResults[2].Status)
	assert.Contains(t, snap.NodeResults[2].Logs[0], "broken")
}

func TestEngine_RejectedURLFailsNode(t *testing.T) {
	engine, clock := newTestEngine(t)
	require.NoError(t, engine.Submit("run-1", chain(start(), httpNode("meta", "http://169.254.169.254/latest"))))

	clock.Advance(time.Second)
	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, snap.Status)
	require.Len(t, snap.NodeResults, 2)
	assert.Contains(t, snap.NodeResults[1].Error, "request URL rejected")
	assert.Contains(t, snap.NodeResults[1].Error, "link-local")
	assert.Nil(t, snap.NodeResults[1].Result)
}

func TestEngine_CustomURLValidator(t *testing.T) {
	engine, clock := newTestEngine(t)
	engine.SetURLValidator(security.NewURLValidator().WithLookup(func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("10.0.0.1")}, nil
	}))
	require.NoError(t, engine.Submit("run-1", chain(start(), httpNode("call", "https://intranet.example.com"))))

	clock.Advance(time.Second)
	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, snap.NodeResults[1].Status)
	assert.Contains(t, snap.NodeResults[1].Error, "private network")
}

func TestEngine_WaitDurationParsing(t *testing.T) {
	engine, clock := newTestEngine(t)
	lenient := models.Node{ID: "pause", Kind: models.KindWait, Params: models.WaitParams{Duration: " 249.6 "}}
	require.NoError(t, engine.Submit("run-1", chain(start(), lenient)))

	clock.Advance(249 * time.Millisecond)
	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, snap.NodeResults[1].Status)

	clock.Advance(time.Millisecond)
	snap, err = engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, snap.NodeResults[1].Status)

	for i, raw := range []string{"abc", "", "-5"} {
		runID := fmt.Sprintf("bad-%d", i)
		bad := models.Node{ID: "pause", Kind: models.KindWait, Params: models.WaitParams{Duration: raw}}
		require.NoError(t, engine.Submit(runID, chain(start(), bad)), raw)

		clock.Advance(time.Second)
		snap, err := engine.Snapshot(runID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusError, snap.NodeResults[1].Status, raw)
		assert.Contains(t, snap.NodeResults[1].Error, "invalid duration value", raw)
	}
}

func TestEngine_ParallelBranches(t *testing.T) {
	engine, clock := newTestEngine(t)
	g := &models.WorkflowGraph{
		Nodes: []models.Node{start(), waitNode("slow", 500), httpNode("fast", "https://a"), httpNode("join", "https://b")},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "slow"},
			{ID: "e2", Source: "start", Target: "fast"},
			{ID: "e3", Source: "slow", Target: "join"},
			{ID: "e4", Source: "fast", Target: "join"},
		},
	}
	require.NoError(t, engine.Submit("run-1", g))

	clock.Advance(300 * time.Millisecond)
	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)
	result, ok := snap.ResultFor("fast")
	require.True(t, ok)
	assert.Equal(t, models.StatusSuccess, result.Status)
	_, ok = snap.ResultFor("join")
	assert.False(t, ok, "join waits for the slowest branch")

	clock.Advance(time.Second)
	snap, err = engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, snap.Status)
	assert.Equal(t, int64(600), snap.DurationMs)
}

func TestEngine_RejectsInvalidGraphs(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.Submit("run-1", chain(httpNode("a", "https://a")))
	var graphErr *models.GraphError
	assert.True(t, errors.As(err, &graphErr))

	cyclic := chain(start(), httpNode("a", "https://a"), httpNode("b", "https://b"))
	cyclic.Edges = append(cyclic.Edges, models.Edge{ID: "back", Source: "b", Target: "a"})
	err = engine.Submit("run-2", cyclic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	require.NoError(t, engine.Submit("run-3", chain(start())))
	err = engine.Submit("run-3", chain(start()))
	assert.Error(t, err)

	assert.Error(t, engine.Submit("", chain(start())))
	assert.Equal(t, 1, engine.Runs())
}

func TestEngine_UnknownRun(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Snapshot("missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestEngine_TimeScale(t *testing.T) {
	engine, clock := newTestEngine(t)
	engine.timeScale = 10
	require.NoError(t, engine.Submit("run-1", chain(start(), waitNode("wait", 1000))))

	clock.Advance(100 * time.Millisecond)
	snap, err := engine.Snapshot("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, snap.Status)
}

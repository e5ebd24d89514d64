// Package service simulates the worker manager: submitted graphs are
// scheduled on a virtual clock and their results are revealed as that
// clock advances.
package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xka/flowmon/cmd/engine-sim/security"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/models"
)

// ErrRunNotFound is returned for unknown run ids
var ErrRunNotFound = errors.New("workflow not found")

// EngineService keeps every submitted run in memory
type EngineService struct {
	step      time.Duration
	timeScale float64
	now       func() time.Time
	urls      *security.URLValidator
	logger    *logger.Logger

	mu   sync.RWMutex
	runs map[string]*simRun
}

type simRun struct {
	id          string
	submittedAt time.Time
	plan        []plannedNode
	total       time.Duration
}

// plannedNode is the precomputed outcome of one node. Offsets are relative
// to the submission on the virtual clock.
type plannedNode struct {
	id       string
	kind     models.NodeKind
	start    time.Duration
	duration time.Duration
	status   models.Status
	logs     []string
	result   any
	err      string
}

func (n plannedNode) end() time.Duration { return n.start + n.duration }

// NewEngineService creates an engine. step is the virtual duration of an
// HTTP node; timeScale > 1 runs the virtual clock faster than wall time.
func NewEngineService(step time.Duration, timeScale float64, logger *logger.Logger) *EngineService {
	if timeScale <= 0 {
		timeScale = 1
	}
	return &EngineService{
		step:      step,
		timeScale: timeScale,
		now:       time.Now,
		urls:      security.NewURLValidator(),
		logger:    logger,
		runs:      make(map[string]*simRun),
	}
}

// SetURLValidator replaces the policy applied to HTTP request nodes. Call it
// before the first Submit.
func (s *EngineService) SetURLValidator(v *security.URLValidator) {
	s.urls = v
}

// Submit schedules the graph under runID
func (s *EngineService) Submit(runID string, g *models.WorkflowGraph) error {
	if runID == "" {
		return fmt.Errorf("%w: empty run id", models.ErrNotInitialized)
	}
	if err := g.ValidateForSubmit(); err != nil {
		return err
	}

	plan, err := s.schedule(g)
	if err != nil {
		return err
	}

	run := &simRun{
		id:          runID,
		submittedAt: s.now(),
		plan:        plan,
	}
	for _, n := range plan {
		if n.end() > run.total {
			run.total = n.end()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return &models.GraphError{Field: "id", Message: fmt.Sprintf("run %s already exists", runID)}
	}
	s.runs[runID] = run

	s.logger.Info("run scheduled", "run_id", runID, "nodes", len(plan), "virtual_duration", run.total)
	return nil
}

// Snapshot returns the run as observed now
func (s *EngineService) Snapshot(runID string) (*models.ExecutionSnapshot, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrRunNotFound
	}

	elapsed := time.Duration(float64(s.now().Sub(run.submittedAt)) * s.timeScale)
	return run.observe(elapsed), nil
}

// Runs returns the number of runs held
func (s *EngineService) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// schedule orders the nodes topologically (Kahn) and fixes each node's
// start, duration and outcome. Ties keep graph order.
func (s *EngineService) schedule(g *models.WorkflowGraph) ([]plannedNode, error) {
	indeg := make(map[string]int, len(g.Nodes))
	out := make(map[string][]string, len(g.Nodes))
	preds := make(map[string][]string, len(g.Nodes))
	for _, n := range g.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range g.Edges {
		out[e.Source] = append(out[e.Source], e.Target)
		preds[e.Target] = append(preds[e.Target], e.Source)
		indeg[e.Target]++
	}

	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	planned := make(map[string]plannedNode, len(g.Nodes))
	plan := make([]plannedNode, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		node, _ := g.FindNode(id)
		p := s.planNode(*node, preds[id], planned)
		planned[id] = p
		plan = append(plan, p)

		for _, next := range out[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(plan) != len(g.Nodes) {
		return nil, &models.GraphError{Field: "edges", Message: "workflow contains a cycle"}
	}
	return plan, nil
}

func (s *EngineService) planNode(n models.Node, preds []string, planned map[string]plannedNode) plannedNode {
	p := plannedNode{id: n.ID, kind: n.Kind}

	var failedUpstream string
	for _, pred := range preds {
		up := planned[pred]
		if up.end() > p.start {
			p.start = up.end()
		}
		if failedUpstream == "" && (up.status == models.StatusError || up.status == models.StatusSkipped) {
			failedUpstream = pred
		}
	}

	if failedUpstream != "" {
		p.status = models.StatusSkipped
		p.logs = []string{fmt.Sprintf("Skipped: upstream node %s did not succeed", failedUpstream)}
		return p
	}

	switch params := n.Params.(type) {
	case models.ManualStartParams:
		p.status = models.StatusSuccess
		p.logs = []string{"Workflow triggered manually"}
	case models.WaitParams:
		ms, ok := params.Milliseconds()
		if !ok {
			p.status = models.StatusError
			p.err = fmt.Sprintf("invalid duration value %q", params.Duration)
			p.logs = []string{p.err}
			break
		}
		p.duration = time.Duration(ms) * time.Millisecond
		p.status = models.StatusSuccess
		p.logs = []string{
			fmt.Sprintf("Waiting for %s", p.duration),
			"Wait finished",
		}
	case models.HTTPRequestParams:
		p.duration = s.step
		if params.URL == "" {
			p.status = models.StatusError
			p.err = "request URL is empty"
			p.logs = []string{"Request failed: URL is empty"}
			break
		}
		if err := s.urls.Validate(params.URL); err != nil {
			p.status = models.StatusError
			p.err = fmt.Sprintf("request URL rejected: %v", err)
			p.logs = []string{fmt.Sprintf("%s %s", params.Method, params.URL), p.err}
			break
		}
		p.status = models.StatusSuccess
		p.logs = []string{
			fmt.Sprintf("%s %s", params.Method, params.URL),
			"Simulated response 200 OK",
		}
		p.result = map[string]any{"statusCode": 200, "simulated": true}
	default:
		p.status = models.StatusError
		p.err = fmt.Sprintf("unsupported node type %q", n.Kind)
		p.logs = []string{p.err}
	}
	return p
}

// observe renders the run at a point on its virtual clock. Nodes that have
// not started are omitted; started nodes report running until they end.
func (r *simRun) observe(elapsed time.Duration) *models.ExecutionSnapshot {
	started := r.submittedAt.Unix()
	snap := &models.ExecutionSnapshot{
		RunID:          r.id,
		StartedAt:      started,
		TotalNodeCount: len(r.plan),
		NodeResults:    make([]models.NodeResult, 0, len(r.plan)),
		WorkflowLogs:   []string{"Workflow started"},
	}

	failed := ""
	for _, n := range r.plan {
		if elapsed < n.start {
			continue
		}

		result := models.NodeResult{
			NodeID:       n.id,
			NodeType:     string(n.kind),
			TimestampSec: started + int64(n.start/time.Second),
		}
		if elapsed < n.end() {
			result.Status = models.StatusRunning
			result.DurationMs = (elapsed - n.start).Milliseconds()
			result.Logs = n.logs[:1]
		} else {
			result.Status = n.status
			result.DurationMs = n.duration.Milliseconds()
			result.Logs = n.logs
			result.Result = n.result
			result.Error = n.err
			if n.status == models.StatusError && failed == "" {
				failed = n.id
			}
		}
		snap.NodeResults = append(snap.NodeResults, result)
	}

	if elapsed < r.total {
		snap.Status = models.StatusRunning
		snap.DurationMs = elapsed.Milliseconds()
		return snap
	}

	snap.DurationMs = r.total.Milliseconds()
	snap.EndedAt = started + int64(r.total/time.Second)
	if failed != "" {
		snap.Status = models.StatusError
		snap.ErrorMessage = fmt.Sprintf("node %s failed", failed)
		snap.WorkflowLogs = append(snap.WorkflowLogs, "Workflow failed")
	} else {
		snap.Status = models.StatusSuccess
		snap.WorkflowLogs = append(snap.WorkflowLogs, "Workflow completed")
	}
	return snap
}

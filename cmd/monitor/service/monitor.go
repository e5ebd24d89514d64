package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xka/flowmon/common/condition"
	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/graph"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/logview"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/overlay"
	"github.com/xka/flowmon/common/poller"
	"github.com/xka/flowmon/common/progress"
	"github.com/xka/flowmon/common/session"
)

// ErrNoSession is returned when an editor has nothing to monitor
var ErrNoSession = errors.New("no session for editor")

// Client submits graphs to the worker manager and fetches run status
type Client interface {
	Submit(ctx context.Context, graph *models.WorkflowGraph) (string, error)
	FetchStatus(ctx context.Context, runID string) ([]byte, error)
}

// MonitorService keeps one poller per editor and mirrors each editor's
// current session into the session store
type MonitorService struct {
	client    Client
	store     session.Store
	evaluator *condition.Evaluator
	polling   config.PollingConfig
	logger    *logger.Logger

	mu      sync.Mutex
	editors map[string]*editor
	closed  bool
}

type editor struct {
	id     string
	poller *poller.Poller

	mu       sync.Mutex
	graph    *models.WorkflowGraph
	stopWhen func(*models.ExecutionSnapshot) bool
}

func (e *editor) currentGraph() *models.WorkflowGraph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

func (e *editor) shouldStop(s *models.ExecutionSnapshot) bool {
	e.mu.Lock()
	cond := e.stopWhen
	e.mu.Unlock()
	return cond != nil && cond(s)
}

// NewMonitorService creates the service. Call Resume to pick up sessions
// persisted by a previous process.
func NewMonitorService(client Client, store session.Store, evaluator *condition.Evaluator, polling config.PollingConfig, logger *logger.Logger) *MonitorService {
	return &MonitorService{
		client:    client,
		store:     store,
		evaluator: evaluator,
		polling:   polling,
		logger:    logger,
		editors:   make(map[string]*editor),
	}
}

// StartRunRequest describes a graph to execute and watch
type StartRunRequest struct {
	EditorID string
	Graph    *models.WorkflowGraph
	// Patch is an optional RFC 6902 document applied before submission
	Patch []byte
	// Until is an optional CEL expression; polling stops once it holds
	Until string
}

// StartRun submits the graph and starts polling the new run. The editor's
// previous session, if any, is replaced.
func (s *MonitorService) StartRun(ctx context.Context, req *StartRunRequest) (string, error) {
	if req.EditorID == "" {
		return "", fmt.Errorf("start run: %w: missing editor id", models.ErrNotInitialized)
	}
	if req.Graph == nil {
		return "", fmt.Errorf("start run: %w: missing graph", models.ErrNotInitialized)
	}

	g := req.Graph
	if len(req.Patch) > 0 {
		patched, err := graph.ApplyPatch(g, req.Patch)
		if err != nil {
			return "", err
		}
		g = patched
	}
	if err := g.ValidateForSubmit(); err != nil {
		return "", err
	}

	var stopWhen func(*models.ExecutionSnapshot) bool
	if req.Until != "" {
		cond, err := s.evaluator.StopWhen(req.Until, s.logger.WithEditorID(req.EditorID))
		if err != nil {
			return "", &models.GraphError{Field: "until", Message: err.Error()}
		}
		stopWhen = cond
	}

	ed, err := s.editorFor(req.EditorID)
	if err != nil {
		return "", err
	}

	runID, err := s.client.Submit(ctx, g)
	if err != nil {
		return "", err
	}

	ed.mu.Lock()
	ed.graph = overlayFree(g)
	ed.stopWhen = stopWhen
	ed.mu.Unlock()

	if err := ed.poller.Start(runID); err != nil {
		return "", err
	}

	s.logger.Info("run started", "editor_id", req.EditorID, "run_id", runID, "nodes", len(g.Nodes))
	return runID, nil
}

// SetGraph replaces the graph the editor's session is overlaid on
func (s *MonitorService) SetGraph(ctx context.Context, editorID string, g *models.WorkflowGraph) error {
	if g == nil {
		return fmt.Errorf("set graph: %w: missing graph", models.ErrNotInitialized)
	}
	if err := g.Validate(); err != nil {
		return err
	}

	ed, err := s.editorFor(editorID)
	if err != nil {
		return err
	}

	ed.mu.Lock()
	ed.graph = overlayFree(g)
	ed.mu.Unlock()

	s.persist(ed, ed.poller.Session())
	return nil
}

// Session returns the editor's current view. filter selects log lines as
// logview.Aggregate does.
func (s *MonitorService) Session(editorID, filter string) (*SessionView, error) {
	ed, ok := s.lookup(editorID)
	if !ok {
		return nil, ErrNoSession
	}

	sess := ed.poller.Session()
	if sess.RunID == "" {
		return nil, ErrNoSession
	}
	return buildView(sess, ed.currentGraph(), filter), nil
}

// Stop ends polling for the editor; the last snapshot stays visible
func (s *MonitorService) Stop(editorID string) error {
	ed, ok := s.lookup(editorID)
	if !ok {
		return ErrNoSession
	}
	ed.poller.Stop()
	return nil
}

// Refresh fetches the editor's run now and returns the updated view
func (s *MonitorService) Refresh(ctx context.Context, editorID, filter string) (*SessionView, error) {
	ed, ok := s.lookup(editorID)
	if !ok {
		return nil, ErrNoSession
	}
	if err := ed.poller.Refresh(ctx); err != nil {
		if errors.Is(err, models.ErrNotInitialized) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return s.Session(editorID, filter)
}

// Clear discards the editor's session entirely
func (s *MonitorService) Clear(ctx context.Context, editorID string) error {
	s.mu.Lock()
	ed, ok := s.editors[editorID]
	delete(s.editors, editorID)
	s.mu.Unlock()

	if ok {
		ed.poller.Clear()
		ed.poller.Close()
	}
	if err := s.store.Delete(ctx, editorID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Resume recreates pollers for the sessions found in the store. Runs that
// were being polled resume unless their last snapshot is terminal.
func (s *MonitorService) Resume(ctx context.Context) error {
	records, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, rec := range records {
		if rec.RunID == "" {
			continue
		}

		ed, err := s.editorFor(rec.EditorID)
		if err != nil {
			return err
		}
		ed.mu.Lock()
		ed.graph = rec.Graph
		ed.mu.Unlock()

		if err := ed.poller.Restore(rec.RunID, rec.LastSnapshot); err != nil {
			s.logger.Warn("failed to restore session", "editor_id", rec.EditorID, "run_id", rec.RunID, "error", err)
			continue
		}
		if rec.State != string(poller.StatePolling) {
			ed.poller.Stop()
		}

		s.logger.Info("session restored", "editor_id", rec.EditorID, "run_id", rec.RunID, "state", ed.poller.State())
	}
	return nil
}

// Close stops every poller. Stored sessions are kept for the next Resume.
func (s *MonitorService) Close() {
	s.mu.Lock()
	s.closed = true
	editors := make([]*editor, 0, len(s.editors))
	for _, ed := range s.editors {
		editors = append(editors, ed)
	}
	s.mu.Unlock()

	for _, ed := range editors {
		ed.poller.Close()
	}
}

func (s *MonitorService) lookup(editorID string) (*editor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ed, ok := s.editors[editorID]
	return ed, ok
}

func (s *MonitorService) editorFor(editorID string) (*editor, error) {
	if editorID == "" {
		return nil, fmt.Errorf("%w: missing editor id", models.ErrNotInitialized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, poller.ErrClosed
	}
	if ed, ok := s.editors[editorID]; ok {
		return ed, nil
	}

	ed := &editor{id: editorID}
	log := s.logger.WithEditorID(editorID)
	ed.poller = poller.New(s.client,
		poller.WithInterval(s.polling.Interval),
		poller.WithMaxBackoff(s.polling.MaxBackoff),
		poller.WithFetchTimeout(s.polling.FetchTimeout),
		poller.WithMaxConsecutiveFailures(s.polling.MaxConsecutiveFailures),
		poller.WithForce(s.polling.Force),
		poller.WithStopCondition(ed.shouldStop),
		poller.WithOnUpdate(func(sess poller.Session) { s.persist(ed, sess) }),
		poller.WithLogger(log),
	)
	s.editors[editorID] = ed
	return ed, nil
}

// persist mirrors the session into the store. A cleared session removes
// the record.
func (s *MonitorService) persist(ed *editor, sess poller.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if sess.RunID == "" {
		if err := s.store.Delete(ctx, ed.id); err != nil {
			s.logger.Warn("failed to delete session", "editor_id", ed.id, "error", err)
		}
		return
	}

	rec := &session.Record{
		EditorID:     ed.id,
		RunID:        sess.RunID,
		State:        string(sess.State),
		Graph:        ed.currentGraph(),
		LastSnapshot: sess.LastRaw,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		s.logger.Warn("failed to persist session", "editor_id", ed.id, "run_id", sess.RunID, "error", err)
	}
}

// overlayFree drops execution fields a client may have sent back with the
// graph
func overlayFree(g *models.WorkflowGraph) *models.WorkflowGraph {
	out := g.Clone()
	out.Nodes = overlay.Strip(out.Nodes)
	return out
}

// SessionView is the monitor's rendering of one editor session
type SessionView struct {
	RunID               string                 `json:"run_id"`
	State               poller.State           `json:"state"`
	View                poller.View            `json:"view"`
	IsPolling           bool                   `json:"is_polling"`
	Status              models.Status          `json:"status,omitempty"`
	Progress            int                    `json:"progress"`
	DurationMs          int64                  `json:"duration_ms"`
	StartedAt           *time.Time             `json:"started_at,omitempty"`
	EndedAt             *time.Time             `json:"ended_at,omitempty"`
	Counts              progress.Counts        `json:"counts"`
	Error               string                 `json:"error,omitempty"`
	ConnectionError     string                 `json:"connection_error,omitempty"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	Logs                []models.LogEntry      `json:"logs"`
	LogFilters          []logview.FilterOption `json:"log_filters"`
	Nodes               []models.Node          `json:"nodes"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

func buildView(sess poller.Session, g *models.WorkflowGraph, filter string) *SessionView {
	snap := sess.LastSnapshot

	v := &SessionView{
		RunID:               sess.RunID,
		State:               sess.State,
		View:                sess.View(),
		IsPolling:           sess.IsPolling,
		Progress:            progress.Percent(snap),
		Counts:              progress.Summary(snap),
		ConsecutiveFailures: sess.ConsecutiveFailures,
		Logs:                logview.Collect(snap, filter),
		LogFilters:          logview.Options(snap),
		Nodes:               []models.Node{},
		UpdatedAt:           sess.UpdatedAt,
	}
	if sess.LastError != nil {
		v.ConnectionError = sess.LastError.Error()
	}

	if snap != nil {
		v.Status = snap.Status
		v.DurationMs = snap.DurationMs
		v.Error = snap.ErrorMessage
		if t := snap.Started(); !t.IsZero() {
			v.StartedAt = &t
		}
		if t := snap.Ended(); !t.IsZero() {
			v.EndedAt = &t
		}
	}

	if g != nil {
		v.Nodes = overlay.Apply(g.Nodes, snap)
	}
	return v
}

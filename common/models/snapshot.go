package models

import (
	"time"
)

// Status is the execution state reported by the worker manager
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// IsTerminal reports whether no further progress is expected
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusSkipped
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusSuccess, StatusError, StatusSkipped:
		return true
	}
	return false
}

// ExecutionSnapshot is one observation of a remote run. JSON tags follow
// the worker manager's result document.
type ExecutionSnapshot struct {
	RunID          string         `json:"workflowId"`
	Status         Status         `json:"status"`
	StartedAt      int64          `json:"startedAt"`
	EndedAt        int64          `json:"endedAt"`
	DurationMs     int64          `json:"durationMs"`
	TotalNodeCount int            `json:"numberOfNodes"`
	NodeResults    []NodeResult   `json:"nodes"`
	WorkflowLogs   []string       `json:"logs"`
	ErrorMessage   string         `json:"error,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// NodeResult is the outcome of one node within a run
type NodeResult struct {
	NodeID       string   `json:"nodeId"`
	NodeType     string   `json:"nodeType,omitempty"`
	Status       Status   `json:"status"`
	TimestampSec int64    `json:"timestamp"`
	DurationMs   int64    `json:"durationMs"`
	Logs         []string `json:"logs,omitempty"`
	Result       any      `json:"result,omitempty"`
	Error        string   `json:"error,omitempty"`
	Meta         any      `json:"meta,omitempty"`
}

// Started returns the run start time, zero when unknown
func (s *ExecutionSnapshot) Started() time.Time {
	if s == nil || s.StartedAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.StartedAt, 0)
}

// Ended returns the run end time, zero when unknown
func (s *ExecutionSnapshot) Ended() time.Time {
	if s == nil || s.EndedAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.EndedAt, 0)
}

// Duration returns the reported run duration
func (s *ExecutionSnapshot) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.DurationMs) * time.Millisecond
}

// ResultFor returns the result of the given node, if reported
func (s *ExecutionSnapshot) ResultFor(nodeID string) (NodeResult, bool) {
	if s == nil {
		return NodeResult{}, false
	}
	for _, r := range s.NodeResults {
		if r.NodeID == nodeID {
			return r, true
		}
	}
	return NodeResult{}, false
}

// ExecutionStatus is the per-node status shown on the canvas
type ExecutionStatus string

const (
	ExecPending ExecutionStatus = "pending"
	ExecRunning ExecutionStatus = "running"
	ExecSuccess ExecutionStatus = "success"
	ExecError   ExecutionStatus = "error"
	ExecSkipped ExecutionStatus = "skipped"
)

// ExecutionStatusOf maps a node result status onto the canvas status
func ExecutionStatusOf(s Status) ExecutionStatus {
	switch s {
	case StatusSuccess:
		return ExecSuccess
	case StatusError:
		return ExecError
	case StatusSkipped:
		return ExecSkipped
	case StatusRunning:
		return ExecRunning
	default:
		return ExecPending
	}
}

// NodeExecution holds the fields overlaid on a node from the latest snapshot
type NodeExecution struct {
	Status     ExecutionStatus
	DurationMs *int64
	Data       *NodeResult
}

func (e NodeExecution) clone() NodeExecution {
	out := e
	if e.DurationMs != nil {
		d := *e.DurationMs
		out.DurationMs = &d
	}
	if e.Data != nil {
		r := *e.Data
		r.Logs = append([]string(nil), e.Data.Logs...)
		r.Result = cloneValue(e.Data.Result)
		r.Meta = cloneValue(e.Data.Meta)
		out.Data = &r
	}
	return out
}

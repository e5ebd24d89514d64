package models

import "fmt"

// LogSourceKind tells workflow-level lines from node lines
type LogSourceKind string

const (
	LogSourceWorkflow LogSourceKind = "workflow"
	LogSourceNode     LogSourceKind = "node"
)

// LogSource identifies where a log line came from
type LogSource struct {
	Kind   LogSourceKind `json:"type"`
	NodeID string        `json:"nodeId,omitempty"`
}

// LogEntry is one line of the merged log view. SequenceIndex is the line's
// position within its own source, not a global order.
type LogEntry struct {
	Source        LogSource `json:"source"`
	Text          string    `json:"log"`
	SequenceIndex int       `json:"index"`
}

// Key returns an identifier unique within one aggregated view
func (e LogEntry) Key() string {
	if e.Source.Kind == LogSourceWorkflow {
		return fmt.Sprintf("workflow-%d", e.SequenceIndex)
	}
	return fmt.Sprintf("node-%s-%d", e.Source.NodeID, e.SequenceIndex)
}

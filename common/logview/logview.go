// Package logview merges workflow and node log lines into one filterable
// view.
package logview

import (
	"fmt"
	"iter"
	"slices"

	"github.com/xka/flowmon/common/models"
)

// Filter values understood by Aggregate besides node ids
const (
	FilterAll      = "all"
	FilterWorkflow = "workflow"
)

// Aggregate yields the snapshot's log lines: workflow lines first, then
// each node's lines grouped in node result order. filter is FilterAll,
// FilterWorkflow or a node id. An empty filter means FilterAll.
//
// The sequence reads the snapshot lazily and can be ranged over any number
// of times.
func Aggregate(s *models.ExecutionSnapshot, filter string) iter.Seq[models.LogEntry] {
	if filter == "" {
		filter = FilterAll
	}

	return func(yield func(models.LogEntry) bool) {
		if s == nil {
			return
		}

		if filter == FilterAll || filter == FilterWorkflow {
			for i, text := range s.WorkflowLogs {
				entry := models.LogEntry{
					Source:        models.LogSource{Kind: models.LogSourceWorkflow},
					Text:          text,
					SequenceIndex: i,
				}
				if !yield(entry) {
					return
				}
			}
		}

		if filter == FilterWorkflow {
			return
		}

		for _, r := range s.NodeResults {
			if filter != FilterAll && r.NodeID != filter {
				continue
			}
			for i, text := range r.Logs {
				entry := models.LogEntry{
					Source:        models.LogSource{Kind: models.LogSourceNode, NodeID: r.NodeID},
					Text:          text,
					SequenceIndex: i,
				}
				if !yield(entry) {
					return
				}
			}
		}
	}
}

// Collect materializes Aggregate
func Collect(s *models.ExecutionSnapshot, filter string) []models.LogEntry {
	entries := slices.Collect(Aggregate(s, filter))
	if entries == nil {
		return []models.LogEntry{}
	}
	return entries
}

// AvailableNodes returns the node results that carry at least one log line.
// These, not every node in the run, are offered as filter choices.
func AvailableNodes(s *models.ExecutionSnapshot) []models.NodeResult {
	if s == nil {
		return nil
	}
	nodes := make([]models.NodeResult, 0, len(s.NodeResults))
	for _, r := range s.NodeResults {
		if len(r.Logs) > 0 {
			nodes = append(nodes, r)
		}
	}
	return nodes
}

// Total counts every log line in the snapshot
func Total(s *models.ExecutionSnapshot) int {
	if s == nil {
		return 0
	}
	n := len(s.WorkflowLogs)
	for _, r := range s.NodeResults {
		n += len(r.Logs)
	}
	return n
}

// FilterOption is one entry of the log filter menu
type FilterOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Options builds the filter menu: all sources, workflow, then one entry per
// node that has logs.
func Options(s *models.ExecutionSnapshot) []FilterOption {
	workflowCount := 0
	if s != nil {
		workflowCount = len(s.WorkflowLogs)
	}

	total := Total(s)
	options := []FilterOption{
		{Value: FilterAll, Label: fmt.Sprintf("All Sources (%d)", total), Count: total},
		{Value: FilterWorkflow, Label: fmt.Sprintf("Workflow (%d)", workflowCount), Count: workflowCount},
	}
	for _, r := range AvailableNodes(s) {
		options = append(options, FilterOption{
			Value: r.NodeID,
			Label: fmt.Sprintf("Node %s (%d)", r.NodeID, len(r.Logs)),
			Count: len(r.Logs),
		})
	}
	return options
}

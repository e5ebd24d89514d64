// Package overlay projects execution results onto the editor's nodes.
package overlay

import (
	"github.com/xka/flowmon/common/models"
)

// Apply returns new nodes carrying the execution state from s. Params,
// Extra and Position are copied unchanged. Nodes without a matching result,
// or every node when s is nil, are marked pending with no duration. Results
// for nodes that are not in the collection are ignored.
//
// The input slice and its nodes are never modified.
func Apply(nodes []models.Node, s *models.ExecutionSnapshot) []models.Node {
	if nodes == nil {
		return nil
	}

	index := indexResults(s)
	out := make([]models.Node, len(nodes))
	for i, n := range nodes {
		node := n.Clone()
		node.Execution = executionFor(index, n.ID)
		out[i] = node
	}
	return out
}

// ApplyGraph is Apply over a graph; edges are copied as is.
func ApplyGraph(g *models.WorkflowGraph, s *models.ExecutionSnapshot) *models.WorkflowGraph {
	if g == nil {
		return nil
	}
	out := &models.WorkflowGraph{
		ID:    g.ID,
		Nodes: Apply(g.Nodes, s),
		Edges: append([]models.Edge(nil), g.Edges...),
	}
	if out.Nodes == nil {
		out.Nodes = []models.Node{}
	}
	return out
}

// Strip removes execution state, returning nodes as the user authored them
func Strip(nodes []models.Node) []models.Node {
	if nodes == nil {
		return nil
	}
	out := make([]models.Node, len(nodes))
	for i, n := range nodes {
		node := n.Clone()
		node.Execution = models.NodeExecution{}
		out[i] = node
	}
	return out
}

// indexResults keys node results by id. A node reported twice keeps its
// latest entry.
func indexResults(s *models.ExecutionSnapshot) map[string]models.NodeResult {
	if s == nil || len(s.NodeResults) == 0 {
		return nil
	}
	index := make(map[string]models.NodeResult, len(s.NodeResults))
	for _, r := range s.NodeResults {
		index[r.NodeID] = r
	}
	return index
}

func executionFor(index map[string]models.NodeResult, nodeID string) models.NodeExecution {
	r, ok := index[nodeID]
	if !ok {
		return models.NodeExecution{Status: models.ExecPending}
	}

	duration := r.DurationMs
	data := r
	data.Logs = append([]string(nil), r.Logs...)
	return models.NodeExecution{
		Status:     models.ExecutionStatusOf(r.Status),
		DurationMs: &duration,
		Data:       &data,
	}
}

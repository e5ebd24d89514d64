// Package snapshot turns raw worker manager result documents into typed
// execution snapshots.
//
// Only "status" (a known status string) and "nodes" (an array) are
// required. Every other field is optional and read leniently: missing or
// mistyped optional values fall back to their zero value, unknown fields are
// ignored.
package snapshot

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xka/flowmon/common/models"
)

// Parse validates and normalizes a raw snapshot payload
func Parse(raw []byte) (*models.ExecutionSnapshot, error) {
	return ParseFor("", raw)
}

// ParseFor is Parse with a fallback run id for payloads that omit
// workflowId.
func ParseFor(runID string, raw []byte) (*models.ExecutionSnapshot, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, models.Malformed("empty payload")
	}
	if !gjson.ValidBytes(raw) {
		return nil, models.Malformed("invalid JSON")
	}

	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, models.Malformed("payload is not an object")
	}

	statusField := doc.Get("status")
	if !statusField.Exists() {
		return nil, models.Malformed("missing status")
	}
	if statusField.Type != gjson.String {
		return nil, models.Malformed("status must be a string, got %s", statusField.Type)
	}
	status, ok := NormalizeStatus(statusField.Str)
	if !ok {
		return nil, models.Malformed("unknown status %q", statusField.Str)
	}

	nodesField := doc.Get("nodes")
	if !nodesField.Exists() {
		return nil, models.Malformed("missing nodes")
	}
	if !nodesField.IsArray() {
		return nil, models.Malformed("nodes must be an array, got %s", nodesField.Type)
	}

	snap := &models.ExecutionSnapshot{
		RunID:        doc.Get("workflowId").String(),
		Status:       status,
		StartedAt:    doc.Get("startedAt").Int(),
		EndedAt:      doc.Get("endedAt").Int(),
		DurationMs:   doc.Get("durationMs").Int(),
		WorkflowLogs: stringArray(doc.Get("logs")),
		ErrorMessage: optionalString(doc.Get("error")),
		NodeResults:  make([]models.NodeResult, 0, len(nodesField.Array())),
	}
	if snap.RunID == "" {
		snap.RunID = runID
	}
	if meta, ok := doc.Get("meta").Value().(map[string]interface{}); ok {
		snap.Meta = meta
	}

	for i, node := range nodesField.Array() {
		if !node.IsObject() {
			return nil, models.Malformed("nodes[%d] is not an object", i)
		}
		snap.NodeResults = append(snap.NodeResults, parseNode(node))
	}

	snap.TotalNodeCount = totalNodeCount(doc, len(snap.NodeResults))

	return snap, nil
}

func parseNode(node gjson.Result) models.NodeResult {
	status, ok := NormalizeStatus(node.Get("status").String())
	if !ok {
		// Keep what the engine sent; consumers treat unknown node
		// statuses as not yet completed.
		status = models.Status(strings.ToLower(node.Get("status").String()))
	}

	result := models.NodeResult{
		NodeID:       node.Get("nodeId").String(),
		NodeType:     node.Get("nodeType").String(),
		Status:       status,
		TimestampSec: node.Get("timestamp").Int(),
		DurationMs:   node.Get("durationMs").Int(),
		Logs:         stringArray(node.Get("logs")),
		Error:        optionalString(node.Get("error")),
	}
	if r := node.Get("result"); r.Exists() && r.Type != gjson.Null {
		result.Result = r.Value()
	}
	if m := node.Get("meta"); m.Exists() && m.Type != gjson.Null {
		result.Meta = m.Value()
	}
	return result
}

// totalNodeCount prefers an explicit count from the engine over the number
// of node results, which only lists nodes that have reported.
func totalNodeCount(doc gjson.Result, reported int) int {
	for _, path := range []string{"numberOfNodes", "meta.totalNodes"} {
		if v := doc.Get(path); v.Exists() && v.Int() > 0 {
			return int(v.Int())
		}
	}
	return reported
}

// NormalizeStatus maps a wire status onto a known status. Older engine
// builds and the first editor prototype used completed/failed/pending.
func NormalizeStatus(raw string) (models.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "pending":
		return models.StatusRunning, true
	case "success", "completed":
		return models.StatusSuccess, true
	case "error", "failed":
		return models.StatusError, true
	case "skipped":
		return models.StatusSkipped, true
	}
	return "", false
}

func stringArray(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	items := v.Array()
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}

func optionalString(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

package models

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/xka/flowmon/common/xjson"
)

// NodeKind identifies the task a node performs. Values are the editor's
// node type names.
type NodeKind string

const (
	KindManualStart NodeKind = "manualStartNode"
	KindHTTPRequest NodeKind = "httpRequestNode"
	KindWait        NodeKind = "waitingNode"
)

// Known reports whether the kind has a typed parameter record
func (k NodeKind) Known() bool {
	switch k {
	case KindManualStart, KindHTTPRequest, KindWait:
		return true
	}
	return false
}

// Params is the kind-specific parameter record of a node
type Params interface {
	Kind() NodeKind
	fields() map[string]any
}

// ManualStartParams configures the manual trigger that starts a run
type ManualStartParams struct {
	Label string
}

func (ManualStartParams) Kind() NodeKind { return KindManualStart }

func (p ManualStartParams) fields() map[string]any {
	if p.Label == "" {
		return nil
	}
	return map[string]any{"label": p.Label}
}

// HTTPRequestParams configures an outbound HTTP call
type HTTPRequestParams struct {
	Method string
	URL    string
}

func (HTTPRequestParams) Kind() NodeKind { return KindHTTPRequest }

func (p HTTPRequestParams) fields() map[string]any {
	return map[string]any{
		"method": p.Method,
		"url":    p.URL,
	}
}

// WaitParams configures a timed pause. Duration is kept as the editor
// stores it, a string of milliseconds; the worker manager rejects any other
// JSON type.
type WaitParams struct {
	Duration string
}

func (WaitParams) Kind() NodeKind { return KindWait }

func (p WaitParams) fields() map[string]any {
	return map[string]any{"duration": p.Duration}
}

// Milliseconds parses Duration. Surrounding blanks are ignored and
// fractional values are rounded. ok is false for empty, non-numeric or
// negative input.
func (p WaitParams) Milliseconds() (ms int64, ok bool) {
	v := strings.TrimSpace(p.Duration)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(math.Round(f)), true
}

// Position is the canvas placement, carried through untouched
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one task in a workflow graph. Data keys the typed Params do not
// claim are kept in Extra so a decode/encode round trip loses nothing.
type Node struct {
	ID        string
	Kind      NodeKind
	Params    Params
	Position  *Position
	Extra     map[string]any
	Execution NodeExecution
}

// Edge connects two nodes
type Edge struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   *string `json:"type"`
}

// WorkflowGraph is the editor's graph as submitted for execution
type WorkflowGraph struct {
	ID    string `json:"id,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// overlay keys written into node data
const (
	dataExecutionStatus   = "executionStatus"
	dataExecutionDuration = "executionDuration"
	dataExecutionData     = "executionData"
)

type wireNode struct {
	ID       string         `json:"id"`
	Type     *string        `json:"type"`
	Position *Position      `json:"position,omitempty"`
	Data     map[string]any `json:"data"`
}

// MarshalJSON writes the editor's node shape: {id, type, position, data}
func (n Node) MarshalJSON() ([]byte, error) {
	return xjson.Marshal(n.wire(true))
}

// UnmarshalJSON reads the editor's node shape
func (n *Node) UnmarshalJSON(data []byte) error {
	var w wireNode
	if err := xjson.Unmarshal(data, &w); err != nil {
		return err
	}

	decoded, err := decodeNode(w)
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}

// SubmissionData returns the node's data record without overlay fields
func (n Node) SubmissionData() map[string]any {
	return n.data(false)
}

func (n Node) wire(withExecution bool) wireNode {
	var typ *string
	if n.Kind != "" {
		kind := string(n.Kind)
		typ = &kind
	}
	return wireNode{
		ID:       n.ID,
		Type:     typ,
		Position: n.Position,
		Data:     n.data(withExecution),
	}
}

func (n Node) data(withExecution bool) map[string]any {
	data := make(map[string]any, len(n.Extra)+4)
	for k, v := range n.Extra {
		data[k] = cloneValue(v)
	}
	if n.Params != nil {
		maps.Copy(data, n.Params.fields())
	}
	if withExecution && n.Execution.Status != "" {
		data[dataExecutionStatus] = string(n.Execution.Status)
		if n.Execution.DurationMs != nil {
			data[dataExecutionDuration] = *n.Execution.DurationMs
		}
		if n.Execution.Data != nil {
			data[dataExecutionData] = n.Execution.Data
		}
	}
	return data
}

func decodeNode(w wireNode) (Node, error) {
	node := Node{
		ID:       w.ID,
		Position: w.Position,
	}
	if w.Type != nil {
		node.Kind = NodeKind(*w.Type)
	}

	data := maps.Clone(w.Data)
	if data == nil {
		data = map[string]any{}
	}

	execution, err := takeExecution(data)
	if err != nil {
		return Node{}, fmt.Errorf("node %s: %w", w.ID, err)
	}
	node.Execution = execution

	switch node.Kind {
	case KindManualStart:
		node.Params = ManualStartParams{Label: takeString(data, "label")}
	case KindHTTPRequest:
		method := strings.ToUpper(takeString(data, "method"))
		if method == "" {
			method = "GET"
		}
		node.Params = HTTPRequestParams{Method: method, URL: takeString(data, "url")}
	case KindWait:
		node.Params = WaitParams{Duration: takeDecimal(data, "duration")}
	}

	if len(data) > 0 {
		node.Extra = data
	}
	return node, nil
}

func takeExecution(data map[string]any) (NodeExecution, error) {
	var execution NodeExecution

	if raw, ok := data[dataExecutionStatus]; ok {
		delete(data, dataExecutionStatus)
		if s, ok := raw.(string); ok {
			execution.Status = ExecutionStatus(s)
		}
	}
	if _, ok := data[dataExecutionDuration]; ok {
		d, err := takeInt(data, dataExecutionDuration)
		if err != nil {
			return execution, err
		}
		execution.DurationMs = &d
	}
	if raw, ok := data[dataExecutionData]; ok {
		delete(data, dataExecutionData)
		encoded, err := xjson.Marshal(raw)
		if err != nil {
			return execution, fmt.Errorf("executionData: %w", err)
		}
		var result NodeResult
		if err := xjson.Unmarshal(encoded, &result); err == nil {
			execution.Data = &result
		}
	}
	return execution, nil
}

func takeString(data map[string]any, key string) string {
	raw, ok := data[key]
	if !ok {
		return ""
	}
	delete(data, key)
	switch v := raw.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// takeDecimal reads a value the editor keeps as text. Numbers written by
// other tools are rendered in plain decimal notation.
func takeDecimal(data map[string]any, key string) string {
	raw, ok := data[key]
	if !ok {
		return ""
	}
	delete(data, key)
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// takeInt accepts JSON numbers and numeric strings; the editor's number
// inputs store their value as a string.
func takeInt(data map[string]any, key string) (int64, error) {
	raw, ok := data[key]
	if !ok {
		return 0, nil
	}
	delete(data, key)
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, v)
		}
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s: unsupported value %T", key, raw)
	}
}

// FindNode returns the node with the given id
func (g *WorkflowGraph) FindNode(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// NodesByKind returns the nodes of one kind in graph order
func (g *WorkflowGraph) NodesByKind(kind NodeKind) []Node {
	nodes := make([]Node, 0)
	for _, n := range g.Nodes {
		if n.Kind == kind {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Validate checks structural invariants: unique non-empty node ids and
// edges whose endpoints exist.
func (g *WorkflowGraph) Validate() error {
	if g == nil || len(g.Nodes) == 0 {
		return &GraphError{Field: "nodes", Message: "no nodes provided"}
	}

	seen := make(map[string]struct{}, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.ID == "" {
			return &GraphError{Field: "nodes", Message: fmt.Sprintf("node %d has an empty id", i)}
		}
		if _, dup := seen[n.ID]; dup {
			return &GraphError{Field: "nodes", Message: fmt.Sprintf("duplicate node id %s", n.ID)}
		}
		seen[n.ID] = struct{}{}
	}

	for _, e := range g.Edges {
		_, okSource := seen[e.Source]
		_, okTarget := seen[e.Target]
		if !okSource || !okTarget {
			return &GraphError{
				Field:   "edges",
				Message: fmt.Sprintf("invalid edge %s from %s to %s", e.ID, e.Source, e.Target),
			}
		}
	}

	return nil
}

// ValidateForSubmit applies Validate plus the worker manager's entry rule:
// exactly one manual start node.
func (g *WorkflowGraph) ValidateForSubmit() error {
	if err := g.Validate(); err != nil {
		return err
	}

	switch len(g.NodesByKind(KindManualStart)) {
	case 0:
		return &GraphError{Field: "workflow", Message: "no manual start node found"}
	case 1:
		return nil
	default:
		return &GraphError{Field: "workflow", Message: "multiple manual start nodes found"}
	}
}

// Clone returns a deep enough copy for overlay and patch operations
func (g *WorkflowGraph) Clone() *WorkflowGraph {
	if g == nil {
		return nil
	}
	out := &WorkflowGraph{
		ID:    g.ID,
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		if e.Type != nil {
			typ := *e.Type
			e.Type = &typ
		}
		out.Edges[i] = e
	}
	return out
}

// Clone copies the node; Extra, including nested maps and slices, and
// Position are not shared with the original
func (n Node) Clone() Node {
	out := n
	if n.Extra != nil {
		out.Extra = cloneValue(n.Extra).(map[string]any)
	}
	if n.Position != nil {
		p := *n.Position
		out.Position = &p
	}
	out.Execution = n.Execution.clone()
	return out
}

// cloneValue deep-copies decoded JSON: objects and arrays are copied
// recursively, scalars are returned as is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

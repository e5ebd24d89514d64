package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOperations_Accepts(t *testing.T) {
	ops := []map[string]interface{}{
		{"op": "replace", "path": "/nodes/1/data/url", "value": "https://example.org"},
		{"op": "add", "path": "/nodes/-", "value": map[string]interface{}{"id": "late", "type": "waitingNode", "data": map[string]interface{}{"duration": 10}}},
		{"op": "add", "path": "/edges/-", "value": map[string]interface{}{"id": "e3", "source": "a", "target": "late"}},
		{"op": "remove", "path": "/edges/0"},
		{"op": "test", "path": "/id", "value": "wf"},
		{"op": "copy", "from": "/nodes/0/data", "path": "/nodes/2/data"},
	}

	require.NoError(t, NewPatchValidator().ValidateOperations(ops))
}

func TestValidateOperations_Rejects(t *testing.T) {
	tests := []struct {
		name string
		op   map[string]interface{}
		want string
	}{
		{"missing op", map[string]interface{}{"path": "/nodes/0"}, "'op'"},
		{"missing path", map[string]interface{}{"op": "remove"}, "'path'"},
		{"unknown op", map[string]interface{}{"op": "merge", "path": "/nodes/0"}, "unsupported operation"},
		{"outside graph", map[string]interface{}{"op": "replace", "path": "/metadata", "value": 1}, "outside the graph"},
		{"prefix only", map[string]interface{}{"op": "replace", "path": "/nodesX", "value": 1}, "outside the graph"},
		{"no value", map[string]interface{}{"op": "replace", "path": "/nodes/0/data"}, "'value' required"},
		{"remove all nodes", map[string]interface{}{"op": "remove", "path": "/nodes"}, "wholesale"},
		{"move without from", map[string]interface{}{"op": "move", "path": "/nodes/0"}, "'from'"},
		{"move from outside", map[string]interface{}{"op": "move", "from": "/x", "path": "/nodes/0"}, "outside the graph"},
		{"node not object", map[string]interface{}{"op": "add", "path": "/nodes/-", "value": "node"}, "must be an object"},
		{"node without id", map[string]interface{}{"op": "add", "path": "/nodes/-", "value": map[string]interface{}{"type": "waitingNode"}}, "'id'"},
		{"node without type", map[string]interface{}{"op": "add", "path": "/nodes/-", "value": map[string]interface{}{"id": "n"}}, "'type'"},
		{"data not object", map[string]interface{}{"op": "add", "path": "/nodes/-", "value": map[string]interface{}{"id": "n", "type": "waitingNode", "data": []interface{}{"x"}}}, "'data'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPatchValidator().ValidateOperations([]map[string]interface{}{tt.op})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateOperations_NodeLimit(t *testing.T) {
	ops := make([]map[string]interface{}, 0, 3)
	for i := 0; i < 3; i++ {
		ops = append(ops, map[string]interface{}{
			"op":    "add",
			"path":  "/nodes/-",
			"value": map[string]interface{}{"id": fmt.Sprintf("n%d", i), "type": "waitingNode"},
		})
	}

	err := NewPatchValidator().WithMaxAddedNodes(2).ValidateOperations(ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempted: 3")

	assert.NoError(t, NewPatchValidator().WithMaxAddedNodes(0).ValidateOperations(ops))
}

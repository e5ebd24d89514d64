// Package validation checks JSON patch documents before they are applied to
// a workflow graph.
package validation

import (
	"fmt"
	"strings"
)

// DefaultMaxAddedNodes caps how many nodes a single patch may append
const DefaultMaxAddedNodes = 50

// patchable top-level members of a workflow graph document
var patchRoots = []string{"/nodes", "/edges", "/id"}

// PatchValidator validates JSON Patch operations for workflow graphs
type PatchValidator struct {
	maxAddedNodes int
}

// NewPatchValidator creates a validator with the default node limit
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{maxAddedNodes: DefaultMaxAddedNodes}
}

// WithMaxAddedNodes overrides the per-patch node limit. Zero disables it.
func (v *PatchValidator) WithMaxAddedNodes(n int) *PatchValidator {
	v.maxAddedNodes = n
	return v
}

// ValidateOperations validates all patch operations
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	added := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}

		if op["op"] == "add" && op["path"] == "/nodes/-" {
			added++
		}
	}

	if v.maxAddedNodes > 0 && added > v.maxAddedNodes {
		return fmt.Errorf("patch validation failed: cannot add more than %d nodes per patch (attempted: %d)", v.maxAddedNodes, added)
	}

	return nil
}

func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}
	if err := checkPath(path, index, "path"); err != nil {
		return err
	}

	switch opType {
	case "add", "replace", "test":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}

		if opType == "add" && path == "/nodes/-" {
			if err := v.validateNodeValue(op["value"], index); err != nil {
				return err
			}
		}

	case "remove":
		if path == "/nodes" || path == "/edges" {
			return fmt.Errorf("operation %d: cannot remove %s wholesale", index, path)
		}

	case "move", "copy":
		from, ok := op["from"].(string)
		if !ok {
			return fmt.Errorf("operation %d: 'from' required for %s operation", index, opType)
		}
		if err := checkPath(from, index, "from"); err != nil {
			return err
		}

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}

func checkPath(path string, index int, field string) error {
	for _, root := range patchRoots {
		if path == root || strings.HasPrefix(path, root+"/") {
			return nil
		}
	}
	return fmt.Errorf("operation %d: '%s' %q is outside the graph (allowed: %s)", index, field, path, strings.Join(patchRoots, ", "))
}

func (v *PatchValidator) validateNodeValue(value interface{}, opIndex int) error {
	nodeValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: node value must be an object, got %T", opIndex, value)
	}

	if id, ok := nodeValue["id"].(string); !ok || id == "" {
		return fmt.Errorf("operation %d: node must have 'id' field (string)", opIndex)
	}

	if _, ok := nodeValue["type"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'type' field (string)", opIndex)
	}

	if data, exists := nodeValue["data"]; exists && data != nil {
		if _, ok := data.(map[string]interface{}); !ok {
			return fmt.Errorf("operation %d: node 'data' must be an object, got %T", opIndex, data)
		}
	}

	return nil
}

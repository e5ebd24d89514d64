// Package graph loads workflow graphs from files or URLs and applies JSON
// patch overrides to them.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/viant/afs"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/validation"
	"github.com/xka/flowmon/common/xjson"
	"gopkg.in/yaml.v3"
)

// Logger interface for graph loading
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Loader reads graphs and patches from any location afs can open
// (local paths, file://, mem://, cloud storage URLs).
type Loader struct {
	fs     afs.Service
	logger Logger
}

// NewLoader creates a loader backed by afs
func NewLoader(logger Logger) *Loader {
	return &Loader{
		fs:     afs.New(),
		logger: logger,
	}
}

// Load reads and validates a graph. YAML is accepted for .yaml/.yml
// locations, JSON otherwise.
func (l *Loader) Load(ctx context.Context, location string) (*models.WorkflowGraph, error) {
	data, err := l.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", location, err)
	}

	g, err := Decode(location, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode graph %s: %w", location, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph %s: %w", location, err)
	}

	l.logger.Info("graph loaded",
		"location", location,
		"nodes", len(g.Nodes),
		"edges", len(g.Edges))
	return g, nil
}

// LoadPatch reads a JSON patch document (RFC 6902), in JSON or YAML
func (l *Loader) LoadPatch(ctx context.Context, location string) ([]byte, error) {
	data, err := l.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read patch %s: %w", location, err)
	}

	patch, err := toJSON(location, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch %s: %w", location, err)
	}
	if _, err := jsonpatch.DecodePatch(patch); err != nil {
		return nil, fmt.Errorf("failed to decode patch %s: %w", location, err)
	}
	if err := ValidatePatch(patch); err != nil {
		return nil, fmt.Errorf("invalid patch %s: %w", location, err)
	}
	return patch, nil
}

// Decode parses a graph document. name only selects the format.
func Decode(name string, data []byte) (*models.WorkflowGraph, error) {
	doc, err := toJSON(name, data)
	if err != nil {
		return nil, err
	}

	var g models.WorkflowGraph
	if err := xjson.Unmarshal(doc, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &g, nil
}

// ApplyPatch applies a JSON patch to the graph's wire form and returns the
// patched copy. The input graph is left untouched.
func ApplyPatch(g *models.WorkflowGraph, patchJSON []byte) (*models.WorkflowGraph, error) {
	if g == nil {
		return nil, fmt.Errorf("apply patch: %w: no graph", models.ErrNotInitialized)
	}
	if len(bytes.TrimSpace(patchJSON)) == 0 {
		return g.Clone(), nil
	}

	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	if err := ValidatePatch(patchJSON); err != nil {
		return nil, err
	}

	workflowJSON, err := xjson.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow: %w", err)
	}

	modifiedJSON, err := patch.Apply(workflowJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch operations: %w", err)
	}

	var patched models.WorkflowGraph
	if err := xjson.Unmarshal(modifiedJSON, &patched); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patched workflow: %w", err)
	}
	if err := patched.Validate(); err != nil {
		return nil, fmt.Errorf("patched workflow is invalid: %w", err)
	}
	return &patched, nil
}

// ValidatePatch checks that every operation targets the graph's nodes, edges
// or id and that appended nodes carry an id and a type.
func ValidatePatch(patchJSON []byte) error {
	var ops []map[string]interface{}
	if err := xjson.Unmarshal(patchJSON, &ops); err != nil {
		return fmt.Errorf("failed to decode patch: %w", err)
	}
	return validation.NewPatchValidator().ValidateOperations(ops)
}

func toJSON(name string, data []byte) ([]byte, error) {
	if !isYAML(name, data) {
		return data, nil
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	out, err := xjson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml: %w", err)
	}
	return out, nil
}

func isYAML(name string, data []byte) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '['
}

// Package condition evaluates CEL stop conditions against execution
// snapshots.
//
// Expressions see these variables:
//
//	status    run status string ("running", "success", "error", "skipped")
//	progress  completion percentage, int
//	counts    {total, succeeded, failed, skipped, pending}
//	nodes     node id -> {status, durationMs, error, logs}
//	snapshot  the whole snapshot document; $.field is shorthand for snapshot.field
//
// Example: progress >= 50 || nodes.fetch.status == "error"
package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/progress"
	"github.com/xka/flowmon/common/xjson"
)

// Logger interface for condition evaluation
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Evaluator evaluates conditions using CEL (Common Expression Language)
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new condition evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Compile checks an expression and caches its program
func (e *Evaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate evaluates expr against the snapshot
func (e *Evaluator) Evaluate(expr string, s *models.ExecutionSnapshot) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("evaluate %q: %w: no snapshot", expr, models.ErrNotInitialized)
	}

	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	vars, err := activation(s)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

// StopWhen compiles expr into a poller stop condition. Evaluation errors
// are logged and treated as false so a bad field reference never stops a
// run early.
func (e *Evaluator) StopWhen(expr string, logger Logger) (func(*models.ExecutionSnapshot) bool, error) {
	if err := e.Compile(expr); err != nil {
		return nil, err
	}

	return func(s *models.ExecutionSnapshot) bool {
		ok, err := e.Evaluate(expr, s)
		if err != nil {
			logger.Warn("stop condition evaluation failed", "expression", expr, "error", err)
			return false
		}
		if ok {
			logger.Info("stop condition met", "expression", expr, "status", s.Status)
		}
		return ok
	}, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	normalizedExpr := strings.ReplaceAll(strings.TrimSpace(expr), "$.", "snapshot.")
	if normalizedExpr == "" {
		return nil, fmt.Errorf("empty condition")
	}

	e.mu.RLock()
	prg, exists := e.cache[normalizedExpr]
	e.mu.RUnlock()
	if exists {
		return prg, nil
	}

	prg, err := e.compileCEL(normalizedExpr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[normalizedExpr] = prg
	e.mu.Unlock()
	return prg, nil
}

// compileCEL compiles a CEL expression
func (e *Evaluator) compileCEL(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("status", cel.StringType),
		cel.Variable("progress", cel.IntType),
		cel.Variable("counts", cel.DynType),
		cel.Variable("nodes", cel.DynType),
		cel.Variable("snapshot", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	if out := ast.OutputType().String(); out != "bool" && out != "dyn" {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func activation(s *models.ExecutionSnapshot) (map[string]interface{}, error) {
	doc, err := xjson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	var snapshot map[string]interface{}
	if err := xjson.Unmarshal(doc, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	nodes := make(map[string]interface{}, len(s.NodeResults))
	for _, r := range s.NodeResults {
		logs := r.Logs
		if logs == nil {
			logs = []string{}
		}
		nodes[r.NodeID] = map[string]interface{}{
			"status":     string(r.Status),
			"durationMs": r.DurationMs,
			"error":      r.Error,
			"logs":       logs,
		}
	}

	c := progress.Summary(s)
	return map[string]interface{}{
		"status":   string(s.Status),
		"progress": int64(progress.Percent(s)),
		"counts": map[string]interface{}{
			"total":     int64(c.Total),
			"succeeded": int64(c.Succeeded),
			"failed":    int64(c.Failed),
			"skipped":   int64(c.Skipped),
			"pending":   int64(c.Pending),
		},
		"nodes":    nodes,
		"snapshot": snapshot,
	}, nil
}

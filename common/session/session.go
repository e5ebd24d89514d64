// Package session persists the current polling session of each editor so a
// restarted monitor can pick up unfinished runs. Only the latest session per
// editor is kept.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/redis"
	"github.com/xka/flowmon/common/xjson"
)

// ErrNotFound is returned when an editor has no stored session
var ErrNotFound = errors.New("session not found")

// Record is the persisted part of an editor session
type Record struct {
	EditorID     string                `json:"editor_id"`
	RunID        string                `json:"run_id"`
	State        string                `json:"state"`
	Graph        *models.WorkflowGraph `json:"graph,omitempty"`
	LastSnapshot xjson.RawMessage      `json:"last_snapshot,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Store keeps one record per editor
type Store interface {
	Get(ctx context.Context, editorID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, editorID string) error
	List(ctx context.Context) ([]*Record, error)
	Close() error
}

// Logger interface for session stores
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// NewStore builds the store selected by cfg.Session.Backend. The redis
// client is only required for the redis backend.
func NewStore(cfg *config.Config, client *redis.Client, logger Logger) (Store, error) {
	switch cfg.Session.Backend {
	case "", config.SessionBackendMemory:
		return NewMemoryStore(cfg.Session.TTL, logger), nil
	case config.SessionBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis session backend requires a redis client")
		}
		return NewRedisStore(client, cfg.Session.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func encodeRecord(rec *Record) ([]byte, error) {
	data, err := xjson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session %s: %w", rec.EditorID, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := xjson.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &rec, nil
}

func validate(rec *Record) error {
	if rec == nil || rec.EditorID == "" {
		return fmt.Errorf("store session: %w: missing editor id", models.ErrNotInitialized)
	}
	return nil
}

package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xka/flowmon/common/redis"
	"github.com/xka/flowmon/common/xjson"
)

const (
	redisKeyPrefix = "flowmon:session:"
	redisIndexKey  = "flowmon:sessions"
)

// RedisStore keeps each session in a hash keyed by editor id, with a set
// indexing the editors that have one.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger Logger
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps records
// until they are deleted.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func sessionKey(editorID string) string {
	return redisKeyPrefix + editorID
}

// Get returns the editor's record or ErrNotFound
func (s *RedisStore) Get(ctx context.Context, editorID string) (*Record, error) {
	fields, err := s.client.GetAllHash(ctx, sessionKey(editorID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return recordFromHash(editorID, fields)
}

// Put stores the record, replacing any previous one for the editor
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	fields, err := hashFromRecord(rec)
	if err != nil {
		return err
	}

	key := sessionKey(rec.EditorID)
	pipe := s.client.NewPipeline()
	pipe.Delete(ctx, key)
	pipe.SetHashFields(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	pipe.AddToSet(ctx, redisIndexKey, rec.EditorID)
	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session %s: %w", rec.EditorID, err)
	}

	s.logger.Debug("session stored", "editor_id", rec.EditorID, "run_id", rec.RunID)
	return nil
}

// Delete removes the editor's record
func (s *RedisStore) Delete(ctx context.Context, editorID string) error {
	pipe := s.client.NewPipeline()
	pipe.Delete(ctx, sessionKey(editorID))
	pipe.RemoveFromSet(ctx, redisIndexKey, editorID)
	if err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", editorID, err)
	}
	return nil
}

// List returns all stored records ordered by editor id. Index entries whose
// hash expired are pruned.
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	editors, err := s.client.SetMembers(ctx, redisIndexKey)
	if err != nil {
		return nil, err
	}
	sort.Strings(editors)

	records := make([]*Record, 0, len(editors))
	for _, editorID := range editors {
		rec, err := s.Get(ctx, editorID)
		if err == ErrNotFound {
			if err := s.client.RemoveFromSet(ctx, redisIndexKey, editorID); err != nil {
				s.logger.Warn("failed to prune session index", "editor_id", editorID, "error", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func hashFromRecord(rec *Record) (map[string]interface{}, error) {
	fields := map[string]interface{}{
		"run_id":     rec.RunID,
		"state":      rec.State,
		"updated_at": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.Graph != nil {
		graph, err := xjson.Marshal(rec.Graph)
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph for %s: %w", rec.EditorID, err)
		}
		fields["graph"] = string(graph)
	}
	if len(rec.LastSnapshot) > 0 {
		fields["last_snapshot"] = string(rec.LastSnapshot)
	}
	return fields, nil
}

func recordFromHash(editorID string, fields map[string]string) (*Record, error) {
	rec := &Record{
		EditorID: editorID,
		RunID:    fields["run_id"],
		State:    fields["state"],
	}
	if ts := fields["updated_at"]; ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at for %s: %w", editorID, err)
		}
		rec.UpdatedAt = t
	}
	if graph := fields["graph"]; graph != "" {
		if err := xjson.Unmarshal([]byte(graph), &rec.Graph); err != nil {
			return nil, fmt.Errorf("failed to decode graph for %s: %w", editorID, err)
		}
	}
	if snap := fields["last_snapshot"]; snap != "" {
		rec.LastSnapshot = xjson.RawMessage(snap)
	}
	return rec, nil
}

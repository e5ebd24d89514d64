package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/redis"
	"github.com/xka/flowmon/common/xjson"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

func sampleRecord(editorID string) *Record {
	return &Record{
		EditorID: editorID,
		RunID:    "run-" + editorID,
		State:    "polling",
		Graph: &models.WorkflowGraph{
			Nodes: []models.Node{{ID: "start", Kind: models.KindManualStart, Params: models.ManualStartParams{Label: "Start"}}},
		},
		LastSnapshot: xjson.RawMessage(`{"status":"running","nodes":[]}`),
		UpdatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Put(ctx, sampleRecord("b")))
	require.NoError(t, store.Put(ctx, sampleRecord("a")))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.RunID)
	assert.Equal(t, "polling", got.State)
	assert.JSONEq(t, `{"status":"running","nodes":[]}`, string(got.LastSnapshot))
	require.NotNil(t, got.Graph)
	assert.Equal(t, "start", got.Graph.Nodes[0].ID)
	assert.True(t, got.UpdatedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	replaced := sampleRecord("a")
	replaced.RunID = "run-a2"
	replaced.State = "stopped"
	replaced.Graph = nil
	replaced.LastSnapshot = nil
	require.NoError(t, store.Put(ctx, replaced))

	got, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "run-a2", got.RunID)
	assert.Nil(t, got.Graph)
	assert.Empty(t, got.LastSnapshot)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].EditorID)
	assert.Equal(t, "b", records[1].EditorID)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))

	records, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].EditorID)

	err = store.Put(ctx, &Record{RunID: "orphan"})
	assert.True(t, errors.Is(err, models.ErrNotInitialized))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(0, &testLogger{t: t})
	defer store.Close()

	exerciseStore(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := NewMemoryStore(0, &testLogger{t: t})
	defer store.Close()
	ctx := context.Background()

	rec := sampleRecord("a")
	require.NoError(t, store.Put(ctx, rec))
	rec.RunID = "mutated"

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.RunID)
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore(time.Minute, &testLogger{t: t})
	defer store.Close()
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, sampleRecord("a")))
	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrNotFound))

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	store.purge()
	assert.Equal(t, 0, store.Stats()["entries"])
}

func TestMemoryStore_CloseTwice(t *testing.T) {
	store := NewMemoryStore(0, &testLogger{t: t})
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestRedisStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := redis.Connect(ctx, redis.Options{Addr: "localhost:6379", DB: 15}, &testLogger{t: t})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	store := NewRedisStore(client, time.Minute, &testLogger{t: t})
	defer store.Close()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.Delete(ctx, id))
	}
	t.Cleanup(func() {
		for _, id := range []string{"a", "b"} {
			_ = store.Delete(context.Background(), id)
		}
	})

	exerciseStore(t, store)
}

func TestNewStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Session.Backend = config.SessionBackendMemory

	store, err := NewStore(cfg, nil, &testLogger{t: t})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	store.Close()

	cfg.Session.Backend = config.SessionBackendRedis
	_, err = NewStore(cfg, nil, &testLogger{t: t})
	assert.Error(t, err)

	cfg.Session.Backend = "etcd"
	_, err = NewStore(cfg, nil, &testLogger{t: t})
	assert.Error(t, err)
}

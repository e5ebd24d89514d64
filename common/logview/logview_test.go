package logview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/common/models"
)

func sampleSnapshot() *models.ExecutionSnapshot {
	return &models.ExecutionSnapshot{
		RunID:        "run-1",
		Status:       models.StatusRunning,
		WorkflowLogs: []string{"w0", "w1"},
		NodeResults: []models.NodeResult{
			{NodeID: "start", Status: models.StatusSuccess, Logs: []string{"s0"}},
			{NodeID: "fetch", Status: models.StatusSuccess, Logs: []string{"f0", "f1", "f2"}},
			{NodeID: "quiet", Status: models.StatusSuccess},
			{NodeID: "wait", Status: models.StatusError, Logs: []string{}},
		},
	}
}

func TestAggregate_DefaultOrder(t *testing.T) {
	entries := Collect(sampleSnapshot(), FilterAll)
	require.Len(t, entries, 6)

	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{"w0", "w1", "s0", "f0", "f1", "f2"}, texts)

	assert.Equal(t, models.LogSource{Kind: models.LogSourceWorkflow}, entries[0].Source)
	assert.Equal(t, 1, entries[1].SequenceIndex)
	assert.Equal(t, models.LogSource{Kind: models.LogSourceNode, NodeID: "start"}, entries[2].Source)
	assert.Equal(t, 0, entries[2].SequenceIndex)
	assert.Equal(t, 0, entries[3].SequenceIndex, "index restarts per node")
	assert.Equal(t, 2, entries[5].SequenceIndex)
}

func TestAggregate_Filters(t *testing.T) {
	snap := sampleSnapshot()

	workflow := Collect(snap, FilterWorkflow)
	require.Len(t, workflow, 2)
	for _, e := range workflow {
		assert.Equal(t, models.LogSourceWorkflow, e.Source.Kind)
	}

	fetch := Collect(snap, "fetch")
	require.Len(t, fetch, 3)
	for _, e := range fetch {
		assert.Equal(t, "fetch", e.Source.NodeID)
	}

	assert.Empty(t, Collect(snap, "missing"))
	assert.Len(t, Collect(snap, ""), 6)
}

func TestAggregate_FilterRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	all := Collect(snap, FilterAll)
	union := Collect(snap, FilterWorkflow)
	for _, r := range snap.NodeResults {
		union = append(union, Collect(snap, r.NodeID)...)
	}

	assert.ElementsMatch(t, all, union)

	keys := make(map[string]struct{}, len(all))
	for _, e := range all {
		_, dup := keys[e.Key()]
		assert.False(t, dup, "duplicate key %s", e.Key())
		keys[e.Key()] = struct{}{}
	}
}

func TestAggregate_Restartable(t *testing.T) {
	seq := Aggregate(sampleSnapshot(), FilterAll)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, 6, first)
	assert.Equal(t, first, second)
}

func TestAggregate_EarlyBreak(t *testing.T) {
	var got []string
	for e := range Aggregate(sampleSnapshot(), FilterAll) {
		got = append(got, e.Text)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"w0", "w1", "s0"}, got)
}

func TestAggregate_NilSnapshot(t *testing.T) {
	assert.Empty(t, Collect(nil, FilterAll))
	assert.NotNil(t, Collect(nil, FilterAll))
	assert.Equal(t, 0, Total(nil))
	assert.Empty(t, AvailableNodes(nil))
}

func TestAvailableNodes(t *testing.T) {
	nodes := AvailableNodes(sampleSnapshot())
	require.Len(t, nodes, 2)
	assert.Equal(t, "start", nodes[0].NodeID)
	assert.Equal(t, "fetch", nodes[1].NodeID)
}

func TestOptions(t *testing.T) {
	opts := Options(sampleSnapshot())

	assert.Equal(t, []FilterOption{
		{Value: "all", Label: "All Sources (6)", Count: 6},
		{Value: "workflow", Label: "Workflow (2)", Count: 2},
		{Value: "start", Label: "Node start (1)", Count: 1},
		{Value: "fetch", Label: "Node fetch (3)", Count: 3},
	}, opts)

	empty := Options(nil)
	require.Len(t, empty, 2)
	assert.Equal(t, "All Sources (0)", empty[0].Label)
}

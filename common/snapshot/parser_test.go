package snapshot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xka/flowmon/common/models"
)

func TestParse_FullPayload(t *testing.T) {
	raw := []byte(`{
		"workflowId": "run-1",
		"status": "running",
		"startedAt": 1700000000,
		"endedAt": 0,
		"durationMs": 1500,
		"numberOfNodes": 3,
		"logs": ["workflow started", "dispatching"],
		"nodes": [
			{"nodeId": "start", "nodeType": "manualStartNode", "status": "success", "timestamp": 1700000000, "durationMs": 1, "logs": ["triggered"]},
			{"nodeId": "fetch", "nodeType": "httpRequestNode", "status": "error", "durationMs": 40, "error": "dial tcp: refused", "result": {"statusCode": 0}}
		],
		"extra": {"ignored": true}
	}`)

	snap, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, models.StatusRunning, snap.Status)
	assert.Equal(t, int64(1700000000), snap.StartedAt)
	assert.Equal(t, int64(1500), snap.DurationMs)
	assert.Equal(t, 3, snap.TotalNodeCount)
	assert.Equal(t, []string{"workflow started", "dispatching"}, snap.WorkflowLogs)
	require.Len(t, snap.NodeResults, 2)

	start := snap.NodeResults[0]
	assert.Equal(t, "start", start.NodeID)
	assert.Equal(t, models.StatusSuccess, start.Status)
	assert.Equal(t, []string{"triggered"}, start.Logs)
	assert.Nil(t, start.Result)

	fetch := snap.NodeResults[1]
	assert.Equal(t, models.StatusError, fetch.Status)
	assert.Equal(t, "dial tcp: refused", fetch.Error)
	assert.Empty(t, fetch.Logs)
	assert.Equal(t, map[string]interface{}{"statusCode": float64(0)}, fetch.Result)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"invalid json", `{"status": "running"`},
		{"array", `[1,2,3]`},
		{"missing status", `{"nodes": []}`},
		{"status not string", `{"status": 1, "nodes": []}`},
		{"unknown status", `{"status": "paused", "nodes": []}`},
		{"missing nodes", `{"status": "running"}`},
		{"nodes not array", `{"status": "running", "nodes": {}}`},
		{"nodes null", `{"status": "running", "nodes": null}`},
		{"node not object", `{"status": "running", "nodes": ["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Parse([]byte(tt.raw))
			assert.Nil(t, snap)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrMalformedPayload), "got %v", err)
		})
	}
}

func TestParse_EmptyRunIsValid(t *testing.T) {
	snap, err := Parse([]byte(`{"status": "running", "nodes": []}`))
	require.NoError(t, err)

	assert.Equal(t, 0, snap.TotalNodeCount)
	assert.Empty(t, snap.NodeResults)
	assert.Empty(t, snap.WorkflowLogs)
	assert.Empty(t, snap.ErrorMessage)
}

func TestParse_OptionalFieldsTolerated(t *testing.T) {
	raw := []byte(`{
		"status": "error",
		"error": null,
		"logs": null,
		"durationMs": "oops",
		"meta": "not-an-object",
		"nodes": [{"nodeId": "a", "status": "success", "logs": null, "meta": null}]
	}`)

	snap, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, models.StatusError, snap.Status)
	assert.Empty(t, snap.ErrorMessage)
	assert.Nil(t, snap.WorkflowLogs)
	assert.Equal(t, int64(0), snap.DurationMs)
	assert.Nil(t, snap.Meta)
	assert.Equal(t, 1, snap.TotalNodeCount)
	assert.Nil(t, snap.NodeResults[0].Logs)
	assert.Nil(t, snap.NodeResults[0].Meta)
}

func TestParse_NodeCountPrecedence(t *testing.T) {
	snap, err := Parse([]byte(`{"status": "running", "meta": {"totalNodes": 5}, "nodes": [{"nodeId": "a", "status": "success"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 5, snap.TotalNodeCount)

	snap, err = Parse([]byte(`{"status": "running", "numberOfNodes": 4, "meta": {"totalNodes": 5}, "nodes": []}`))
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TotalNodeCount)

	snap, err = Parse([]byte(`{"status": "running", "numberOfNodes": 0, "nodes": [{"nodeId": "a"}, {"nodeId": "b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalNodeCount)
}

func TestParse_StatusAliases(t *testing.T) {
	tests := map[string]models.Status{
		"RUNNING":   models.StatusRunning,
		"pending":   models.StatusRunning,
		"Completed": models.StatusSuccess,
		"success":   models.StatusSuccess,
		"failed":    models.StatusError,
		"Error":     models.StatusError,
		"skipped":   models.StatusSkipped,
	}

	for wire, want := range tests {
		snap, err := Parse([]byte(`{"status": "` + wire + `", "nodes": []}`))
		require.NoError(t, err, wire)
		assert.Equal(t, want, snap.Status, wire)
	}
}

func TestParse_UnknownNodeStatusKept(t *testing.T) {
	snap, err := Parse([]byte(`{"status": "running", "nodes": [{"nodeId": "a", "status": "Queued"}]}`))
	require.NoError(t, err)
	assert.Equal(t, models.Status("queued"), snap.NodeResults[0].Status)
	assert.False(t, snap.NodeResults[0].Status.Valid())
}

func TestParseFor_FillsRunID(t *testing.T) {
	snap, err := ParseFor("run-42", []byte(`{"status": "running", "nodes": []}`))
	require.NoError(t, err)
	assert.Equal(t, "run-42", snap.RunID)

	snap, err = ParseFor("run-42", []byte(`{"workflowId": "run-7", "status": "running", "nodes": []}`))
	require.NoError(t, err)
	assert.Equal(t, "run-7", snap.RunID)
}

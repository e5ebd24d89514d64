package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xka/flowmon/common/models"
)

func results(statuses ...models.Status) []models.NodeResult {
	out := make([]models.NodeResult, len(statuses))
	for i, s := range statuses {
		out[i] = models.NodeResult{NodeID: string(rune('a' + i)), Status: s}
	}
	return out
}

func TestPercent_RunningRatio(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusRunning,
		TotalNodeCount: 4,
		NodeResults:    results(models.StatusSuccess, models.StatusSuccess, models.StatusError),
	}
	assert.Equal(t, 75, Percent(snap))
}

func TestPercent_SuccessShortCircuits(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusSuccess,
		TotalNodeCount: 4,
		NodeResults:    results(models.StatusSuccess),
	}
	assert.Equal(t, 100, Percent(snap))

	snap.NodeResults = nil
	snap.TotalNodeCount = 0
	assert.Equal(t, 100, Percent(snap))
}

func TestPercent_ErrorIsZero(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusError,
		TotalNodeCount: 3,
		NodeResults:    results(models.StatusSuccess, models.StatusSuccess, models.StatusError),
	}
	assert.Equal(t, 0, Percent(snap))
}

func TestPercent_NoNodes(t *testing.T) {
	assert.Equal(t, 0, Percent(&models.ExecutionSnapshot{Status: models.StatusRunning}))
	assert.Equal(t, 0, Percent(&models.ExecutionSnapshot{Status: models.StatusSkipped}))
	assert.Equal(t, 0, Percent(nil))
}

func TestPercent_Rounding(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusRunning,
		TotalNodeCount: 3,
		NodeResults:    results(models.StatusSuccess, models.StatusSuccess),
	}
	assert.Equal(t, 67, Percent(snap))

	snap.NodeResults = results(models.StatusSuccess)
	assert.Equal(t, 33, Percent(snap))
}

func TestPercent_IgnoresUnfinishedNodes(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusSkipped,
		TotalNodeCount: 4,
		NodeResults:    results(models.StatusSuccess, models.StatusSkipped, models.StatusRunning),
	}
	assert.Equal(t, 25, Percent(snap))
}

func TestPercent_ClampsWhenCountIsLow(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusRunning,
		TotalNodeCount: 1,
		NodeResults:    results(models.StatusSuccess, models.StatusSuccess),
	}
	assert.Equal(t, 100, Percent(snap))
}

func TestSummary(t *testing.T) {
	snap := &models.ExecutionSnapshot{
		Status:         models.StatusRunning,
		TotalNodeCount: 6,
		NodeResults: results(
			models.StatusSuccess,
			models.StatusSuccess,
			models.StatusError,
			models.StatusSkipped,
			models.StatusRunning,
		),
	}

	assert.Equal(t, Counts{Total: 6, Succeeded: 2, Failed: 1, Skipped: 1, Pending: 2}, Summary(snap))
	assert.Equal(t, Counts{}, Summary(nil))
}

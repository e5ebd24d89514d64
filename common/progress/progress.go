// Package progress derives completion figures from execution snapshots.
package progress

import (
	"math"

	"github.com/xka/flowmon/common/models"
)

// Percent returns the completion percentage of a run in [0,100].
//
// A successful run is always 100 and a failed run is always 0, whatever its
// node results say. Running and skipped runs report the share of nodes that
// finished (success or error) out of the total node count.
func Percent(s *models.ExecutionSnapshot) int {
	if s == nil {
		return 0
	}

	switch s.Status {
	case models.StatusSuccess:
		return 100
	case models.StatusError:
		return 0
	}

	if s.TotalNodeCount <= 0 {
		return 0
	}

	completed := 0
	for _, r := range s.NodeResults {
		if r.Status == models.StatusSuccess || r.Status == models.StatusError {
			completed++
		}
	}

	pct := int(math.Round(100 * float64(completed) / float64(s.TotalNodeCount)))
	if pct > 100 {
		return 100
	}
	return pct
}

// Counts breaks a run down by node outcome
type Counts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Pending   int `json:"pending"`
}

// Summary counts node outcomes. Pending covers nodes that have not reported
// yet as well as nodes still running.
func Summary(s *models.ExecutionSnapshot) Counts {
	var c Counts
	if s == nil {
		return c
	}

	c.Total = s.TotalNodeCount
	if c.Total < len(s.NodeResults) {
		c.Total = len(s.NodeResults)
	}

	for _, r := range s.NodeResults {
		switch r.Status {
		case models.StatusSuccess:
			c.Succeeded++
		case models.StatusError:
			c.Failed++
		case models.StatusSkipped:
			c.Skipped++
		}
	}
	c.Pending = c.Total - c.Succeeded - c.Failed - c.Skipped
	return c
}

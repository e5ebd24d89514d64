package poller

import (
	"time"

	"github.com/xka/flowmon/common/models"
)

// State is the poller lifecycle state
type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

// View is what a consumer should render for the session
type View string

const (
	// ViewNoData: nothing fetched successfully yet
	ViewNoData View = "no_data"
	// ViewLive: the latest fetch succeeded and the run may still change
	ViewLive View = "live"
	// ViewStale: data from an earlier fetch, the latest fetch failed
	ViewStale View = "stale"
	// ViewConnectionLost: polling gave up after repeated failures
	ViewConnectionLost View = "connection_lost"
	// ViewTerminal: the run finished and polling stopped
	ViewTerminal View = "terminal"
)

// Session is a copy of the polling state. LastSnapshot is shared with the
// poller and must be treated as read-only.
type Session struct {
	RunID               string
	State               State
	IsPolling           bool
	LastSnapshot        *models.ExecutionSnapshot
	LastRaw             []byte
	LastError           error
	ConsecutiveFailures int
	ConnectionLost      bool
	UpdatedAt           time.Time
}

func (s Session) status() models.Status {
	if s.LastSnapshot == nil {
		return ""
	}
	return s.LastSnapshot.Status
}

// IsRunning reports whether the last snapshot says the run is in progress
func (s Session) IsRunning() bool { return s.status() == models.StatusRunning }

// IsCompleted reports whether the run succeeded
func (s Session) IsCompleted() bool { return s.status() == models.StatusSuccess }

// IsFailed reports whether the run failed
func (s Session) IsFailed() bool { return s.status() == models.StatusError }

// IsFinished is IsCompleted || IsFailed
func (s Session) IsFinished() bool { return s.IsCompleted() || s.IsFailed() }

// View classifies the session for display
func (s Session) View() View {
	switch {
	case s.ConnectionLost:
		return ViewConnectionLost
	case s.LastSnapshot == nil:
		return ViewNoData
	case s.LastError != nil:
		return ViewStale
	case s.LastSnapshot.Status.IsTerminal() && !s.IsPolling:
		return ViewTerminal
	default:
		return ViewLive
	}
}

package poller

import (
	"time"

	"github.com/xka/flowmon/common/models"
)

const (
	// DefaultInterval is the base delay between ticks while a run is active
	DefaultInterval               = 500 * time.Millisecond
	DefaultMaxBackoff             = 30 * time.Second
	DefaultFetchTimeout           = 10 * time.Second
	DefaultMaxConsecutiveFailures = 5
)

// Option configures a Poller
type Option func(*Poller)

// WithInterval sets the delay between ticks while a run is in progress
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxBackoff caps the delay after consecutive failures
func WithMaxBackoff(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.maxBackoff = d
		}
	}
}

// WithFetchTimeout bounds each fetch; expiry counts as a failed tick
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithMaxConsecutiveFailures sets how many failed ticks in a row end
// polling with a lost connection.
func WithMaxConsecutiveFailures(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// WithForce keeps polling after the run reaches a terminal status
func WithForce(force bool) Option {
	return func(p *Poller) {
		p.force = force
	}
}

// WithOnUpdate registers an observer called after every settled tick and
// state change. It runs outside the poller lock and may call back into the
// poller.
func WithOnUpdate(fn func(Session)) Option {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// WithStopCondition stops polling once cond returns true for a snapshot.
// Unlike the terminal rule it applies even when forced.
func WithStopCondition(cond func(*models.ExecutionSnapshot) bool) Option {
	return func(p *Poller) {
		p.stopWhen = cond
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

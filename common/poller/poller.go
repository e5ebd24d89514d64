// Package poller tracks one remote run at a time by polling the worker
// manager.
//
// State transitions:
//
//	Idle    --Start(id)--------------> Polling
//	Polling --Start(same id)---------> Polling (no-op)
//	Polling --Start(other id)--------> Polling (fresh session, old fetch abandoned)
//	Polling --Stop / terminal / cond-> Stopped (snapshot kept)
//	Polling --max failures-----------> Stopped (ConnectionLost)
//	Stopped --Start(id)--------------> Polling
//	any     --Clear------------------> Idle (session discarded)
//
// At most one fetch is in flight at a time and tick N+1 is only scheduled
// after tick N settles. A fetch that settles after Stop is still applied; a
// fetch that settles after Clear or a run change is dropped.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/snapshot"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed is returned by operations on a closed poller
var ErrClosed = errors.New("poller closed")

// Fetcher retrieves the raw snapshot of a run
type Fetcher interface {
	FetchStatus(ctx context.Context, runID string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, runID string) ([]byte, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, runID string) ([]byte, error) {
	return f(ctx, runID)
}

// Logger interface for poller logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// Poller owns the polling session of one editor
type Poller struct {
	fetcher Fetcher
	logger  Logger
	tracer  trace.Tracer

	interval     time.Duration
	maxBackoff   time.Duration
	fetchTimeout time.Duration
	maxFailures  int
	force        bool
	onUpdate     func(Session)
	stopWhen     func(*models.ExecutionSnapshot) bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	session     Session
	state       State
	gen         uint64
	loopActive  bool
	inFlight    bool
	refresh     bool
	cancelFetch context.CancelFunc
	wake        chan struct{}
	settled     *settle
	closed      bool
}

// settle is signalled when the current fetch is done with; err is the
// fetch error, if any. err is written before done is closed.
type settle struct {
	done chan struct{}
	err  error
}

func newSettle() *settle {
	return &settle{done: make(chan struct{})}
}

// signalLocked completes the current settle and arms the next one
func (p *Poller) signalLocked(err error) {
	p.settled.err = err
	close(p.settled.done)
	p.settled = newSettle()
}

// New creates an idle poller
func New(fetcher Fetcher, opts ...Option) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		fetcher:      fetcher,
		logger:       nopLogger{},
		tracer:       otel.Tracer("github.com/xka/flowmon/common/poller"),
		interval:     DefaultInterval,
		maxBackoff:   DefaultMaxBackoff,
		fetchTimeout: DefaultFetchTimeout,
		maxFailures:  DefaultMaxConsecutiveFailures,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateIdle,
		settled:      newSettle(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxBackoff < p.interval {
		p.maxBackoff = p.interval
	}
	return p
}

// Start begins polling runID. Starting the run already being polled does
// nothing; starting a different run discards the current session first.
func (p *Poller) Start(runID string) error {
	if runID == "" {
		return fmt.Errorf("start polling: %w: empty run id", models.ErrNotInitialized)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.session.RunID == runID && p.state == StatePolling {
		p.mu.Unlock()
		return nil
	}

	if p.session.RunID != runID {
		p.resetLocked()
		p.session.RunID = runID
	}
	p.session.ConsecutiveFailures = 0
	p.session.ConnectionLost = false
	p.setStateLocked(StatePolling)
	p.ensureLoopLocked()
	session := p.copyLocked()
	p.mu.Unlock()

	p.logger.Info("polling started", "run_id", runID)
	p.notify(session)
	return nil
}

// Restore seeds the session with a previously fetched snapshot, then
// resumes polling unless that snapshot is already terminal.
func (p *Poller) Restore(runID string, raw []byte) error {
	if runID == "" {
		return fmt.Errorf("restore session: %w: empty run id", models.ErrNotInitialized)
	}

	var snap *models.ExecutionSnapshot
	if len(raw) > 0 {
		parsed, err := snapshot.ParseFor(runID, raw)
		if err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		snap = parsed
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.resetLocked()
	p.session.RunID = runID
	p.session.LastSnapshot = snap
	p.session.LastRaw = raw
	p.session.UpdatedAt = time.Now()
	p.setStateLocked(StateStopped)
	p.mu.Unlock()

	if snap != nil && snap.Status.IsTerminal() && !p.force {
		p.notify(p.Session())
		return nil
	}
	return p.Start(runID)
}

// Stop ends polling after the in-flight fetch, if any, settles. The session
// is kept.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state != StatePolling {
		p.mu.Unlock()
		return
	}
	p.setStateLocked(StateStopped)
	if !p.inFlight {
		p.nudgeLocked()
	}
	session := p.copyLocked()
	p.mu.Unlock()

	p.logger.Info("polling stopped", "run_id", session.RunID)
	p.notify(session)
}

// Clear stops polling and discards the session
func (p *Poller) Clear() {
	p.mu.Lock()
	if p.state == StateIdle && p.session.RunID == "" {
		p.mu.Unlock()
		return
	}
	runID := p.session.RunID
	p.resetLocked()
	p.setStateLocked(StateIdle)
	session := p.copyLocked()
	p.mu.Unlock()

	p.logger.Info("session cleared", "run_id", runID)
	p.notify(session)
}

// Refresh fetches immediately and waits for that fetch to settle. A fetch
// already in flight is joined instead of starting another. Refresh works on
// a stopped session too; it fetches once without resuming polling.
// The fetch's error is returned and also recorded in the session; a fetch
// discarded by Clear or a new Start reports nil.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.session.RunID == "" {
		p.mu.Unlock()
		return fmt.Errorf("refresh: %w: no run id", models.ErrNotInitialized)
	}

	settled := p.settled
	if !p.inFlight {
		p.refresh = true
		if p.loopActive {
			p.nudgeLocked()
		} else {
			p.spawnLocked()
		}
	}
	p.mu.Unlock()

	select {
	case <-settled.done:
		return settled.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns a copy of the current session
func (p *Poller) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

// State returns the lifecycle state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops polling for good and waits for the loop to exit
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.gen++
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	p.inFlight = false
	p.loopActive = false
	p.setStateLocked(StateStopped)
	p.signalLocked(ErrClosed)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// resetLocked starts a new generation: the in-flight fetch is cancelled,
// any running loop exits at its next check and the session is emptied.
func (p *Poller) resetLocked() {
	p.gen++
	if p.cancelFetch != nil {
		p.cancelFetch()
		p.cancelFetch = nil
	}
	if p.loopActive {
		p.nudgeLocked()
	}
	p.inFlight = false
	p.refresh = false
	p.loopActive = false
	p.wake = nil

	p.signalLocked(nil)
	p.session = Session{}
}

func (p *Poller) setStateLocked(s State) {
	p.state = s
	p.session.State = s
	p.session.IsPolling = s == StatePolling
}

func (p *Poller) ensureLoopLocked() {
	if p.loopActive {
		if !p.inFlight {
			p.nudgeLocked()
		}
		return
	}
	p.spawnLocked()
}

func (p *Poller) spawnLocked() {
	p.loopActive = true
	p.wake = make(chan struct{}, 1)
	p.wg.Add(1)
	go p.loop(p.gen, p.wake)
}

func (p *Poller) nudgeLocked() {
	if p.wake == nil {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) copyLocked() Session {
	s := p.session
	s.State = p.state
	s.IsPolling = p.state == StatePolling
	return s
}

func (p *Poller) notify(s Session) {
	if p.onUpdate != nil {
		p.onUpdate(s)
	}
}

// loop runs the ticks of one generation. The first tick fires immediately.
// A pending refresh fetches once even when polling is stopped.
func (p *Poller) loop(gen uint64, wake chan struct{}) {
	defer p.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var delay time.Duration
	for {
		if delay > 0 {
			timer.Reset(delay)
			select {
			case <-timer.C:
			case <-wake:
				timer.Stop()
			case <-p.ctx.Done():
				return
			}
		}

		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		if p.state != StatePolling && !p.refresh {
			p.loopActive = false
			p.mu.Unlock()
			return
		}
		// drop a nudge that raced with the timer
		select {
		case <-wake:
		default:
		}
		runID := p.session.RunID
		ctx, cancel := context.WithTimeout(p.ctx, p.fetchTimeout)
		p.refresh = false
		p.inFlight = true
		p.cancelFetch = cancel
		p.mu.Unlock()

		raw, snap, err := p.fetch(ctx, runID)
		cancel()

		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			p.logger.Debug("discarding result of abandoned fetch", "run_id", runID)
			return
		}
		p.inFlight = false
		p.cancelFetch = nil
		p.applyResultLocked(raw, snap, err)
		delay = p.nextIntervalLocked()
		if delay == 0 {
			p.loopActive = false
		}
		p.signalLocked(err)
		session := p.copyLocked()
		p.mu.Unlock()

		p.notify(session)
		if delay == 0 {
			return
		}
	}
}

func (p *Poller) fetch(ctx context.Context, runID string) ([]byte, *models.ExecutionSnapshot, error) {
	ctx, span := p.tracer.Start(ctx, "poller.tick", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	raw, err := p.fetcher.FetchStatus(ctx, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	snap, err := snapshot.ParseFor(runID, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("status", string(snap.Status)))
	return raw, snap, nil
}

func (p *Poller) applyResultLocked(raw []byte, snap *models.ExecutionSnapshot, err error) {
	p.session.UpdatedAt = time.Now()

	if err != nil {
		p.session.LastError = err
		p.session.ConsecutiveFailures++
		p.logger.Warn("poll failed",
			"run_id", p.session.RunID,
			"failures", p.session.ConsecutiveFailures,
			"error", err)

		if p.session.ConsecutiveFailures >= p.maxFailures && p.state == StatePolling {
			p.session.ConnectionLost = true
			p.setStateLocked(StateStopped)
			p.logger.Error("connection lost, polling stopped",
				"run_id", p.session.RunID,
				"failures", p.session.ConsecutiveFailures)
		}
		return
	}

	p.session.LastSnapshot = snap
	p.session.LastRaw = raw
	p.session.LastError = nil
	p.session.ConsecutiveFailures = 0
	p.session.ConnectionLost = false
	p.applyTerminalRule(snap)
}

// applyTerminalRule stops polling once the run is terminal, unless forced,
// or once the caller's stop condition holds.
func (p *Poller) applyTerminalRule(snap *models.ExecutionSnapshot) {
	if p.state != StatePolling || snap == nil {
		return
	}
	if snap.Status.IsTerminal() && !p.force {
		p.setStateLocked(StateStopped)
		p.logger.Info("run finished, polling stopped", "run_id", p.session.RunID, "status", snap.Status)
		return
	}
	if p.stopWhen != nil && p.stopWhen(snap) {
		p.setStateLocked(StateStopped)
		p.logger.Info("stop condition met, polling stopped", "run_id", p.session.RunID, "status", snap.Status)
	}
}

// nextIntervalLocked returns the delay before the next tick, 0 to stop
func (p *Poller) nextIntervalLocked() time.Duration {
	if p.state != StatePolling {
		return 0
	}
	if snap := p.session.LastSnapshot; snap != nil && snap.Status.IsTerminal() && !p.force {
		return 0
	}
	if p.session.ConsecutiveFailures > 0 {
		return backoff(p.session.ConsecutiveFailures, p.interval, p.maxBackoff)
	}
	return p.interval
}

// backoff doubles base per consecutive failure, capped at max
func backoff(failures int, base, max time.Duration) time.Duration {
	shift := failures - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 30 {
		return max
	}
	d := base << shift
	if d > max || d <= 0 {
		d = max
	}
	return d
}

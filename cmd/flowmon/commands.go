package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/xka/flowmon/common/clients"
	"github.com/xka/flowmon/common/condition"
	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/graph"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/logview"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/poller"
	"github.com/xka/flowmon/common/snapshot"
)

type app struct {
	cfg    *config.Config
	log    *logger.Logger
	client *clients.WorkerManagerClient
	loader *graph.Loader
	stdout io.Writer
	stderr io.Writer
}

func newApp(cfg *config.Config, log *logger.Logger, stdout, stderr io.Writer) *app {
	return &app{
		cfg:    cfg,
		log:    log,
		client: clients.NewWorkerManagerClient(clients.NewClientConfig(cfg), log),
		loader: graph.NewLoader(log),
		stdout: stdout,
		stderr: stderr,
	}
}

// watchFlags are shared by run and watch
type watchFlags struct {
	filter   string
	until    string
	interval time.Duration
	force    bool
}

func (a *app) bindWatchFlags(fs *flag.FlagSet) *watchFlags {
	wf := &watchFlags{}
	fs.StringVar(&wf.filter, "filter", logview.FilterAll, "log filter: all, workflow or a node id")
	fs.StringVar(&wf.until, "until", "", "CEL expression; stop watching once it holds")
	fs.DurationVar(&wf.interval, "interval", a.cfg.Polling.Interval, "poll interval")
	fs.BoolVar(&wf.force, "force", a.cfg.Polling.Force, "keep polling after the run finishes")
	return wf
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) run(ctx context.Context, args []string) int {
	fs := a.newFlagSet("run")
	graphLoc := fs.String("graph", "", "graph location (path or URL, JSON or YAML)")
	patchLoc := fs.String("patch", "", "optional JSON patch applied before submission")
	wf := a.bindWatchFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *graphLoc == "" {
		fmt.Fprintln(a.stderr, "-graph is required")
		return exitUsage
	}

	g, err := a.loader.Load(ctx, *graphLoc)
	if err != nil {
		fmt.Fprintf(a.stderr, "load graph: %v\n", err)
		return exitUsage
	}
	if *patchLoc != "" {
		patch, err := a.loader.LoadPatch(ctx, *patchLoc)
		if err != nil {
			fmt.Fprintf(a.stderr, "load patch: %v\n", err)
			return exitUsage
		}
		if g, err = graph.ApplyPatch(g, patch); err != nil {
			fmt.Fprintf(a.stderr, "apply patch: %v\n", err)
			return exitUsage
		}
	}
	if err := g.ValidateForSubmit(); err != nil {
		fmt.Fprintf(a.stderr, "invalid graph: %v\n", err)
		return exitUsage
	}

	runID, err := a.client.Submit(ctx, g)
	if err != nil {
		fmt.Fprintf(a.stderr, "submit: %v\n", err)
		return exitUsage
	}
	fmt.Fprintf(a.stdout, "run %s submitted (%d nodes)\n", runID, len(g.Nodes))

	return a.follow(ctx, runID, wf)
}

func (a *app) watch(ctx context.Context, args []string) int {
	fs := a.newFlagSet("watch")
	runID := fs.String("run", "", "run id")
	wf := a.bindWatchFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *runID == "" {
		fmt.Fprintln(a.stderr, "-run is required")
		return exitUsage
	}
	return a.follow(ctx, *runID, wf)
}

func (a *app) status(ctx context.Context, args []string) int {
	fs := a.newFlagSet("status")
	runID := fs.String("run", "", "run id")
	filter := fs.String("filter", logview.FilterAll, "log filter: all, workflow or a node id")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *runID == "" {
		fmt.Fprintln(a.stderr, "-run is required")
		return exitUsage
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.Polling.FetchTimeout)
	defer cancel()

	raw, err := a.client.FetchStatus(fetchCtx, *runID)
	if err != nil {
		fmt.Fprintf(a.stderr, "fetch status: %v\n", err)
		return exitUsage
	}
	snap, err := snapshot.ParseFor(*runID, raw)
	if err != nil {
		fmt.Fprintf(a.stderr, "parse status: %v\n", err)
		return exitUsage
	}

	printSummary(a.stdout, snap)
	printLogs(a.stdout, snap, *filter)
	return exitCodeFor(snap)
}

// follow polls runID until the poller stops on its own or ctx ends
func (a *app) follow(ctx context.Context, runID string, wf *watchFlags) int {
	var stopWhen func(*models.ExecutionSnapshot) bool
	if wf.until != "" {
		cond, err := condition.NewEvaluator().StopWhen(wf.until, a.log)
		if err != nil {
			fmt.Fprintf(a.stderr, "-until: %v\n", err)
			return exitUsage
		}
		stopWhen = cond
	}

	maxBackoff := a.cfg.Polling.MaxBackoff
	if maxBackoff < wf.interval {
		maxBackoff = wf.interval
	}

	updates := make(chan poller.Session, 16)
	opts := []poller.Option{
		poller.WithInterval(wf.interval),
		poller.WithMaxBackoff(maxBackoff),
		poller.WithFetchTimeout(a.cfg.Polling.FetchTimeout),
		poller.WithMaxConsecutiveFailures(a.cfg.Polling.MaxConsecutiveFailures),
		poller.WithForce(wf.force),
		poller.WithLogger(a.log.WithRunID(runID)),
		poller.WithOnUpdate(func(s poller.Session) {
			select {
			case updates <- s:
			default:
				// the printer only needs the latest state
			}
		}),
	}
	if stopWhen != nil {
		opts = append(opts, poller.WithStopCondition(stopWhen))
	}

	p := poller.New(a.client, opts...)
	defer p.Close()

	if err := p.Start(runID); err != nil {
		fmt.Fprintf(a.stderr, "watch: %v\n", err)
		return exitUsage
	}

	progress := newProgressPrinter(a.stdout)
	for {
		if ctx.Err() != nil {
			p.Stop()
			fmt.Fprintln(a.stderr, "interrupted")
			return finish(a.stdout, p.Session(), wf.filter, exitUsage)
		}

		select {
		case <-ctx.Done():
		case <-updates:
			sess := p.Session()
			progress.print(sess)
			if sess.State == poller.StateStopped {
				return finish(a.stdout, sess, wf.filter, -1)
			}
		}
	}
}

// finish prints the final view. code < 0 derives the exit code from the
// session.
func finish(w io.Writer, sess poller.Session, filter string, code int) int {
	if sess.LastSnapshot != nil {
		printSummary(w, sess.LastSnapshot)
		printLogs(w, sess.LastSnapshot, filter)
	}
	if code >= 0 {
		return code
	}

	switch {
	case sess.ConnectionLost:
		fmt.Fprintf(w, "connection lost: %v\n", sess.LastError)
		return exitUsage
	case sess.LastSnapshot == nil:
		return exitUsage
	default:
		return exitCodeFor(sess.LastSnapshot)
	}
}

func exitCodeFor(snap *models.ExecutionSnapshot) int {
	if snap.Status == models.StatusError {
		return exitFailed
	}
	return exitOK
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/xka/flowmon/common/logview"
	"github.com/xka/flowmon/common/models"
	"github.com/xka/flowmon/common/poller"
	"github.com/xka/flowmon/common/progress"
)

// progressPrinter writes one line per visible change of the session
type progressPrinter struct {
	w    io.Writer
	last string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) print(sess poller.Session) {
	line := progressLine(sess)
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.w, line)
}

func progressLine(sess poller.Session) string {
	snap := sess.LastSnapshot
	if snap == nil {
		if sess.LastError != nil {
			return fmt.Sprintf("[%s] waiting for first result: %v", sess.View(), sess.LastError)
		}
		return fmt.Sprintf("[%s] waiting for first result", sess.View())
	}

	counts := progress.Summary(snap)
	done := counts.Succeeded + counts.Failed + counts.Skipped
	line := fmt.Sprintf("[%s] %-7s %3d%%  %d/%d nodes",
		sess.View(), snap.Status, progress.Percent(snap), done, counts.Total)
	if sess.LastError != nil {
		line += fmt.Sprintf("  (retrying: %v)", sess.LastError)
	}
	return line
}

func printSummary(w io.Writer, snap *models.ExecutionSnapshot) {
	counts := progress.Summary(snap)

	fmt.Fprintf(w, "\nrun:       %s\n", snap.RunID)
	fmt.Fprintf(w, "status:    %s (%d%%)\n", snap.Status, progress.Percent(snap))
	fmt.Fprintf(w, "duration:  %s\n", snap.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "nodes:     %d total, %d succeeded, %d failed, %d skipped, %d pending\n",
		counts.Total, counts.Succeeded, counts.Failed, counts.Skipped, counts.Pending)
	if snap.ErrorMessage != "" {
		fmt.Fprintf(w, "error:     %s\n", snap.ErrorMessage)
	}

	for _, r := range snap.NodeResults {
		line := fmt.Sprintf("  %-8s %-24s %6dms", r.Status, r.NodeID, r.DurationMs)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Fprintln(w, line)
	}
}

func printLogs(w io.Writer, snap *models.ExecutionSnapshot, filter string) {
	entries := logview.Collect(snap, filter)
	if len(entries) == 0 {
		return
	}

	fmt.Fprintf(w, "\nlogs (%s):\n", filterLabel(snap, filter))
	for _, e := range entries {
		source := "workflow"
		if e.Source.Kind == models.LogSourceNode {
			source = e.Source.NodeID
		}
		fmt.Fprintf(w, "  [%s] %s\n", source, e.Text)
	}
}

func filterLabel(snap *models.ExecutionSnapshot, filter string) string {
	if filter == "" {
		filter = logview.FilterAll
	}
	for _, opt := range logview.Options(snap) {
		if opt.Value == filter {
			return opt.Label
		}
	}
	return filter
}

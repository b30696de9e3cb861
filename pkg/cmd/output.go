package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pseudomuto/changekeeper/pkg/changelog"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/pseudomuto/changekeeper/pkg/visitor"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// when renders t relative to now ("3 minutes ago"). The zero time renders as
// "never".
func when(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return humanize.RelTime(t, time.Now(), "ago", "from now")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}

	return fmt.Sprintf("%d %ss", n, word)
}

func execTypeColor(et changelog.ExecType) string {
	switch et {
	case changelog.ExecFailed:
		return red(string(et))
	case changelog.ExecSkipped, changelog.ExecMarkRan:
		return yellow(string(et))
	default:
		return green(string(et))
	}
}

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

// printUpdate summarises an update run.
func printUpdate(w io.Writer, res *executor.UpdateResult) {
	if res.UpToDate {
		fmt.Fprintln(w, green("Database is up to date"))
		return
	}

	for _, r := range res.Results {
		fmt.Fprintf(w, "%-9s %s\n", execTypeColor(r.ExecType), r.ChangeSet)
	}

	for _, cs := range res.Failed {
		fmt.Fprintf(w, "%-9s %s\n", red("FAILED"), cs)
	}

	for _, cs := range res.SkippedDueToFailure {
		fmt.Fprintf(w, "%-9s %s\n", faint("NOT RUN"), cs)
	}

	fmt.Fprintf(w, "\n%s applied in %s\n",
		plural(res.Count(), "changeset"),
		res.Duration.Round(time.Millisecond),
	)
}

// printChangeSets lists changesets under a heading, or prints empty when
// there are none.
func printChangeSets(w io.Writer, heading, empty string, changeSets []*changelog.ChangeSet) {
	if len(changeSets) == 0 {
		fmt.Fprintln(w, empty)
		return
	}

	fmt.Fprintln(w, heading)
	for _, cs := range changeSets {
		fmt.Fprintf(w, "  %s\n", cs)
	}
}

// printStatus renders a status report. The short form lists pending
// changesets only; the verbose one adds a table with every changeset and the
// reasons it will or will not run.
func printStatus(w io.Writer, url string, report *executor.StatusReport, verbose bool) {
	pending := report.Pending()
	if len(pending) == 0 {
		fmt.Fprintf(w, "%s is up to date\n", url)
	} else {
		fmt.Fprintf(w, "%s not applied to %s\n", yellow(plural(len(pending), "changeset")), url)
		for _, s := range pending {
			fmt.Fprintf(w, "  %s\n", s.ChangeSet)
		}
	}

	if verbose {
		t := newTable(w, "Changeset", "Status", "Will Run", "Executed", "Reasons")
		for _, s := range report.ChangeSets {
			t.AppendRow(table.Row{
				s.ChangeSet.String(),
				s.RunStatus.String(),
				willRun(s),
				when(s.DateExecuted),
				reasons(s),
			})
		}
		t.Render()
	}

	if len(report.Unexpected) > 0 {
		fmt.Fprintf(w, "\n%s in history but not in the changelog\n", red(plural(len(report.Unexpected), "changeset")))
		for _, r := range report.Unexpected {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
}

func willRun(s *visitor.ChangeSetStatus) string {
	if s.WillRun {
		return green("yes")
	}

	return faint("no")
}

func reasons(s *visitor.ChangeSetStatus) string {
	out := make([]string, 0, len(s.Reasons))
	for _, r := range s.Reasons {
		out = append(out, r.Message)
	}

	return strings.Join(out, "; ")
}

// printHistory renders history rows in execution order.
func printHistory(w io.Writer, rows []*changelog.RanChangeSet) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No changesets have been applied")
		return
	}

	t := newTable(w, "#", "Changeset", "Type", "Executed", "Tag", "Deployment")
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.OrderExecuted,
			r.String(),
			execTypeColor(r.ExecType),
			when(r.DateExecuted),
			r.Tag,
			r.DeploymentID,
		})
	}
	t.Render()
}

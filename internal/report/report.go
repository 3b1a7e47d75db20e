// Package report renders case state for the CLI: a status table via
// go-pretty, a per-status summary line, and the exit-code bitfield.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"testforge/internal/model"
)

// StatusTable renders one row per case: id, display name, status, and
// (when terminal) the reason recorded on it.
func StatusTable(w io.Writer, cases []*model.TestCase) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Name", "Status", "Reason"})

	sorted := append([]*model.TestCase(nil), cases...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DisplayName < sorted[j].DisplayName })

	for _, c := range sorted {
		t.AppendRow(table.Row{c.ID, c.DisplayName, c.Status.String(), c.Reason})
	}
	t.Render()
}

// Summary counts cases by status for the end-of-run tally printed above
// the exit-code bitfield.
func Summary(cases []*model.TestCase) map[model.Status]int {
	out := make(map[model.Status]int)
	for _, c := range cases {
		if c.Masked {
			continue
		}
		out[c.Status]++
	}
	return out
}

// SummaryLine formats a Summary as a single human-readable line, e.g.
// "12 SUCCESS, 1 DIFF, 1 FAIL".
func SummaryLine(counts map[model.Status]int) string {
	order := []model.Status{
		model.StatusSuccess, model.StatusDiff, model.StatusFail,
		model.StatusTimeout, model.StatusSkip, model.StatusNotRun, model.StatusCancelled,
	}
	out := ""
	for _, s := range order {
		n := counts[s]
		if n == 0 {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%d %s", n, s.String())
	}
	if out == "" {
		return "no active cases"
	}
	return out
}

// ExitCode folds a run's final case statuses into the bitfield exit code:
// bit 1 DIFF, bit 2 FAIL, bit 3 TIMEOUT, bit 4 SKIP/NOT_RUN, bit 5 READY
// (never dispatched), bit 6 CANCELLED. Zero iff every active case
// reached SUCCESS.
func ExitCode(cases []*model.TestCase) int {
	code := 0
	for _, c := range cases {
		if c.Masked {
			continue
		}
		switch c.Status {
		case model.StatusDiff:
			code |= 1 << 0
		case model.StatusFail:
			code |= 1 << 1
		case model.StatusTimeout:
			code |= 1 << 2
		case model.StatusSkip, model.StatusNotRun:
			code |= 1 << 3
		case model.StatusReady, model.StatusCreated, model.StatusPending:
			code |= 1 << 4
		case model.StatusCancelled:
			code |= 1 << 5
		}
	}
	return code
}

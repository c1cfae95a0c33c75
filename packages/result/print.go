package result

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	separator1 = strings.Repeat("=", 70)
	separator2 = strings.Repeat("-", 70)
)

type palette struct {
	ok   *color.Color
	bad  *color.Color
	note *color.Color
	bold *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		note: color.New(color.FgYellow),
		bold: color.New(color.Bold),
	}
	if noColor {
		p.ok.DisableColor()
		p.bad.DisableColor()
		p.note.DisableColor()
		p.bold.DisableColor()
	}
	return p
}

func (p palette) forLabel(label string) *color.Color {
	switch label {
	case "ok", ".":
		return p.ok
	case LabelError, LabelFail:
		return p.bad
	default:
		return p.note
	}
}

func (a *Aggregator) write(s string) {
	_, _ = io.WriteString(a.out, s)
}

func (a *Aggregator) writeln(s string) {
	a.write(s)
	a.write("\n")
}

// printLabel shows a classified outcome: "LABEL: detail" per line at high
// verbosity, or the first character of the label otherwise.
func (a *Aggregator) printLabel(label string, info *Info) {
	switch {
	case a.verbosity > 1:
		line := a.palette.forLabel(label).Sprint(label)
		if info != nil {
			if detail := info.Detail(); detail != "" {
				line += ": " + detail
			}
		}
		a.writeln(line)
	case a.verbosity == 1 && label != "":
		mark := label[:1]
		if label == "ok" {
			mark = "."
		}
		a.write(a.palette.forLabel(label).Sprint(mark))
	}
}

// PrintErrors writes one block per stored error and failure, one block per
// distinct blocked context, and one block per entry of every failing
// registered category. Report hooks run last.
func (a *Aggregator) PrintErrors() {
	if a.verbosity > 0 {
		a.writeln("")
	}
	a.printEntries(LabelError, a.errors)
	a.printEntries(LabelFail, a.failures)

	for _, label := range a.blockedOrder {
		a.printBlocked("BLOCKED "+label, a.blocked[label])
	}

	for _, reg := range a.registry.All() {
		if reg.IsFailing {
			a.printEntries(reg.Label, reg.Entries())
		}
	}

	for _, h := range a.hooks {
		if err := h.Report(a.out, a); err != nil {
			a.logger.Warn("report hook failed", "hook", fmt.Sprintf("%T", h), "err", err)
		}
	}
}

func (a *Aggregator) printEntries(label string, entries []Entry) {
	for _, e := range entries {
		a.printBlock(label, a.Description(e.Test), e.Info)
	}
}

// printBlocked groups entries by context. The last info reported for a
// context is the one shown.
func (a *Aggregator) printBlocked(label string, entries []BlockedEntry) {
	var order []string
	latest := make(map[string]Info)
	for _, e := range entries {
		if _, seen := latest[e.Context]; !seen {
			order = append(order, e.Context)
		}
		latest[e.Context] = e.Info
	}
	for _, ctx := range order {
		a.printBlock(label, ctx, latest[ctx])
	}
}

func (a *Aggregator) printBlock(label, description string, info Info) {
	a.writeln(separator1)
	a.writeln(fmt.Sprintf("%s: %s", a.palette.forLabel(label).Sprint(label), description))
	a.writeln(separator2)
	a.writeln(info.String())
}

// PrintSummary writes the test count, elapsed time and the verdict line.
func (a *Aggregator) PrintSummary(start, stop time.Time) {
	taken := stop.Sub(start).Seconds()
	plural := ""
	if a.testsRun != 1 {
		plural = "s"
	}

	a.writeln(separator2)
	a.writeln(fmt.Sprintf("Ran %d test%s in %.3fs", a.testsRun, plural, taken))
	a.writeln("")

	if a.slowest > 0 {
		a.printTimings()
	}

	if a.WasSuccessful() {
		a.write(a.palette.ok.Sprint("OK"))
	} else {
		a.write(a.palette.bad.Sprint("FAILED"))
	}

	summary := a.Summary()
	if len(summary) == 0 {
		a.writeln("")
		return
	}
	labels := make([]string, 0, len(summary))
	for label := range summary {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", label, summary[label]))
	}
	a.writeln(" (" + strings.Join(parts, ", ") + ")")
}

func (a *Aggregator) printTimings() {
	slow := a.timings.slowest(a.slowest)
	if len(slow) == 0 {
		return
	}
	a.writeln(a.palette.bold.Sprintf("Slowest %d:", len(slow)))
	for _, s := range slow {
		a.writeln(fmt.Sprintf("  %8.3fs  %s", s.elapsed.Seconds(), s.id))
	}
	p50, p95, p99 := a.timings.percentiles()
	a.writeln(fmt.Sprintf("p50=%.3fs p95=%.3fs p99=%.3fs", p50.Seconds(), p95.Seconds(), p99.Seconds()))
	a.writeln("")
}

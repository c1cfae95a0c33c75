package output

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/tally/packages/result"
	"gopkg.in/yaml.v3"
)

// TAPFormatter formats a run in TAP (Test Anything Protocol) version 13.
type TAPFormatter struct {
	settings
}

// tapDiagnostic is the YAML block below a "not ok" line.
type tapDiagnostic struct {
	Message  string `yaml:"message"`
	Severity string `yaml:"severity"`
	Label    string `yaml:"label,omitempty"`
	Context  string `yaml:"context,omitempty"`
	Detail   string `yaml:"detail,omitempty"`
	Output   string `yaml:"output,omitempty"`
}

func NewTAPFormatter(opts ...Option) *TAPFormatter {
	return &TAPFormatter{settings: newSettings(opts)}
}

func (f *TAPFormatter) Name() string      { return "tap" }
func (f *TAPFormatter) Extension() string { return ".tap" }

// Report writes the TAP stream.
func (f *TAPFormatter) Report(w io.Writer, a *result.Aggregator) error {
	bw := bufio.NewWriter(f.target(w))
	cases := testCases(a.Records())

	fmt.Fprintf(bw, "TAP version 13\n")
	fmt.Fprintf(bw, "1..%d\n", len(cases))

	for i, c := range cases {
		n := i + 1
		switch {
		case c.Kind == result.KindSuccess:
			fmt.Fprintf(bw, "ok %d - %s\n", n, c.ID)
		case c.Kind == result.KindSkip:
			fmt.Fprintf(bw, "ok %d - %s # SKIP %s\n", n, c.ID, directive(c.Reason, c.Label))
		case !c.Failing:
			fmt.Fprintf(bw, "ok %d - %s # SKIP %s\n", n, c.ID, c.Label)
		default:
			fmt.Fprintf(bw, "not ok %d - %s\n", n, c.ID)
			if err := writeDiagnostic(bw, c); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func directive(reason, fallback string) string {
	reason = firstLine(strings.TrimSpace(reason))
	if reason == "" {
		return fallback
	}
	return reason
}

func writeDiagnostic(w io.Writer, c testCase) error {
	diag := tapDiagnostic{
		Message:  c.Message,
		Severity: c.Status,
		Label:    c.Label,
		Context:  c.Context,
		Output:   c.Output,
	}
	if c.Detail != c.Message {
		diag.Detail = c.Detail
	}
	data, err := yaml.Marshal(diag)
	if err != nil {
		return fmt.Errorf("tap diagnostic for %s: %w", c.ID, err)
	}

	fmt.Fprintln(w, "  ---")
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, "  ...")
	return nil
}

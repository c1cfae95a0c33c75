package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/acarl005/stripansi"
)

// Formatter renders a whole run when invoked as a report hook.
type Formatter interface {
	result.ReportHook
	// Name is the format name accepted by New.
	Name() string
	// Extension is the file extension used under an output directory.
	Extension() string
}

type settings struct {
	writer io.Writer
	runID  string
	now    func() time.Time
}

type Option func(*settings)

// WithWriter sends the report to w instead of the writer the hook is called
// with.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		s.writer = w
	}
}

// WithRunID labels the report with a run ID.
func WithRunID(id string) Option {
	return func(s *settings) {
		s.runID = id
	}
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) target(w io.Writer) io.Writer {
	if s.writer != nil {
		return s.writer
	}
	return w
}

var constructors = map[string]func(...Option) Formatter{
	"json":  func(opts ...Option) Formatter { return NewJSONFormatter(opts...) },
	"junit": func(opts ...Option) Formatter { return NewJUnitFormatter(opts...) },
	"tap":   func(opts ...Option) Formatter { return NewTAPFormatter(opts...) },
	"html":  func(opts ...Option) Formatter { return NewHTMLFormatter(opts...) },
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the formatter for format.
func New(format string, opts ...Option) (Formatter, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return ctor(opts...), nil
}

// Status names used across formats.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusBlocked = "blocked"
)

// testCase is a record flattened for rendering.
type testCase struct {
	ID          string
	Suite       string
	Name        string
	Description string
	Status      string
	Kind        result.Kind
	Label       string
	Category    string
	Failing     bool
	Duration    time.Duration
	Reason      string
	Context     string
	Message     string
	Detail      string
	Output      string
}

type outputCarrier interface {
	CapturedOutput() string
}

// splitID splits "suite::test" IDs. IDs without a suite belong to
// defaultSuite.
func splitID(id string) (suite, name string) {
	if i := strings.LastIndex(id, "::"); i >= 0 {
		return id[:i], id[i+2:]
	}
	return defaultSuite, id
}

const defaultSuite = "tally"

func status(r result.Record) string {
	switch r.Kind {
	case result.KindSuccess:
		return StatusPassed
	case result.KindSkip:
		return StatusSkipped
	case result.KindBlocked:
		return StatusBlocked
	case result.KindFailure:
		return StatusFailed
	case result.KindError:
		return StatusError
	default:
		return strings.ToLower(r.Label)
	}
}

func newTestCase(r result.Record) testCase {
	suite, name := splitID(r.Test.ID())
	tc := testCase{
		ID:          r.Test.ID(),
		Suite:       suite,
		Name:        name,
		Description: r.Test.ShortDescription(),
		Status:      status(r),
		Kind:        r.Kind,
		Label:       r.Label,
		Failing:     r.Failing,
		Duration:    r.Duration,
		Reason:      r.Reason,
		Context:     r.Context,
	}
	if r.Info.Category != nil {
		tc.Category = r.Info.Category.Name()
	}
	if r.Kind != result.KindSuccess && r.Kind != result.KindSkip {
		tc.Detail = stripansi.Strip(r.Info.String())
		tc.Message = firstLine(stripansi.Strip(r.Info.Detail()))
	}
	if oc, ok := r.Test.(outputCarrier); ok && r.Failing {
		tc.Output = stripansi.Strip(oc.CapturedOutput())
	}
	return tc
}

func testCases(records []result.Record) []testCase {
	out := make([]testCase, len(records))
	for i, r := range records {
		out[i] = newTestCase(r)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// totals counts cases by how they are rendered.
type totals struct {
	Total    int
	Passed   int
	Failed   int
	Errors   int
	Skipped  int
	Blocked  int
	Duration time.Duration
}

func count(cases []testCase) totals {
	var t totals
	for _, c := range cases {
		t.Total++
		t.Duration += c.Duration
		switch {
		case c.Kind == result.KindSuccess:
			t.Passed++
		case c.Kind == result.KindBlocked:
			t.Blocked++
		case c.Kind == result.KindError && c.Failing:
			t.Errors++
		case c.Failing:
			t.Failed++
		default:
			t.Skipped++
		}
	}
	return t
}

// suiteGroup is the cases of one suite in report order.
type suiteGroup struct {
	Name  string
	Cases []testCase
}

func groupBySuite(cases []testCase) []suiteGroup {
	var groups []suiteGroup
	index := make(map[string]int)
	for _, c := range cases {
		i, ok := index[c.Suite]
		if !ok {
			i = len(groups)
			index[c.Suite] = i
			groups = append(groups, suiteGroup{Name: c.Suite})
		}
		groups[i].Cases = append(groups[i].Cases, c)
	}
	return groups
}

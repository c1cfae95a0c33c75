package result

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/errclass"
)

// Labels of the generic buckets.
const (
	LabelError = "ERROR"
	LabelFail  = "FAIL"
)

// State is the lifecycle state of an Aggregator.
type State int

const (
	NotStarted State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Entry is one stored outcome.
type Entry struct {
	Test Test
	Info Info
}

// BlockedEntry is a stored blocked outcome.
type BlockedEntry struct {
	Test    Test
	Info    Info
	Context string
}

// Record is the classification of one reported outcome, kept in report order
// for structured formatters.
type Record struct {
	Test     Test
	Kind     Kind
	Label    string
	Info     Info
	Reason   string
	Context  string
	Failing  bool
	Duration time.Duration
}

// ReportHook is invoked at the end of PrintErrors.
type ReportHook interface {
	Report(w io.Writer, a *Aggregator) error
}

// ReportHookFunc adapts a function to ReportHook.
type ReportHookFunc func(w io.Writer, a *Aggregator) error

func (f ReportHookFunc) Report(w io.Writer, a *Aggregator) error {
	return f(w, a)
}

// Aggregator collects and classifies test outcomes.
type Aggregator struct {
	out          io.Writer
	descriptions bool
	verbosity    int
	noColor      bool
	slowest      int
	logger       *slog.Logger
	now          func() time.Time

	registry     *errclass.Registry[Entry]
	errors       []Entry
	failures     []Entry
	blocked      map[string][]BlockedEntry
	blockedOrder []string
	hooks        []ReportHook

	state    State
	testsRun int
	records  []Record
	started  map[string]startMark
	timings  *timings
	palette  palette
}

type startMark struct {
	at    time.Time
	index int
}

type Option func(*Aggregator)

// WithWriter sets where labels and reports are printed. Defaults to os.Stderr
// so the report never lands in captured output.
func WithWriter(w io.Writer) Option {
	return func(a *Aggregator) {
		a.out = w
	}
}

// WithVerbosity sets label printing: 0 prints nothing, 1 prints one character
// per test, 2 and above print a line per test.
func WithVerbosity(v int) Option {
	return func(a *Aggregator) {
		a.verbosity = v
	}
}

// WithDescriptions prefers a test's short description over its ID.
func WithDescriptions(d bool) Option {
	return func(a *Aggregator) {
		a.descriptions = d
	}
}

func WithNoColor(nc bool) Option {
	return func(a *Aggregator) {
		a.noColor = nc
	}
}

// WithSlowest makes PrintSummary list the n slowest tests and duration
// percentiles.
func WithSlowest(n int) Option {
	return func(a *Aggregator) {
		a.slowest = n
	}
}

// WithRegistry shares a registry built elsewhere.
func WithRegistry(r *errclass.Registry[Entry]) Option {
	return func(a *Aggregator) {
		a.registry = r
	}
}

// WithHooks appends report hooks.
func WithHooks(hooks ...ReportHook) Option {
	return func(a *Aggregator) {
		a.hooks = append(a.hooks, hooks...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// WithClock replaces time.Now for duration measurement.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		out:          os.Stderr,
		descriptions: true,
		verbosity:    1,
		logger:       slog.Default(),
		now:          time.Now,
		blocked:      map[string][]BlockedEntry{LabelError: nil, LabelFail: nil},
		blockedOrder: []string{LabelError, LabelFail},
		started:      make(map[string]startMark),
		timings:      newTimings(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = errclass.NewRegistry[Entry]()
	}
	a.palette = newPalette(a.noColor)
	return a
}

// Register adds an error class. See errclass.Registry.Register.
func (a *Aggregator) Register(cat *errclass.Category, label string, isFailing bool) {
	a.registry.Register(cat, label, isFailing)
}

// AddHook appends a report hook.
func (a *Aggregator) AddHook(h ReportHook) {
	a.hooks = append(a.hooks, h)
}

func (a *Aggregator) Registry() *errclass.Registry[Entry] { return a.registry }
func (a *Aggregator) State() State                       { return a.state }
func (a *Aggregator) TestsRun() int                      { return a.testsRun }
func (a *Aggregator) Writer() io.Writer                  { return a.out }

// StartTest counts a test and prints its description at high verbosity.
func (a *Aggregator) StartTest(test Test) {
	if a.finished("start") {
		return
	}
	a.state = Running
	a.testsRun++
	a.started[test.ID()] = startMark{at: a.now(), index: len(a.records)}
	if a.verbosity > 1 {
		a.write(a.Description(test))
		a.write(" ... ")
	}
}

// StopTest records how long the test took since StartTest.
func (a *Aggregator) StopTest(test Test) {
	mark, ok := a.started[test.ID()]
	if !ok {
		return
	}
	delete(a.started, test.ID())
	elapsed := a.now().Sub(mark.at)
	a.timings.record(test.ID(), elapsed)
	for i := mark.index; i < len(a.records); i++ {
		if a.records[i].Test.ID() == test.ID() {
			a.records[i].Duration = elapsed
		}
	}
}

// Stop ends the run. Later outcome events are ignored.
func (a *Aggregator) Stop() {
	a.state = Finished
}

// Add dispatches an outcome to the matching Add method.
func (a *Aggregator) Add(test Test, o Outcome) {
	switch o.Kind {
	case KindSuccess:
		a.AddSuccess(test)
	case KindFailure:
		a.AddFailure(test, o.Info)
	case KindSkip:
		a.AddSkip(test, o.Reason)
	case KindBlocked:
		a.AddBlocked(test, o.Info, o.Context)
	default:
		// errors and custom categories share the registry lookup
		a.AddError(test, o.Info)
	}
}

// AddSuccess marks the test as passed.
func (a *Aggregator) AddSuccess(test Test) {
	if a.finished("success") {
		return
	}
	test.SetPassed(true)
	a.record(Record{Test: test, Kind: KindSuccess, Label: "ok"})
	a.printLabel("ok", nil)
}

// AddSkip stores the skip in the Skip category's storage when one is
// registered. Skips never mark a test as failed, whatever the registration
// says.
func (a *Aggregator) AddSkip(test Test, reason string) {
	if a.finished("skip") {
		return
	}
	info := Info{Category: errclass.Skip, Value: reason}
	reg, ok := a.registry.Lookup(errclass.Skip)
	if !ok {
		// Nothing is stored or printed; structured reports still see it.
		a.record(Record{Test: test, Kind: KindSkip, Label: "SKIP", Info: info, Reason: reason})
		return
	}
	reg.Append(Entry{Test: test, Info: info})
	a.record(Record{Test: test, Kind: KindSkip, Label: reg.Label, Info: info, Reason: reason})
	a.printLabel(reg.Label, &info)
}

// AddError classifies an error. A registered category takes it over;
// anything else lands in the generic error bucket.
func (a *Aggregator) AddError(test Test, info Info) {
	if a.finished("error") {
		return
	}
	if a.addRegistered(test, info, KindError) {
		return
	}
	a.errors = append(a.errors, Entry{Test: test, Info: info})
	test.SetPassed(false)
	a.record(Record{Test: test, Kind: KindError, Label: LabelError, Info: info, Failing: true})
	a.printLabel(LabelError, &info)
}

// AddFailure classifies an assertion failure. A registered category takes it
// over; anything else lands in the generic failure bucket.
func (a *Aggregator) AddFailure(test Test, info Info) {
	if a.finished("failure") {
		return
	}
	if a.addRegistered(test, info, KindFailure) {
		return
	}
	a.failures = append(a.failures, Entry{Test: test, Info: info})
	test.SetPassed(false)
	a.record(Record{Test: test, Kind: KindFailure, Label: LabelFail, Info: info, Failing: true})
	a.printLabel(LabelFail, &info)
}

func (a *Aggregator) addRegistered(test Test, info Info, kind Kind) bool {
	reg, ok := a.registry.Lookup(info.Category)
	if !ok {
		return false
	}
	if reg.IsFailing {
		test.SetPassed(false)
	}
	reg.Append(Entry{Test: test, Info: info})
	a.record(Record{Test: test, Kind: KindCustom, Label: reg.Label, Info: info, Failing: reg.IsFailing})
	a.printLabel(reg.Label, &info)
	return true
}

// AddBlocked stores an outcome for a test that could not run. Blocked
// outcomes are reported grouped by context.
func (a *Aggregator) AddBlocked(test Test, info Info, context string) {
	if a.finished("blocked") {
		return
	}
	entry := BlockedEntry{Test: test, Info: info, Context: context}
	rec := Record{Test: test, Kind: KindBlocked, Info: info, Context: context}

	if reg, ok := a.registry.Lookup(info.Category); ok {
		if reg.IsFailing {
			test.SetPassed(false)
		}
		a.appendBlocked(reg.Label, entry)
		rec.Label, rec.Failing = reg.Label, reg.IsFailing
		a.record(rec)
		a.printLabel(reg.Label, &info)
		return
	}

	label := LabelError
	if info.Category.Is(failureCategory(test)) {
		label = LabelFail
	}
	a.appendBlocked(label, entry)
	test.SetPassed(false)
	rec.Label, rec.Failing = label, true
	a.record(rec)
	a.printLabel(label, &info)
}

func (a *Aggregator) appendBlocked(label string, e BlockedEntry) {
	if _, ok := a.blocked[label]; !ok {
		a.blockedOrder = append(a.blockedOrder, label)
	}
	a.blocked[label] = append(a.blocked[label], e)
}

func (a *Aggregator) record(r Record) {
	a.records = append(a.records, r)
}

func (a *Aggregator) finished(event string) bool {
	if a.state != Finished {
		return false
	}
	a.logger.Warn("outcome reported after run finished", "event", event)
	return true
}

// WasSuccessful reports whether nothing counted against the run.
func (a *Aggregator) WasSuccessful() bool {
	return a.FailCount() == 0
}

// FailCount counts generic errors and failures, generic blocked outcomes and
// everything stored for failing registered categories.
func (a *Aggregator) FailCount() int {
	count := len(a.errors) + len(a.failures) +
		len(a.blocked[LabelError]) + len(a.blocked[LabelFail])
	for _, reg := range a.registry.All() {
		if reg.IsFailing {
			count += reg.Len() + len(a.blocked[reg.Label])
		}
	}
	return count
}

// NotFailCount counts what is stored for non-failing registered categories.
func (a *Aggregator) NotFailCount() int {
	count := 0
	for _, reg := range a.registry.All() {
		if !reg.IsFailing {
			count += reg.Len() + len(a.blocked[reg.Label])
		}
	}
	return count
}

// Summary maps labels to counts for the summary line.
func (a *Aggregator) Summary() map[string]int {
	summary := make(map[string]int)
	for _, reg := range a.registry.All() {
		if n := reg.Len(); n > 0 {
			summary[reg.Label] = n
		}
	}
	if n := len(a.failures); n > 0 {
		summary["failures"] = n
	}
	if n := len(a.errors); n > 0 {
		summary["errors"] = n
	}
	for _, label := range a.blockedOrder {
		if n := len(a.blocked[label]); n > 0 {
			summary[label] = n
		}
	}
	return summary
}

func (a *Aggregator) Errors() []Entry   { return append([]Entry(nil), a.errors...) }
func (a *Aggregator) Failures() []Entry { return append([]Entry(nil), a.failures...) }

// BlockedLabels returns the blocked bucket labels in first-use order.
func (a *Aggregator) BlockedLabels() []string {
	return append([]string(nil), a.blockedOrder...)
}

func (a *Aggregator) Blocked(label string) []BlockedEntry {
	return append([]BlockedEntry(nil), a.blocked[label]...)
}

// Records returns every classified outcome in report order.
func (a *Aggregator) Records() []Record {
	return append([]Record(nil), a.records...)
}

// Description returns how a test is named in reports.
func (a *Aggregator) Description(test Test) string {
	if a.descriptions {
		if d := test.ShortDescription(); d != "" {
			return d
		}
	}
	return test.ID()
}

package reporter

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/capture"
	"github.com/abdul-hamid-achik/tally/packages/errclass"
	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/google/uuid"
)

// Markers framing captured output appended to a failure. Log scrapers
// depend on them; do not change.
const (
	BeginCaptureMarker = ">> begin captured stdout <<"
	EndCaptureMarker   = ">> end captured stdout <<"
)

// ErrorClass is a category registered at construction.
type ErrorClass struct {
	Category  *errclass.Category
	Label     string
	IsFailing bool
}

// DefaultErrorClasses are registered unless WithErrorClasses replaces them.
var DefaultErrorClasses = []ErrorClass{
	{Category: errclass.Skip, Label: "SKIP", IsFailing: false},
	{Category: errclass.Deprecated, Label: "DEPRECATED", IsFailing: false},
	{Category: errclass.Todo, Label: "TODO", IsFailing: true},
}

// Reporter is the object a runner drives: a result aggregator plus the
// capture of the process-wide output stream.
type Reporter struct {
	result  *result.Aggregator
	capture *capture.Capture
	enabled bool
	runID   string
	logger  *slog.Logger

	resultOpts  []result.Option
	captureOpts []capture.Option
	classes     []ErrorClass

	started time.Time
	stopped time.Time
}

type Option func(*Reporter)

// WithCapture turns output capture on or off. Capture is on by default.
func WithCapture(enabled bool) Option {
	return func(r *Reporter) {
		r.enabled = enabled
	}
}

// WithCaptureOptions configures the underlying capture.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(r *Reporter) {
		r.captureOpts = append(r.captureOpts, opts...)
	}
}

// WithResultOptions configures the underlying aggregator.
func WithResultOptions(opts ...result.Option) Option {
	return func(r *Reporter) {
		r.resultOpts = append(r.resultOpts, opts...)
	}
}

// WithErrorClasses replaces the default error classes.
func WithErrorClasses(classes ...ErrorClass) Option {
	return func(r *Reporter) {
		r.classes = classes
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(r *Reporter) {
		r.runID = id
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = l
	}
}

// New creates a Reporter with a fresh registry holding the configured error
// classes.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		enabled: true,
		logger:  slog.Default(),
		classes: DefaultErrorClasses,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}

	r.result = result.New(append([]result.Option{result.WithLogger(r.logger)}, r.resultOpts...)...)
	for _, c := range r.classes {
		r.result.Register(c.Category, c.Label, c.IsFailing)
	}
	r.capture = capture.New(append([]capture.Option{capture.WithLogger(r.logger)}, r.captureOpts...)...)
	return r
}

func (r *Reporter) Result() *result.Aggregator { return r.result }
func (r *Reporter) Capture() *capture.Capture  { return r.capture }
func (r *Reporter) CaptureEnabled() bool       { return r.enabled }
func (r *Reporter) RunID() string              { return r.runID }
func (r *Reporter) Started() time.Time         { return r.started }
func (r *Reporter) Stopped() time.Time         { return r.stopped }

// Register adds an error class to the registry.
func (r *Reporter) Register(cat *errclass.Category, label string, isFailing bool) {
	r.result.Register(cat, label, isFailing)
}

// AddHook appends a report hook run at the end of PrintErrors.
func (r *Reporter) AddHook(h result.ReportHook) {
	r.result.AddHook(h)
}

// Begin starts the run and takes an early capture frame.
func (r *Reporter) Begin() {
	r.started = time.Now()
	r.logger.Debug("run started", "run_id", r.runID, "capture", r.enabled, "tee", r.capture.Tee())
	if r.enabled {
		r.capture.Start()
	}
}

// BeforeTest counts the test and pushes a capture frame for it.
func (r *Reporter) BeforeTest(test result.Test) {
	r.result.StartTest(test)
	if r.enabled {
		r.capture.Start()
	}
}

// AfterTest pops the test's capture frame and drops its buffer.
func (r *Reporter) AfterTest(test result.Test) {
	if r.enabled {
		r.capture.End()
		r.capture.Discard()
	}
	r.result.StopTest(test)
}

// FormatError attaches the captured output to info. The buffer is consumed.
// When nothing was captured info is returned unchanged.
func (r *Reporter) FormatError(test result.Test, info result.Info) result.Info {
	if !r.enabled {
		return info
	}
	output, _ := r.capture.Buffer()
	dropped := r.capture.Dropped()
	r.capture.Discard()

	if rec, ok := test.(result.OutputRecorder); ok {
		rec.SetCapturedOutput(output)
	}
	if output == "" {
		return info
	}
	if dropped > 0 {
		output = fmt.Sprintf("[%d earlier bytes truncated]\n", dropped) + output
	}
	info.Value = AddCaptureToErr(info.Detail(), output)
	return info
}

// FormatFailure is FormatError for failures.
func (r *Reporter) FormatFailure(test result.Test, info result.Info) result.Info {
	return r.FormatError(test, info)
}

// AddCaptureToErr frames output between the capture markers below detail.
func AddCaptureToErr(detail, output string) string {
	return strings.Join([]string{detail, BeginCaptureMarker, output, EndCaptureMarker}, "\n")
}

func (r *Reporter) AddSuccess(test result.Test) {
	r.result.AddSuccess(test)
}

func (r *Reporter) AddSkip(test result.Test, reason string) {
	r.result.AddSkip(test, reason)
}

// AddError enriches info with captured output and classifies it.
func (r *Reporter) AddError(test result.Test, info result.Info) {
	r.result.AddError(test, r.FormatError(test, info))
}

// AddFailure enriches info with captured output and classifies it.
func (r *Reporter) AddFailure(test result.Test, info result.Info) {
	r.result.AddFailure(test, r.FormatFailure(test, info))
}

// AddBlocked classifies a test that could not run. Blocked tests never ran,
// so there is no output to attach.
func (r *Reporter) AddBlocked(test result.Test, info result.Info, context string) {
	r.result.AddBlocked(test, info, context)
}

// Report dispatches an outcome, enriching failures and errors first.
func (r *Reporter) Report(test result.Test, o result.Outcome) {
	switch o.Kind {
	case result.KindFailure:
		o.Info = r.FormatFailure(test, o.Info)
	case result.KindError, result.KindCustom:
		o.Info = r.FormatError(test, o.Info)
	}
	r.result.Add(test, o)
}

// Finalize restores the original output destination and closes the run.
// It is safe to call more than once and must run on every exit path.
func (r *Reporter) Finalize() {
	r.capture.Finalize()
	if r.stopped.IsZero() {
		r.stopped = time.Now()
	}
	r.result.Stop()
	r.logger.Debug("run finished", "run_id", r.runID, "tests", r.result.TestsRun(), "successful", r.result.WasSuccessful())
}

func (r *Reporter) PrintErrors() {
	r.result.PrintErrors()
}

func (r *Reporter) PrintSummary(start, stop time.Time) {
	r.result.PrintSummary(start, stop)
}

// WasSuccessful reports the run's verdict.
func (r *Reporter) WasSuccessful() bool {
	return r.result.WasSuccessful()
}

package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/assertions"
	"github.com/abdul-hamid-achik/tally/packages/core/env"
	"github.com/abdul-hamid-achik/tally/packages/core/suite"
	"github.com/abdul-hamid-achik/tally/packages/errclass"
	"github.com/abdul-hamid-achik/tally/packages/reporter"
	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/abdul-hamid-achik/tally/packages/snapshot"
	"golang.org/x/time/rate"
)

type Runner struct {
	reporter   *reporter.Reporter
	config     *Config
	limiter    *rate.Limiter
	logger     *slog.Logger
	stdout     io.Writer
	httpClient *http.Client
	snapshots  *snapshot.Manager
}

type Config struct {
	// Shell runs each command as "<shell> -c <command>". Defaults to sh;
	// a suite's own shell takes precedence.
	Shell      string
	NameFilter string
	// Bail blocks the remaining tests of a suite after the first failure.
	Bail bool
	// Rate limits how many tests start per second. Zero means unlimited.
	Rate float64
	// EnvFiles are loaded after the suite's env file; later files win.
	EnvFiles []string
	// UpdateSnapshots writes missing and changed snapshots instead of
	// failing on them.
	UpdateSnapshots bool
	Logger          *slog.Logger
}

// NewRunner creates a runner reporting through rep. Command stdout goes to
// the stream rep captures.
func NewRunner(rep *reporter.Reporter, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		reporter:  rep,
		config:    cfg,
		logger:    logger,
		stdout:    rep.Capture().Stream(),
		snapshots: snapshot.NewManager(cfg.UpdateSnapshots),
	}
	if cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return r
}

type RunResult struct {
	Suite    string
	Results  []*TestResult
	Duration time.Duration
	Passed   int
	Failed   int
	Skipped  int
	Blocked  int
}

func (rr *RunResult) add(tr *TestResult) {
	rr.Results = append(rr.Results, tr)
	switch {
	case tr.Kind == result.KindSkip:
		rr.Skipped++
	case tr.Kind == result.KindBlocked:
		rr.Blocked++
	case tr.Test.Passed():
		rr.Passed++
	default:
		rr.Failed++
	}
}

type TestResult struct {
	Test       *result.Case
	Kind       result.Kind
	Output     *assertions.Output
	Assertions []*assertions.Result
	Error      error
	Duration   time.Duration
}

// runContext is the per-suite state shared by its tests.
type runContext struct {
	suite    *suite.Suite
	baseDir  string
	vars     map[string]string
	resolver *env.Resolver
	timeout  time.Duration
	shell    string
}

// environ returns the command environment with extra resolved on top.
func (rc *runContext) environ(extra map[string]string) []string {
	return env.Environ(env.MergeVariables(rc.vars, rc.resolver.ResolveAll(extra)))
}

// RunFile loads and runs a suite file.
func (r *Runner) RunFile(ctx context.Context, path string) (*RunResult, error) {
	s, err := suite.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading suite: %w", err)
	}
	return r.RunSuite(ctx, s)
}

// RunSuite runs every selected test of s. The reporter must have been
// started with Begin; finalizing it is left to the caller.
func (r *Runner) RunSuite(ctx context.Context, s *suite.Suite) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{Suite: s.DisplayName()}

	tests, err := s.Filter(r.config.NameFilter)
	if err != nil {
		return nil, err
	}
	rc, err := r.newRunContext(s)
	if err != nil {
		return nil, err
	}

	var blockErr error
	var blockCtx string
	ready := true
	if err := r.waitForService(ctx, s.WaitFor, rc.resolver.Resolve); err != nil {
		ready = false
		blockErr, blockCtx = err, "waitFor "+s.DisplayName()
	} else if err := r.executeSetup(ctx, s.Setup, rc); err != nil {
		blockErr, blockCtx = err, "setup "+s.DisplayName()
	}
	if blockErr != nil {
		r.logger.Warn("suite blocked", "suite", s.DisplayName(), "err", blockErr)
	}

	for _, t := range tests {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		c := result.NewCase(s.DisplayName()+"::"+t.Name, t.Description)
		var tr *TestResult
		switch {
		case blockErr != nil:
			tr = r.block(c, result.Info{Category: errclass.Blocked, Value: blockErr.Error()}, blockCtx)
		case t.Blocked != "":
			tr = r.block(c, result.Info{Category: errclass.Blocked, Value: t.Blocked}, t.Blocked)
		case t.Skip != "":
			tr = r.skip(c, t.Skip)
		default:
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					res.Duration = time.Since(start)
					return res, err
				}
			}
			tr = r.runTest(ctx, rc, c, t)
		}
		res.add(tr)

		if r.config.Bail && blockErr == nil && tr.Kind != result.KindBlocked && !c.Passed() {
			blockErr, blockCtx = fmt.Errorf("stopped after %s failed", c.ID()), "bail "+s.DisplayName()
		}
	}

	if ready && len(s.Teardown) > 0 {
		if err := r.executeTeardown(context.WithoutCancel(ctx), s.Teardown, rc); err != nil {
			c := result.NewCase(s.DisplayName()+"::teardown", "")
			r.reporter.AddError(c, result.FromError(err, CommandError))
			res.add(&TestResult{Test: c, Kind: result.KindError, Error: err})
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (r *Runner) newRunContext(s *suite.Suite) (*runContext, error) {
	baseDir := s.BaseDir()
	files := make([]map[string]string, 0, len(r.config.EnvFiles)+1)

	paths := append([]string(nil), r.config.EnvFiles...)
	if s.EnvFile != "" {
		paths = append([]string{resolveDir(baseDir, s.EnvFile)}, paths...)
	}
	for _, p := range paths {
		vars, err := env.LoadDotEnv(p)
		if err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
		files = append(files, vars)
	}

	resolver := env.NewResolver()
	resolver.SetLogger(r.logger)
	fileVars := env.MergeVariables(files...)
	resolver.SetVariables(fileVars)
	suiteVars := resolver.ResolveAll(s.Env)
	resolver.SetVariables(suiteVars)

	rc := &runContext{
		suite:    s,
		baseDir:  baseDir,
		vars:     env.MergeVariables(env.LoadSystemEnv(""), fileVars, suiteVars),
		resolver: resolver,
		timeout:  s.TimeoutFor(&suite.Test{}),
		shell:    r.config.Shell,
	}
	if s.Shell != "" {
		rc.shell = s.Shell
	}
	if rc.shell == "" {
		rc.shell = "sh"
	}
	return rc, nil
}

func (r *Runner) block(c *result.Case, info result.Info, blockedBy string) *TestResult {
	r.reporter.AddBlocked(c, info, blockedBy)
	r.logger.Debug("test blocked", "test", c.ID(), "context", blockedBy)
	return &TestResult{Test: c, Kind: result.KindBlocked}
}

func (r *Runner) skip(c *result.Case, reason string) *TestResult {
	r.reporter.BeforeTest(c)
	r.reporter.AddSkip(c, reason)
	r.reporter.AfterTest(c)
	return &TestResult{Test: c, Kind: result.KindSkip}
}

// runTest runs one command between BeforeTest and AfterTest, so everything
// it prints lands in the test's capture buffer.
func (r *Runner) runTest(ctx context.Context, rc *runContext, c *result.Case, t *suite.Test) *TestResult {
	tr := &TestResult{Test: c}
	command := rc.resolver.Resolve(t.Command)

	r.logger.Debug("test started", "test", c.ID(), "command", command)
	r.reporter.BeforeTest(c)
	defer func() {
		r.reporter.AfterTest(c)
		r.logger.Debug("test finished", "test", c.ID(), "outcome", tr.Kind, "duration", tr.Duration)
	}()

	out, err := r.executeShellCommand(ctx, shellCommand{
		Shell:   rc.shell,
		Command: command,
		Dir:     resolveDir(rc.baseDir, t.Dir),
		Env:     rc.environ(t.Env),
		Timeout: rc.suite.TimeoutFor(t),
		Stdout:  r.stdout,
	})
	tr.Output = out
	if out != nil {
		tr.Duration = out.Duration
	}

	if err != nil {
		tr.Kind, tr.Error = result.KindError, err
		info := result.FromError(err, CommandError)
		info.Trace = describeCommand(command, nil)
		r.reporter.AddError(c, info)
		return tr
	}

	checks, err := t.Assertions()
	if err != nil {
		tr.Kind, tr.Error = result.KindError, err
		r.reporter.AddError(c, result.FromError(err, SuiteError))
		return tr
	}
	tr.Assertions = assertions.EvaluateAllWithBaseDir(out, checks, rc.baseDir)
	if t.Expect.Snapshot != "" {
		tr.Assertions = append(tr.Assertions, r.compareSnapshot(rc, t, out))
	}

	failed := assertions.Failed(tr.Assertions)
	if len(failed) == 0 {
		tr.Kind = result.KindSuccess
		r.reporter.AddSuccess(c)
		r.record(rc, t, out)
		return tr
	}

	msgs := make([]string, len(failed))
	for i, f := range failed {
		msgs[i] = f.String()
	}
	info := result.Info{
		Category: errclass.Failure,
		Value:    strings.Join(msgs, "\n"),
		Trace:    describeCommand(command, out),
	}
	if cat := t.FailureCategory(); cat != nil {
		tr.Kind = result.KindCustom
		r.reporter.Report(c, result.Custom(cat, info))
		return tr
	}
	tr.Kind = result.KindFailure
	r.reporter.AddFailure(c, info)
	return tr
}

// compareSnapshot checks the test's snapshot subject against the stored one.
func (r *Runner) compareSnapshot(rc *runContext, t *suite.Test, out *assertions.Output) *assertions.Result {
	subject := t.Expect.Snapshot
	res := &assertions.Result{
		Subject:  subject,
		Operator: "snapshot",
		Expected: filepath.Base(snapshot.FilePath(rc.suite.Path)),
	}
	v, err := assertions.NewEvaluator(out).Value(subject)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	sr := r.snapshots.Compare(rc.suite.Path, t.Name, v)
	res.Passed, res.Message, res.Actual = sr.Passed, sr.Message, sr.Actual
	if sr.IsNew || sr.Updated {
		r.logger.Info(sr.Message, "test", t.Name, "subject", subject)
	}
	return res
}

// record stores the values a passing test names for later tests.
func (r *Runner) record(rc *runContext, t *suite.Test, out *assertions.Output) {
	if len(t.Record) == 0 {
		return
	}
	e := assertions.NewEvaluator(out)
	for name, subject := range t.Record {
		v, err := e.Value(subject)
		if err != nil || v == nil {
			r.logger.Warn("nothing to record", "test", t.Name, "name", name, "subject", subject, "err", err)
			continue
		}
		rc.resolver.SetCapture(t.Name, name, strings.TrimSpace(fmt.Sprint(v)))
	}
}

package runner

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/capture"
	"github.com/abdul-hamid-achik/tally/packages/core/suite"
	"github.com/abdul-hamid-achik/tally/packages/reporter"
	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	rep    *reporter.Reporter
	runner *Runner
	term   *bytes.Buffer
	out    *bytes.Buffer
}

func newHarness(t *testing.T, cfg *Config, opts ...reporter.Option) *harness {
	t.Helper()
	h := &harness{term: &bytes.Buffer{}, out: &bytes.Buffer{}}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []reporter.Option{
		reporter.WithLogger(quiet),
		reporter.WithCaptureOptions(capture.WithStream(capture.NewStream(h.term))),
		reporter.WithResultOptions(result.WithWriter(h.out), result.WithNoColor(true), result.WithVerbosity(0)),
	}
	h.rep = reporter.New(append(base, opts...)...)
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Logger = quiet
	h.runner = NewRunner(h.rep, cfg)
	h.rep.Begin()
	t.Cleanup(h.rep.Finalize)
	return h
}

func writeSuite(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunSuite_Outcomes(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
name: demo
env:
  WHO: world
tests:
  - name: pass
    command: echo hello $WHO
    expect:
      output: hello world
  - name: fail
    description: Prints then exits 3
    command: echo about to fail; exit 3
  - name: skipped
    command: "true"
    skip: not on this platform
  - name: blocked
    command: "true"
    blocked: database unavailable
  - name: pending
    command: exit 1
    category: todo
`)

	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "demo", res.Suite)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Blocked)

	agg := h.rep.Result()
	assert.Equal(t, 4, agg.TestsRun(), "blocked tests never start")
	require.Len(t, agg.Failures(), 1)

	failure := agg.Failures()[0]
	assert.Equal(t, "demo::fail", failure.Test.ID())
	detail := failure.Info.Detail()
	assert.Contains(t, detail, "exitCode == 0: expected 0, got 3")
	assert.Contains(t, detail, ">> begin captured stdout <<\nabout to fail\n\n>> end captured stdout <<")
	assert.Equal(t, "about to fail\n", failure.Test.(*result.Case).CapturedOutput())
	assert.Contains(t, failure.Info.Trace, "$ echo about to fail; exit 3")

	summary := agg.Summary()
	assert.Equal(t, 1, summary["TODO"])
	assert.Equal(t, 1, summary["SKIP"])
	assert.Equal(t, 1, summary["failures"])
	assert.Equal(t, 1, summary[result.LabelError])
	assert.False(t, agg.WasSuccessful())

	assert.Empty(t, h.term.String(), "captured output stays off the terminal")
}

func TestRunSuite_CaptureDisabledPassesThrough(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
tests:
  - name: loud
    command: echo visible
`)
	h := newHarness(t, nil, reporter.WithCapture(false))
	_, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "visible\n", h.term.String())
	assert.True(t, h.rep.WasSuccessful())
}

func TestRunSuite_RecordAndResolve(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
tests:
  - name: login
    command: echo '{"token":"s3cr3t"}'
    record:
      token: json.token
  - name: use
    command: test "{{login.token}}" = s3cr3t
`)
	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Passed)
}

func TestRunSuite_EnvFileAndDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COLOR=blue\n"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "marker"), nil, 0644))

	path := writeSuite(t, dir, `
envFile: .env
tests:
  - name: color
    command: echo $COLOR
    expect:
      output: blue
  - name: dir
    dir: sub
    command: test -f marker
`)
	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Passed, "%+v", h.out.String())
}

func TestRunSuite_SetupFailureBlocksEverything(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
name: guarded
setup:
  - exit 7
teardown:
  - "true"
tests:
  - name: a
    command: "true"
  - name: b
    command: "true"
`)
	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Blocked)

	agg := h.rep.Result()
	entries := agg.Blocked(result.LabelError)
	require.Len(t, entries, 2)
	assert.Equal(t, "setup guarded", entries[0].Context)

	h.rep.PrintErrors()
	assert.Equal(t, 1, strings.Count(h.out.String(), "BLOCKED ERROR: setup guarded"))
}

func TestRunSuite_TeardownFailureIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
name: messy
teardown:
  - exit 2
tests:
  - name: a
    command: "true"
`)
	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 1, res.Failed)

	errs := h.rep.Result().Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "messy::teardown", errs[0].Test.ID())
}

func TestRunSuite_Bail(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
name: b
tests:
  - name: first
    command: exit 1
  - name: second
    command: "true"
`)
	h := newHarness(t, &Config{Bail: true})
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Blocked)
	assert.Equal(t, "bail b", h.rep.Result().Blocked(result.LabelError)[0].Context)
}

func TestRunSuite_Timeout(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
tests:
  - name: slow
    command: sleep 5
    timeout: 100ms
`)
	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, result.KindError, res.Results[0].Kind)

	errs := h.rep.Result().Errors()
	require.Len(t, errs, 1)
	assert.Same(t, Timeout, errs[0].Info.Category)
	assert.True(t, errs[0].Info.Category.Is(CommandError))
}

func TestRunSuite_Filter(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
tests:
  - name: keep-me
    command: "true"
  - name: drop-me
    command: "false"
`)
	h := newHarness(t, &Config{NameFilter: "^keep"})
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, 1, h.rep.Result().TestsRun())
}

func TestRunSuite_WaitFor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writeSuite(t, dir, `
waitFor:
  url: `+srv.URL+`
  timeout: 2s
  interval: 10ms
tests:
  - name: a
    command: "true"
`)
	h := newHarness(t, nil)
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestRunSuite_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeSuite(t, dir, `
tests:
  - name: a
    command: "true"
`)
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.runner.RunFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFile_InvalidSuite(t *testing.T) {
	h := newHarness(t, nil)
	path := writeSuite(t, t.TempDir(), "tests: []")
	_, err := h.runner.RunFile(context.Background(), path)
	assert.ErrorIs(t, err, suite.ErrNoTests)
}

func TestResolveExecutable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.sh"), []byte("#!/bin/sh\n"), 0755))

	assert.Equal(t, filepath.Join(dir, "seed.sh")+" --fast", resolveExecutable("./seed.sh --fast", dir))
	assert.Equal(t, filepath.Join(dir, "seed.sh"), resolveExecutable("seed.sh", dir))
	assert.Equal(t, "echo hi", resolveExecutable("echo hi", dir))
	assert.Equal(t,
		filepath.Join(dir, "seed.sh")+` --msg "a   b"  'c  d'`,
		resolveExecutable(`./seed.sh --msg "a   b"  'c  d'`, dir),
		"quoted arguments keep their spacing")
}

func TestRunSuite_Snapshots(t *testing.T) {
	dir := t.TempDir()
	content := func(msg string) string {
		return `
name: snap
tests:
  - name: prints
    command: printf '` + msg + `'
    expect:
      snapshot: stdout
`
	}
	path := writeSuite(t, dir, content(`one\ntwo\n`))

	h := newHarness(t, nil)
	_, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, len(h.rep.Result().Failures()))
	assert.Contains(t, h.rep.Result().Failures()[0].Info.String(), "snapshot does not exist")

	h = newHarness(t, &Config{UpdateSnapshots: true})
	_, err = h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, h.rep.WasSuccessful())
	assert.FileExists(t, filepath.Join(dir, "__snapshots__", "suite.snap.json"))

	h = newHarness(t, nil)
	_, err = h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, h.rep.WasSuccessful())

	writeSuite(t, dir, content(`one\nTWO\n`))
	h = newHarness(t, nil)
	_, err = h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, h.rep.Result().Failures(), 1)
	assert.Contains(t, h.rep.Result().Failures()[0].Info.String(),
		`stdout snapshot suite.snap.json: snapshot mismatch: line 2: expected "two", got "TWO"`)
}

func TestRunSuite_BuiltinPlaceholders(t *testing.T) {
	path := writeSuite(t, t.TempDir(), `
name: funcs
tests:
  - name: encodes
    command: echo {{base64("tally")}}
    expect:
      output: dGFsbHk=
`)
	h := newHarness(t, nil)
	_, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, h.rep.WasSuccessful(), h.out.String())
}

func TestRunSuite_RatePacesTests(t *testing.T) {
	path := writeSuite(t, t.TempDir(), `
tests:
  - name: a
    command: "true"
  - name: b
    command: "true"
  - name: c
    command: "true"
`)
	h := newHarness(t, &Config{Rate: 20})
	start := time.Now()
	res, err := h.runner.RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Passed)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRunSuite_UnusableTestIsSuiteError(t *testing.T) {
	s := &suite.Suite{
		Name: "direct",
		Tests: []*suite.Test{{
			Name:    "bad-op",
			Command: "true",
			Assert:  []suite.AssertionSpec{{Subject: "stdout", Op: "resembles", Value: "x"}},
		}},
	}
	h := newHarness(t, nil)
	_, err := h.runner.RunSuite(context.Background(), s)
	require.NoError(t, err)

	errs := h.rep.Result().Errors()
	require.Len(t, errs, 1)
	assert.Same(t, SuiteError, errs[0].Info.Category)
	assert.True(t, strings.HasPrefix(errs[0].Info.String(), "SuiteError: "), errs[0].Info.String())
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/tally/packages/history"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const passingSuite = `name: smoke
tests:
  - name: ok
    command: "true"
  - name: later
    command: "true"
    skip: not today
`

const failingSuite = `name: broken
tests:
  - name: fails
    command: echo nope; exit 2
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// resetFlags puts every subcommand flag back to its default; cobra keeps
// them in package variables between executions.
func resetFlags(t *testing.T) {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			require.NoError(t, f.Value.Set(f.DefValue))
			f.Changed = false
		})
	}
}

// execute runs the root command and returns stdout, stderr and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(t)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	})
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if err != nil {
		return -1
	}
	return ExitSuccess
}

func TestIsSuiteFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"suite.yaml", true},
		{"dir/suite.yml", true},
		{"api.suite.yaml", true},
		{"api.suite.yml", true},
		{".tally.yaml", false},
		{"config.yaml", false},
		{"suite.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isSuiteFile(tt.path))
		})
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	writeFile(t, dir, "a.suite.yaml", passingSuite)
	writeFile(t, filepath.Join(dir, "nested"), "suite.yml", passingSuite)
	writeFile(t, dir, ".tally.yaml", "verbosity: 2\n")
	explicit := writeFile(t, t.TempDir(), "custom.yaml", passingSuite)

	files, err := collectFiles([]string{dir, explicit})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.suite.yaml"),
		filepath.Join(dir, "nested", "suite.yml"),
		explicit,
	}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "cannot access")
}

func TestWatchTriggers(t *testing.T) {
	dir := t.TempDir()
	explicit := writeFile(t, dir, "api.yaml", passingSuite)
	writeFile(t, dir, "notes.yaml", "x: 1\n")

	triggers := watchTriggers([]string{explicit, t.TempDir()})
	assert.True(t, triggers(explicit), "explicit files re-run whatever their name")
	assert.True(t, triggers(filepath.Join(dir, ".", "api.yaml")))
	assert.True(t, triggers(filepath.Join(dir, "other.suite.yaml")))
	assert.False(t, triggers(filepath.Join(dir, "notes.yaml")))
}

func TestFormatSummary(t *testing.T) {
	assert.Equal(t, "ERROR=1, SKIP=2, failures=3", formatSummary(map[string]int{"failures": 3, "SKIP": 2, "ERROR": 1}))
	assert.Equal(t, "", formatSummary(nil))
}

func TestExitError(t *testing.T) {
	err := exitWith(ExitParseError, errors.New("bad suite"))
	assert.Equal(t, "bad suite", err.Error())
	assert.Equal(t, ExitParseError, exitCode(err))
	assert.Equal(t, "exit status 1", exitWith(ExitTestFailure, nil).Error())
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.suite.yaml", passingSuite)
	bad := writeFile(t, dir, "bad.suite.yaml", "tests:\n  - name: x\n    bogus: 1\n")

	out, _, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid: "+good)

	_, errOut, err := execute(t, "validate", bad)
	assert.Equal(t, ExitParseError, exitCode(err))
	assert.Contains(t, errOut, "Invalid: "+bad)
}

func TestListCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "suite.yaml", passingSuite)

	out, _, err := execute(t, "list", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  - smoke::ok\n")
	assert.Contains(t, out, "  - smoke::later\n    skip: not today\n")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.suite.yaml", passingSuite)
	broken := writeFile(t, dir, "broken.suite.yaml", failingSuite)
	db := filepath.Join(dir, "history.db")
	reports := filepath.Join(dir, "reports")

	_, errOut, err := execute(t, "run", ok, "--no-color", "--history", db)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Ran 2 tests")
	assert.Contains(t, errOut, "OK (SKIP=1)")

	_, errOut, err = execute(t, "run", broken, "--no-color", "--history", db, "-o", "json", "--output-dir", reports)
	assert.Equal(t, ExitTestFailure, exitCode(err))
	assert.Contains(t, errOut, "FAIL: broken::fails")
	assert.Contains(t, errOut, ">> begin captured stdout <<\nnope\n")

	data, err := os.ReadFile(filepath.Join(reports, "tally-report.json"))
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(data, "successful").Bool())
	assert.Equal(t, "nope\n", gjson.GetBytes(data, `tests.#(id=="broken::fails").capturedOutput`).String())

	store, err := history.Open(db)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.False(t, runs[0].Successful)
	assert.True(t, runs[1].Successful)

	out, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "TOTAL")
}

func TestRunCommand_UsageErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "suite.yaml", passingSuite)

	_, _, err := execute(t, "run", path, "-o", "xml", "--history", "")
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, _, err = execute(t, "run", path, "-o", "", "--filter", "(")
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, _, err = execute(t, "run", filepath.Join(t.TempDir(), "missing.yaml"), "--filter", "")
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestRunCommand_ParseError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "suite.yaml", "tests: []\n")
	_, _, err := execute(t, "run", path)
	assert.Equal(t, ExitParseError, exitCode(err))
}

func TestInitCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	_, _, err := execute(t, "init")
	require.NoError(t, err)
	assert.FileExists(t, ".tally.yaml")
	assert.FileExists(t, "example.suite.yaml")

	_, _, err = execute(t, "init")
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, _, err = execute(t, "init", "--force")
	require.NoError(t, err)

	out, _, err := execute(t, "validate", "example.suite.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Valid: example.suite.yaml")
}

package suite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/assertions"
	"github.com/abdul-hamid-achik/tally/packages/errclass"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrNoTests is returned for a suite without tests.
var ErrNoTests = errors.New("suite has no tests")

// DefaultTimeout applies when neither the test nor the suite sets one.
const DefaultTimeout = 30 * time.Second

// Suite is a parsed suite file.
type Suite struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Shell       string            `yaml:"shell"`
	Timeout     string            `yaml:"timeout"`
	EnvFile     string            `yaml:"envFile"`
	Env         map[string]string `yaml:"env"`
	// Setup commands run before the first test; a failure blocks every test.
	Setup []string `yaml:"setup"`
	// Teardown commands run after the last test, even after a failure.
	Teardown []string `yaml:"teardown"`
	WaitFor  *WaitFor `yaml:"waitFor"`
	Tests    []*Test  `yaml:"tests"`

	// Path is the file the suite was loaded from.
	Path string `yaml:"-"`
}

// Test is one command in a suite.
type Test struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Dir         string            `yaml:"dir"`
	Timeout     string            `yaml:"timeout"`
	Env         map[string]string `yaml:"env"`
	Skip        string            `yaml:"skip"`
	Blocked     string            `yaml:"blocked"`
	Category    string            `yaml:"category"`
	Expect      Expect            `yaml:"expect"`
	Assert      []AssertionSpec   `yaml:"assert"`
	// Record names values later tests can read as {{test.name}}. Values are
	// "stdout", "stderr", "exitCode" or a json.<path> subject.
	Record map[string]string `yaml:"record"`
}

// WaitFor polls a URL until it answers with Status before tests run.
type WaitFor struct {
	URL      string `yaml:"url"`
	Status   int    `yaml:"status"`
	Timeout  string `yaml:"timeout"`
	Interval string `yaml:"interval"`
}

// Durations returns the poll timeout and interval, defaulting to 30s and 1s.
func (w *WaitFor) Durations() (timeout, interval time.Duration) {
	timeout, interval = 30*time.Second, time.Second
	if d, err := time.ParseDuration(w.Timeout); err == nil {
		timeout = d
	}
	if d, err := time.ParseDuration(w.Interval); err == nil {
		interval = d
	}
	return timeout, interval
}

// ExpectedStatus returns the status to wait for, 200 when unset.
func (w *WaitFor) ExpectedStatus() int {
	if w.Status == 0 {
		return 200
	}
	return w.Status
}

// Expect holds shorthand expectations.
type Expect struct {
	ExitCode *int           `yaml:"exitCode"`
	Output   string         `yaml:"output"`
	JSON     map[string]any `yaml:"json"`
	// Snapshot names a subject (stdout, stderr, json.<path>) compared
	// against the value stored by an earlier run.
	Snapshot string `yaml:"snapshot"`
}

// AssertionSpec is an assertion as written in the file.
type AssertionSpec struct {
	Subject string `yaml:"subject"`
	Op      string `yaml:"op"`
	Value   any    `yaml:"value"`
}

// ValidationError lists schema violations.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid suite: %s", e.Path, strings.Join(e.Errors, "; "))
}

// Load reads and parses a suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	return Parse(data, path)
}

// Parse validates and decodes suite data. path is used for messages and to
// resolve relative paths.
func Parse(data []byte, path string) (*Suite, error) {
	if err := Validate(data, path); err != nil {
		return nil, err
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	if len(s.Tests) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTests)
	}

	seen := make(map[string]bool, len(s.Tests))
	for _, t := range s.Tests {
		if seen[t.Name] {
			return nil, &ValidationError{Path: path, Errors: []string{fmt.Sprintf("duplicate test name %q", t.Name)}}
		}
		seen[t.Name] = true
		if _, err := t.Assertions(); err != nil {
			return nil, &ValidationError{Path: path, Errors: []string{fmt.Sprintf("%s: %v", t.Name, err)}}
		}
	}
	return &s, nil
}

// Validate checks data against the suite schema.
func Validate(data []byte, path string) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if doc == nil {
		return fmt.Errorf("%s: %w", path, ErrNoTests)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%s: schema validation: %w", path, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Path: path}
	for _, desc := range result.Errors() {
		verr.Errors = append(verr.Errors, desc.String())
	}
	sort.Strings(verr.Errors)
	return verr
}

// BaseDir is the directory relative paths in the suite resolve against.
func (s *Suite) BaseDir() string {
	if s.Path == "" {
		return "."
	}
	return filepath.Dir(s.Path)
}

// DisplayName is the suite name, or the file name when unnamed.
func (s *Suite) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.Path)
}

// TimeoutFor returns the effective timeout of t.
func (s *Suite) TimeoutFor(t *Test) time.Duration {
	for _, v := range []string{t.Timeout, s.Timeout} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return DefaultTimeout
}

// Filter returns the tests whose names match pattern. An empty pattern
// matches everything.
func (s *Suite) Filter(pattern string) ([]*Test, error) {
	if pattern == "" {
		return s.Tests, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	var out []*Test
	for _, t := range s.Tests {
		if re.MatchString(t.Name) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FailureCategory maps the test's category to the category its failures are
// reported under. nil means an ordinary failure.
func (t *Test) FailureCategory() *errclass.Category {
	switch t.Category {
	case "todo":
		return errclass.Todo
	case "deprecated":
		return errclass.Deprecated
	default:
		return nil
	}
}

// Assertions expands the expect shorthand and the assert list. Without an
// explicit exit code the command must exit 0.
func (t *Test) Assertions() ([]*assertions.Assertion, error) {
	exitCode := 0
	if t.Expect.ExitCode != nil {
		exitCode = *t.Expect.ExitCode
	}
	out := []*assertions.Assertion{
		{Subject: "exitCode", Operator: assertions.OpEquals, Expected: exitCode},
	}
	if t.Expect.Output != "" {
		out = append(out, &assertions.Assertion{Subject: "stdout", Operator: assertions.OpContains, Expected: t.Expect.Output})
	}

	paths := make([]string, 0, len(t.Expect.JSON))
	for p := range t.Expect.JSON {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		out = append(out, &assertions.Assertion{Subject: "json." + p, Operator: assertions.OpEquals, Expected: t.Expect.JSON[p]})
	}

	for _, a := range t.Assert {
		op, err := assertions.ParseOperator(a.Op)
		if err != nil {
			return nil, err
		}
		out = append(out, &assertions.Assertion{Subject: a.Subject, Operator: op, Expected: a.Value})
	}
	return out, nil
}

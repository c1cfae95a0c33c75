package suite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/assertions"
	"github.com/abdul-hamid-achik/tally/packages/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSuite = `
name: smoke
timeout: 5s
env:
  GREETING: hello
  RETRIES: 3
tests:
  - name: greet
    description: Says hello
    command: echo $GREETING
    expect:
      output: hello
  - name: status
    command: echo '{"status":"ok","items":[1,2]}'
    timeout: 1s
    expect:
      exitCode: 0
      json:
        status: ok
    assert:
      - subject: json.items
        op: length
        value: 2
    record:
      status: json.status
  - name: pending
    command: "false"
    category: todo
  - name: db
    command: psql -c 'select 1'
    blocked: database unavailable
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleSuite), "suites/smoke.yaml")
	require.NoError(t, err)

	assert.Equal(t, "smoke", s.DisplayName())
	assert.Equal(t, "suites", s.BaseDir())
	assert.Equal(t, "3", s.Env["RETRIES"])
	require.Len(t, s.Tests, 4)

	greet := s.Tests[0]
	assert.Equal(t, "Says hello", greet.Description)
	assert.Equal(t, 5*time.Second, s.TimeoutFor(greet))
	assert.Equal(t, time.Second, s.TimeoutFor(s.Tests[1]))
	assert.Equal(t, map[string]string{"status": "json.status"}, s.Tests[1].Record)

	assert.Same(t, errclass.Todo, s.Tests[2].FailureCategory())
	assert.Nil(t, greet.FailureCategory())
	assert.Equal(t, "database unavailable", s.Tests[3].Blocked)
}

func TestAssertions(t *testing.T) {
	s, err := Parse([]byte(sampleSuite), "smoke.yaml")
	require.NoError(t, err)

	got, err := s.Tests[1].Assertions()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, &assertions.Assertion{Subject: "exitCode", Operator: assertions.OpEquals, Expected: 0}, got[0])
	assert.Equal(t, &assertions.Assertion{Subject: "json.status", Operator: assertions.OpEquals, Expected: "ok"}, got[1])
	assert.Equal(t, assertions.OpLength, got[2].Operator)

	got, err = s.Tests[0].Assertions()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "stdout", got[1].Subject)
	assert.Equal(t, assertions.OpContains, got[1].Operator)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantNo  bool
		wantVal bool
	}{
		{name: "empty document", data: "", wantNo: true},
		{name: "empty test list", data: "tests: []", wantNo: true},
		{name: "missing command", data: "tests:\n  - name: a\n", wantVal: true},
		{name: "unknown key", data: "tests:\n  - name: a\n    command: x\n    cmd: y\n", wantVal: true},
		{name: "bad timeout", data: "timeout: soon\ntests:\n  - name: a\n    command: x\n", wantVal: true},
		{name: "bad category", data: "tests:\n  - name: a\n    command: x\n    category: flaky\n", wantVal: true},
		{name: "duplicate names", data: "tests:\n  - name: a\n    command: x\n  - name: a\n    command: y\n", wantVal: true},
		{name: "unknown operator", data: "tests:\n  - name: a\n    command: x\n    assert:\n      - subject: stdout\n        op: '~='\n", wantVal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "s.yaml")
			require.Error(t, err)
			if tt.wantNo {
				assert.True(t, errors.Is(err, ErrNoTests), "got %v", err)
			}
			if tt.wantVal {
				var verr *ValidationError
				assert.True(t, errors.As(err, &verr), "got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSuite), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	s, err := Parse([]byte(sampleSuite), "smoke.yaml")
	require.NoError(t, err)

	all, err := s.Filter("")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	some, err := s.Filter("^(greet|db)$")
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "db", some[1].Name)

	_, err = s.Filter("(")
	assert.Error(t, err)
}

func TestDisplayNameFallsBackToFile(t *testing.T) {
	s := &Suite{Path: "/tmp/x/api.yaml"}
	assert.Equal(t, "api.yaml", s.DisplayName())
	assert.Equal(t, DefaultTimeout, s.TimeoutFor(&Test{}))
}

func TestSetupTeardownWaitFor(t *testing.T) {
	data := `
setup:
  - mkdir -p out
teardown:
  - rm -rf out
waitFor:
  url: http://localhost:9000/ready
  timeout: 2s
tests:
  - name: a
    command: ls out
`
	s, err := Parse([]byte(data), "s.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"mkdir -p out"}, s.Setup)
	assert.Equal(t, []string{"rm -rf out"}, s.Teardown)
	require.NotNil(t, s.WaitFor)

	timeout, interval := s.WaitFor.Durations()
	assert.Equal(t, 2*time.Second, timeout)
	assert.Equal(t, time.Second, interval)
	assert.Equal(t, 200, s.WaitFor.ExpectedStatus())

	_, err = Parse([]byte("waitFor:\n  status: 200\ntests:\n  - name: a\n    command: x\n"), "s.yaml")
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

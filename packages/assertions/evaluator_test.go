package assertions

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOutput(exitCode int, stdout string) *Output {
	return &Output{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   "warning: something\n",
		Duration: 100 * time.Millisecond,
	}
}

func TestEvaluator_ExitCode(t *testing.T) {
	e := NewEvaluator(createOutput(0, ""))

	result := e.Evaluate(&Assertion{Subject: "exitCode", Operator: OpEquals, Expected: 0})
	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.Actual)

	result = e.Evaluate(&Assertion{Subject: "exitCode", Operator: OpNotEquals, Expected: 1})
	assert.True(t, result.Passed)

	result = e.Evaluate(&Assertion{Subject: "exitCode", Operator: OpEquals, Expected: 2})
	assert.False(t, result.Passed)
	assert.Equal(t, "expected 2, got 0", result.Message)
}

func TestEvaluator_JSON(t *testing.T) {
	e := NewEvaluator(createOutput(0, `{"user": {"name": "John", "age": 30}, "tags": ["a", "b"]}`+"\n"))

	tests := []struct {
		name     string
		subject  string
		operator Operator
		expected any
		passed   bool
	}{
		{"nested path equals", "json.user.name", OpEquals, "John", true},
		{"nested path numeric", "json.user.age", OpEquals, 30, true},
		{"numeric comparison", "json.user.age", OpGreaterOrEqual, 18, true},
		{"bracket notation", "json.tags[1]", OpEquals, "b", true},
		{"missing path does not exist", "json.user.email", OpNotExists, nil, true},
		{"array length", "json.tags", OpLength, 2, true},
		{"array includes", "json.tags", OpIncludes, "a", true},
		{"array does not include", "json.tags", OpNotIncludes, "z", true},
		{"whole document type", "json", OpType, "object", true},
		{"wrong value", "json.user.name", OpEquals, "Jane", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(&Assertion{Subject: tt.subject, Operator: tt.operator, Expected: tt.expected})
			assert.Equal(t, tt.passed, result.Passed, "Message: %s", result.Message)
		})
	}
}

func TestEvaluator_JSONOnPlainOutput(t *testing.T) {
	e := NewEvaluator(createOutput(0, "not json"))
	result := e.Evaluate(&Assertion{Subject: "json.id", Operator: OpExists})
	assert.False(t, result.Passed)
	assert.Equal(t, "stdout is not JSON", result.Message)
}

func TestEvaluator_Text(t *testing.T) {
	e := NewEvaluator(createOutput(0, "hello world\nsecond line\n"))

	tests := []struct {
		name     string
		subject  string
		operator Operator
		expected any
		passed   bool
	}{
		{"contains", "stdout", OpContains, "world", true},
		{"not contains", "stdout", OpNotContains, "mars", true},
		{"starts with", "stdout", OpStartsWith, "hello", true},
		{"ends with", "stdout", OpEndsWith, "line\n", true},
		{"matches", "stdout", OpMatches, "/^hello \\w+/", true},
		{"invalid regex", "stdout", OpMatches, "[", false},
		{"stderr", "stderr", OpContains, "warning", true},
		{"line count", "lines", OpLength, 2, true},
		{"each line", "lines", OpEach, map[string]any{"op": "contains", "value": "l"}, true},
		{"each line fails", "lines", OpEach, map[string]any{"op": "startsWith", "value": "hello"}, false},
		{"exit code in set", "exitCode", OpIn, []any{0, 3}, true},
		{"exit code not in set", "exitCode", OpNotIn, []any{1, 2}, true},
		{"duration under budget", "duration", OpLessThan, 500, true},
		{"non numeric comparison", "stdout", OpGreaterThan, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(&Assertion{Subject: tt.subject, Operator: tt.operator, Expected: tt.expected})
			assert.Equal(t, tt.passed, result.Passed, "Message: %s", result.Message)
		})
	}
}

func TestEvaluator_UnknownSubject(t *testing.T) {
	e := NewEvaluator(createOutput(0, ""))
	result := e.Evaluate(&Assertion{Subject: "status", Operator: OpEquals, Expected: 200})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Message, "unknown subject")
}

func TestEvaluator_Schema(t *testing.T) {
	tmpDir := t.TempDir()
	schema := `{
		"type": "object",
		"required": ["name", "email"],
		"properties": {
			"name": {"type": "string"},
			"email": {"type": "string"}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "user.schema.json"), []byte(schema), 0644))

	t.Run("valid document", func(t *testing.T) {
		e := NewEvaluatorWithBaseDir(createOutput(0, `{"name": "John", "email": "john@example.com"}`), tmpDir)
		result := e.Evaluate(&Assertion{Subject: "json", Operator: OpSchema, Expected: "user.schema.json"})
		assert.True(t, result.Passed, "Message: %s", result.Message)
	})

	t.Run("missing field", func(t *testing.T) {
		e := NewEvaluatorWithBaseDir(createOutput(0, `{"name": "John"}`), tmpDir)
		result := e.Evaluate(&Assertion{Subject: "json", Operator: OpSchema, Expected: "user.schema.json"})
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "schema validation failed")
	})

	t.Run("path traversal", func(t *testing.T) {
		e := NewEvaluatorWithBaseDir(createOutput(0, `{}`), tmpDir)
		result := e.Evaluate(&Assertion{Subject: "json", Operator: OpSchema, Expected: "../../../etc/passwd"})
		assert.False(t, result.Passed)
		assert.Contains(t, result.Message, "path traversal")
	})
}

func TestEvaluateAllAndFailed(t *testing.T) {
	out := createOutput(0, `{"status": "ok", "count": 5}`)

	results := EvaluateAll(out, []*Assertion{
		{Subject: "exitCode", Operator: OpEquals, Expected: 0},
		{Subject: "json.status", Operator: OpEquals, Expected: "ok"},
		{Subject: "json.count", Operator: OpGreaterThan, Expected: 10},
	})

	require.Len(t, results, 3)
	failed := Failed(results)
	require.Len(t, failed, 1)
	assert.Equal(t, "json.count > 10: expected 5 > 10", failed[0].String())
}

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in      string
		want    Operator
		wantErr bool
	}{
		{"", OpEquals, false},
		{"==", OpEquals, false},
		{"equals", OpEquals, false},
		{"!contains", OpNotContains, false},
		{"notContains", OpNotContains, false},
		{"schema", OpSchema, false},
		{"~=", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOperator(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidatePathWithinBase(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		baseDir string
		wantErr bool
	}{
		{"path within base", "/home/user/project/schema.json", "/home/user/project", false},
		{"path traversal", "/home/user/project/../../../etc/passwd", "/home/user/project", true},
		{"empty base", "/any/path", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePathWithinBase(tt.path, tt.baseDir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluator_Value(t *testing.T) {
	e := NewEvaluator(createOutput(3, `{"token": "abc"}`))

	v, err := e.Value("json.token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	v, err = e.Value("exitCode")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = e.Value("nope")
	assert.Error(t, err)
}

package assertions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// Output is what a suite command produced.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// DurationMs returns the duration in milliseconds
func (o *Output) DurationMs() int64 {
	return o.Duration.Milliseconds()
}

// Assertion is one check against an Output.
type Assertion struct {
	Subject  string
	Operator Operator
	Expected any
}

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

func (r *Result) String() string {
	if r.Passed {
		return fmt.Sprintf("%s %s %v", r.Subject, r.Operator, r.Expected)
	}
	return fmt.Sprintf("%s %s %v: %s", r.Subject, r.Operator, r.Expected, r.Message)
}

type Evaluator struct {
	output   *Output
	stdoutJS gjson.Result
	isJSON   bool
	baseDir  string // Base directory for resolving schema file paths
}

func NewEvaluator(out *Output) *Evaluator {
	return NewEvaluatorWithBaseDir(out, "")
}

func NewEvaluatorWithBaseDir(out *Output, baseDir string) *Evaluator {
	e := &Evaluator{
		output:  out,
		baseDir: baseDir,
	}
	if trimmed := strings.TrimSpace(out.Stdout); trimmed != "" && gjson.Valid(trimmed) {
		e.stdoutJS = gjson.Parse(trimmed)
		e.isJSON = true
	}
	return e
}

func (e *Evaluator) Evaluate(assertion *Assertion) *Result {
	result := &Result{
		Subject:  assertion.Subject,
		Operator: assertion.Operator.String(),
		Expected: assertion.Expected,
	}

	actual, err := e.getActualValue(assertion.Subject)
	if err != nil {
		result.Passed = false
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	passed, msg := e.compare(actual, assertion.Operator, assertion.Expected)
	result.Passed = passed
	result.Message = msg

	// For length operator, show the computed length as the actual value
	if assertion.Operator == OpLength {
		result.Actual = computeLength(actual)
	}

	return result
}

// Value returns the value a subject refers to.
func (e *Evaluator) Value(subject string) (any, error) {
	return e.getActualValue(subject)
}

func (e *Evaluator) getActualValue(subject string) (any, error) {
	switch {
	case subject == "exitCode":
		return e.output.ExitCode, nil
	case subject == "duration":
		return e.output.DurationMs(), nil
	case subject == "stdout":
		return e.output.Stdout, nil
	case subject == "stderr":
		return e.output.Stderr, nil
	case subject == "lines":
		return splitLines(e.output.Stdout), nil
	case subject == "json", strings.HasPrefix(subject, "json."):
		return e.getJSONValue(strings.TrimPrefix(strings.TrimPrefix(subject, "json"), "."))
	default:
		return nil, fmt.Errorf("unknown subject: %s", subject)
	}
}

func splitLines(s string) []any {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []any{}
	}
	parts := strings.Split(s, "\n")
	lines := make([]any, len(parts))
	for i, p := range parts {
		lines[i] = strings.TrimSuffix(p, "\r")
	}
	return lines
}

// convertBracketNotation converts array bracket notation to gjson dot notation
// e.g., "[0].id" -> "0.id", "items[0].tags[1]" -> "items.0.tags.1"
func convertBracketNotation(path string) string {
	result := regexp.MustCompile(`\[(\d+)\]`).ReplaceAllString(path, ".$1")
	return strings.TrimPrefix(result, ".")
}

func (e *Evaluator) getJSONValue(path string) (any, error) {
	if !e.isJSON {
		return nil, errors.New("stdout is not JSON")
	}
	if path == "" {
		return e.stdoutJS.Value(), nil
	}
	result := e.stdoutJS.Get(convertBracketNotation(path))
	if !result.Exists() {
		return nil, nil
	}
	return result.Value(), nil
}

func negate(passed bool, msg string) (bool, string) {
	if passed {
		return false, msg
	}
	return true, ""
}

func (e *Evaluator) compare(actual any, op Operator, expected any) (bool, string) {
	switch op {
	case OpEquals:
		return e.equals(actual, expected)
	case OpNotEquals:
		passed, _ := e.equals(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to equal %v", expected))
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return e.compareNumeric(actual, expected, op.String())
	case OpContains:
		return e.contains(actual, expected)
	case OpNotContains:
		passed, _ := e.contains(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to contain %v", expected))
	case OpStartsWith:
		return e.startsWith(actual, expected)
	case OpEndsWith:
		return e.endsWith(actual, expected)
	case OpMatches:
		return e.matches(actual, expected)
	case OpExists:
		return e.exists(actual)
	case OpNotExists:
		passed, _ := e.exists(actual)
		return negate(passed, "expected not to exist")
	case OpLength:
		return e.length(actual, expected)
	case OpIncludes:
		return e.includes(actual, expected)
	case OpNotIncludes:
		passed, _ := e.includes(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to include %v", expected))
	case OpIn:
		return e.in(actual, expected)
	case OpNotIn:
		passed, _ := e.in(actual, expected)
		return negate(passed, fmt.Sprintf("expected not to be in %v", expected))
	case OpType:
		return e.typeCheck(actual, expected)
	case OpSchema:
		return e.schema(actual, expected)
	case OpEach:
		return e.each(actual, expected)
	default:
		return false, fmt.Sprintf("unknown operator: %v", op)
	}
}

func (e *Evaluator) equals(actual, expected any) (bool, string) {
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}

	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if aOk && eOk && actualNum == expectedNum {
		return true, ""
	}

	if fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected) {
		return true, ""
	}

	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func (e *Evaluator) compareNumeric(actual, expected any, op string) (bool, string) {
	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)

	if !aOk || !eOk {
		return false, fmt.Sprintf("cannot compare non-numeric values: %v %s %v", actual, op, expected)
	}

	var passed bool
	switch op {
	case ">":
		passed = actualNum > expectedNum
	case ">=":
		passed = actualNum >= expectedNum
	case "<":
		passed = actualNum < expectedNum
	case "<=":
		passed = actualNum <= expectedNum
	}

	if passed {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v %s %v", actual, op, expected)
}

func (e *Evaluator) contains(actual, expected any) (bool, string) {
	if strings.Contains(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to contain '%v'", actual, expected)
}

func (e *Evaluator) startsWith(actual, expected any) (bool, string) {
	if strings.HasPrefix(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to start with '%v'", actual, expected)
}

func (e *Evaluator) endsWith(actual, expected any) (bool, string) {
	if strings.HasSuffix(fmt.Sprintf("%v", actual), fmt.Sprintf("%v", expected)) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to end with '%v'", actual, expected)
}

func (e *Evaluator) matches(actual, expected any) (bool, string) {
	actualStr := fmt.Sprintf("%v", actual)
	pattern := fmt.Sprintf("%v", expected)

	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}

	if re.MatchString(actualStr) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%v' to match /%v/", actual, pattern)
}

func (e *Evaluator) exists(actual any) (bool, string) {
	if actual == nil {
		return false, "expected to exist"
	}
	return true, ""
}

// computeLength returns the length of a value, or -1 if length cannot be computed
func computeLength(actual any) int {
	switch v := actual.(type) {
	case string:
		return len(v)
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		rv := reflect.ValueOf(actual)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len()
		default:
			return -1
		}
	}
}

func (e *Evaluator) length(actual, expected any) (bool, string) {
	expectedLen, ok := toInt(expected)
	if !ok {
		return false, fmt.Sprintf("expected length must be a number, got %v", expected)
	}

	actualLen := computeLength(actual)
	if actualLen == -1 {
		return false, fmt.Sprintf("cannot get length of %T", actual)
	}

	if actualLen == expectedLen {
		return true, ""
	}
	return false, fmt.Sprintf("expected length %d, got %d", expectedLen, actualLen)
}

func (e *Evaluator) includes(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array, got %T", actual)
	}

	for _, item := range arr {
		if passed, _ := e.equals(item, expected); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected array to include %v", expected)
}

func (e *Evaluator) in(actual, expected any) (bool, string) {
	arr, ok := expected.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'in' operator, got %T", expected)
	}

	for _, item := range arr {
		if passed, _ := e.equals(actual, item); passed {
			return true, ""
		}
	}
	return false, fmt.Sprintf("expected %v to be in %v", actual, expected)
}

func (e *Evaluator) typeCheck(actual, expected any) (bool, string) {
	expectedType := fmt.Sprintf("%v", expected)
	var actualType string

	switch actual.(type) {
	case nil:
		actualType = "null"
	case bool:
		actualType = "boolean"
	case float64, float32, int, int64, int32:
		actualType = "number"
	case string:
		actualType = "string"
	case []any:
		actualType = "array"
	case map[string]any:
		actualType = "object"
	default:
		actualType = reflect.TypeOf(actual).String()
	}

	if actualType == expectedType {
		return true, ""
	}
	return false, fmt.Sprintf("expected type %s, got %s", expectedType, actualType)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

func EvaluateAll(out *Output, assertions []*Assertion) []*Result {
	return EvaluateAllWithBaseDir(out, assertions, "")
}

func EvaluateAllWithBaseDir(out *Output, assertions []*Assertion, baseDir string) []*Result {
	evaluator := NewEvaluatorWithBaseDir(out, baseDir)
	results := make([]*Result, len(assertions))
	for i, a := range assertions {
		results[i] = evaluator.Evaluate(a)
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []*Result) []*Result {
	var failed []*Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// validatePathWithinBase checks that the resolved path stays within the base directory
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}

func (e *Evaluator) schema(actual, expected any) (bool, string) {
	schemaPath := fmt.Sprintf("%v", expected)

	if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
		schemaPath = filepath.Join(e.baseDir, schemaPath)
	}

	if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
		return false, err.Error()
	}

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return false, fmt.Sprintf("failed to read schema file: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return false, fmt.Sprintf("failed to marshal actual value: %v", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaData), gojsonschema.NewBytesLoader(actualJSON))
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}

	if result.Valid() {
		return true, ""
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(errs, "; "))
}

// each applies expected to every element of an array. expected is either a
// plain value compared for equality or a map with "op" and "value" keys.
func (e *Evaluator) each(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'each' operator, got %T", actual)
	}

	op := OpEquals
	want := expected
	if m, isMap := expected.(map[string]any); isMap {
		rawOp, hasOp := m["op"]
		val, hasVal := m["value"]
		if hasOp && hasVal {
			parsed, err := ParseOperator(fmt.Sprintf("%v", rawOp))
			if err != nil || parsed == OpEach || parsed == OpSchema {
				return false, fmt.Sprintf("unsupported operator in each: %v", rawOp)
			}
			op, want = parsed, val
		}
	}

	for i, item := range arr {
		if passed, msg := e.compare(item, op, want); !passed {
			return false, fmt.Sprintf("item[%d]: %s", i, msg)
		}
	}
	return true, ""
}

package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/acarl005/stripansi"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	RunID      string         `json:"runId,omitempty"`
	Time       string         `json:"time"`
	Duration   float64        `json:"duration"`
	Successful bool           `json:"successful"`
	Summary    JSONSummary    `json:"summary"`
	Labels     map[string]int `json:"labels,omitempty"`
	Blocked    []JSONBlocked  `json:"blocked,omitempty"`
	Tests      []JSONTest     `json:"tests"`
}

// JSONBlocked is one blocked context, as the text report groups it.
type JSONBlocked struct {
	Label   string   `json:"label"`
	Context string   `json:"context"`
	Tests   []string `json:"tests"`
	Error   string   `json:"error"`
}

// JSONSummary represents the test summary
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
	Blocked int `json:"blocked"`
}

// JSONTest represents a single classified outcome
type JSONTest struct {
	ID             string  `json:"id"`
	Suite          string  `json:"suite"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Status         string  `json:"status"`
	Label          string  `json:"label"`
	Category       string  `json:"category,omitempty"`
	Failing        bool    `json:"failing"`
	Duration       float64 `json:"duration"`
	Reason         string  `json:"reason,omitempty"`
	Context        string  `json:"context,omitempty"`
	Error          string  `json:"error,omitempty"`
	CapturedOutput string  `json:"capturedOutput,omitempty"`
}

// JSONFormatter formats a run as one indented JSON document.
type JSONFormatter struct {
	settings
}

func NewJSONFormatter(opts ...Option) *JSONFormatter {
	return &JSONFormatter{settings: newSettings(opts)}
}

func (f *JSONFormatter) Name() string      { return "json" }
func (f *JSONFormatter) Extension() string { return ".json" }

// Build assembles the document without writing it.
func (f *JSONFormatter) Build(a *result.Aggregator) JSONOutput {
	cases := testCases(a.Records())
	t := count(cases)

	out := JSONOutput{
		RunID:      f.runID,
		Time:       f.now().Format(time.RFC3339),
		Duration:   float64(t.Duration.Milliseconds()),
		Successful: a.WasSuccessful(),
		Summary: JSONSummary{
			Total:   t.Total,
			Passed:  t.Passed,
			Failed:  t.Failed,
			Errors:  t.Errors,
			Skipped: t.Skipped,
			Blocked: t.Blocked,
		},
		Tests: make([]JSONTest, 0, len(cases)),
	}
	if labels := a.Summary(); len(labels) > 0 {
		out.Labels = labels
	}
	out.Blocked = blockedGroups(a)

	for _, c := range cases {
		out.Tests = append(out.Tests, JSONTest{
			ID:             c.ID,
			Suite:          c.Suite,
			Name:           c.Name,
			Description:    c.Description,
			Status:         c.Status,
			Label:          c.Label,
			Category:       c.Category,
			Failing:        c.Failing,
			Duration:       float64(c.Duration.Milliseconds()),
			Reason:         c.Reason,
			Context:        c.Context,
			Error:          c.Detail,
			CapturedOutput: c.Output,
		})
	}
	return out
}

// Report writes the JSON document.
func (f *JSONFormatter) Report(w io.Writer, a *result.Aggregator) error {
	encoder := json.NewEncoder(f.target(w))
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.Build(a))
}

// blockedGroups groups blocked outcomes by label then context, in first-seen
// order. The last error reported for a context wins.
func blockedGroups(a *result.Aggregator) []JSONBlocked {
	var groups []JSONBlocked
	for _, label := range a.BlockedLabels() {
		index := make(map[string]int)
		for _, e := range a.Blocked(label) {
			i, ok := index[e.Context]
			if !ok {
				i = len(groups)
				index[e.Context] = i
				groups = append(groups, JSONBlocked{Label: label, Context: e.Context})
			}
			groups[i].Tests = append(groups[i].Tests, e.Test.ID())
			groups[i].Error = stripansi.Strip(e.Info.Detail())
		}
	}
	return groups
}

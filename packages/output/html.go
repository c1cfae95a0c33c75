package output

import (
	"fmt"
	"html/template"
	"io"

	"github.com/abdul-hamid-achik/tally/packages/result"
)

// HTMLOutput is the data rendered by the report template.
type HTMLOutput struct {
	RunID          string
	Time           string
	Duration       float64
	Successful     bool
	Summary        JSONSummary
	Tests          []HTMLTest
	PassedPercent  float64
	FailedPercent  float64
	SkippedPercent float64
}

// HTMLTest represents a single outcome for HTML output
type HTMLTest struct {
	ID          string
	Description string
	Status      string
	Label       string
	StatusClass string
	Duration    float64
	Context     string
	Reason      string
	Detail      string
	Output      string
}

// HTMLFormatter formats a run as a standalone HTML page
type HTMLFormatter struct {
	settings
}

func NewHTMLFormatter(opts ...Option) *HTMLFormatter {
	return &HTMLFormatter{settings: newSettings(opts)}
}

func (f *HTMLFormatter) Name() string      { return "html" }
func (f *HTMLFormatter) Extension() string { return ".html" }

func statusClass(c testCase) string {
	switch {
	case c.Kind == result.KindSuccess:
		return "passed"
	case c.Kind == result.KindBlocked:
		return "blocked"
	case c.Failing:
		return "failed"
	default:
		return "skipped"
	}
}

// Build assembles the template data.
func (f *HTMLFormatter) Build(a *result.Aggregator) HTMLOutput {
	cases := testCases(a.Records())
	t := count(cases)

	out := HTMLOutput{
		RunID:      f.runID,
		Time:       f.now().Format("2006-01-02 15:04:05"),
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
	}
	if t.Total > 0 {
		out.PassedPercent = float64(t.Passed) / float64(t.Total) * 100
		out.FailedPercent = float64(t.Failed+t.Errors+t.Blocked) / float64(t.Total) * 100
		out.SkippedPercent = float64(t.Skipped) / float64(t.Total) * 100
	}
	for _, c := range cases {
		out.Tests = append(out.Tests, HTMLTest{
			ID:          c.ID,
			Description: c.Description,
			Status:      c.Status,
			Label:       c.Label,
			StatusClass: statusClass(c),
			Duration:    float64(c.Duration.Milliseconds()),
			Context:     c.Context,
			Reason:      c.Reason,
			Detail:      c.Detail,
			Output:      c.Output,
		})
	}
	return out
}

var reportTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// Report renders the HTML page.
func (f *HTMLFormatter) Report(w io.Writer, a *result.Aggregator) error {
	if err := reportTemplate.Execute(f.target(w), f.Build(a)); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>tally report{{if .RunID}} {{.RunID}}{{end}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0.2rem; }
.meta { color: #666; margin-bottom: 1rem; }
.bar { display: flex; height: 10px; border-radius: 5px; overflow: hidden; margin-bottom: 1.5rem; background: #eee; }
.bar .passed { background: #2da44e; }
.bar .failed { background: #cf222e; }
.bar .skipped { background: #d4a72c; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid #eee; vertical-align: top; }
tr.passed td.status { color: #2da44e; }
tr.failed td.status, tr.blocked td.status { color: #cf222e; }
tr.skipped td.status { color: #9a6700; }
pre { background: #f6f8fa; padding: 0.6rem; overflow-x: auto; margin: 0.3rem 0; }
</style>
</head>
<body>
<h1>{{if .Successful}}OK{{else}}FAILED{{end}}</h1>
<div class="meta">{{.Time}} &middot; {{.Summary.Total}} tests in {{printf "%.0f" .Duration}}ms &middot;
passed {{.Summary.Passed}}, failed {{.Summary.Failed}}, errors {{.Summary.Errors}}, skipped {{.Summary.Skipped}}, blocked {{.Summary.Blocked}}</div>
<div class="bar">
<div class="passed" style="width: {{printf "%.1f" .PassedPercent}}%"></div>
<div class="failed" style="width: {{printf "%.1f" .FailedPercent}}%"></div>
<div class="skipped" style="width: {{printf "%.1f" .SkippedPercent}}%"></div>
</div>
<table>
<thead><tr><th>Test</th><th>Status</th><th>Duration</th><th>Detail</th></tr></thead>
<tbody>
{{range .Tests}}<tr class="{{.StatusClass}}">
<td>{{.ID}}{{if .Description}}<br><small>{{.Description}}</small>{{end}}</td>
<td class="status">{{.Label}}</td>
<td>{{printf "%.0f" .Duration}}ms</td>
<td>{{if .Context}}<div>blocked by {{.Context}}</div>{{end}}{{if .Reason}}<div>{{.Reason}}</div>{{end}}{{if .Detail}}<pre>{{.Detail}}</pre>{{end}}{{if .Output}}<details><summary>captured stdout</summary><pre>{{.Output}}</pre></details>{{end}}</td>
</tr>
{{end}}</tbody>
</table>
</body>
</html>
`

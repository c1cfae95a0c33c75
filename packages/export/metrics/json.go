package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// JSONExporter writes one JSON document per run to a writer, a file, or both.
type JSONExporter struct {
	writer    io.Writer
	filePath  string
	pretty    bool
	metrics   []*TestMetrics
	startTime time.Time
	now       func() time.Time
}

// JSONOption configures a JSONExporter.
type JSONOption func(*JSONExporter)

func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) { j.writer = w }
}

func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) { j.filePath = path }
}

// WithJSONPretty toggles indentation. Output is indented by default.
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) { j.pretty = pretty }
}

// WithJSONStartTime sets when the run started. Defaults to exporter creation.
func WithJSONStartTime(t time.Time) JSONOption {
	return func(j *JSONExporter) { j.startTime = t }
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{startTime: time.Now(), pretty: true, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JSONMetricsOutput is the document the exporter writes.
type JSONMetricsOutput struct {
	Metadata    JSONMetadata      `json:"metadata"`
	Summary     *AggregateMetrics `json:"summary"`
	Suites      []SuiteMetrics    `json:"suites"`
	TestResults []*TestMetrics    `json:"test_results"`
}

type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Duration    string `json:"duration"`
	Version     string `json:"version"`
}

// SuiteMetrics rolls the test results of one suite up.
type SuiteMetrics struct {
	Name       string  `json:"name"`
	Tests      int     `json:"tests"`
	Passed     int     `json:"passed"`
	Failing    int     `json:"failing"`
	DurationMs float64 `json:"duration_ms"`
}

func (j *JSONExporter) Export(metrics *AggregateMetrics) error {
	end := j.now()
	doc := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: end.Format(time.RFC3339),
			StartTime:   j.startTime.Format(time.RFC3339),
			EndTime:     end.Format(time.RFC3339),
			Duration:    end.Sub(j.startTime).String(),
			Version:     "1.0",
		},
		Summary:     metrics,
		Suites:      suiteRollup(j.metrics),
		TestResults: j.metrics,
	}
	if doc.TestResults == nil {
		doc.TestResults = []*TestMetrics{}
	}

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// ExportSingle buffers a test result until Export.
func (j *JSONExporter) ExportSingle(metric *TestMetrics) error {
	j.metrics = append(j.metrics, metric)
	return nil
}

func (j *JSONExporter) Close() error { return nil }

// suiteRollup groups results by suite, sorted by suite name.
func suiteRollup(results []*TestMetrics) []SuiteMetrics {
	bySuite := make(map[string]*SuiteMetrics)
	for _, m := range results {
		s, ok := bySuite[m.Suite]
		if !ok {
			s = &SuiteMetrics{Name: m.Suite}
			bySuite[m.Suite] = s
		}
		s.Tests++
		s.DurationMs += m.DurationMs
		if m.Passed {
			s.Passed++
		}
		if m.Failing {
			s.Failing++
		}
	}

	out := make([]SuiteMetrics, 0, len(bySuite))
	for _, s := range bySuite {
		out = append(out, *s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

package metrics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/result"
)

// TestMetrics represents the metrics of one classified outcome
type TestMetrics struct {
	TestName   string    `json:"test_name"`
	Suite      string    `json:"suite"`
	Status     string    `json:"status"`
	Label      string    `json:"label"`
	DurationMs float64   `json:"duration_ms"`
	Passed     bool      `json:"passed"`
	Failing    bool      `json:"failing"`
	Timestamp  time.Time `json:"timestamp"`
}

// AggregateMetrics represents aggregated metrics of a run
type AggregateMetrics struct {
	RunID           string                    `json:"run_id,omitempty"`
	TotalTests      int64                     `json:"total_tests"`
	SuccessCount    int64                     `json:"success_count"`
	FailureCount    int64                     `json:"failure_count"`
	SkippedCount    int64                     `json:"skipped_count"`
	BlockedCount    int64                     `json:"blocked_count"`
	Successful      bool                      `json:"successful"`
	TotalDurationMs float64                   `json:"total_duration_ms"`
	MinDurationMs   float64                   `json:"min_duration_ms"`
	MaxDurationMs   float64                   `json:"max_duration_ms"`
	AvgDurationMs   float64                   `json:"avg_duration_ms"`
	P50DurationMs   float64                   `json:"p50_duration_ms"`
	P95DurationMs   float64                   `json:"p95_duration_ms"`
	P99DurationMs   float64                   `json:"p99_duration_ms"`
	Labels          map[string]int64          `json:"labels"`
	ByTest          map[string]*TestAggregate `json:"by_test"`
}

// TestAggregate represents aggregated metrics for a single test
type TestAggregate struct {
	Name          string  `json:"name"`
	Runs          int64   `json:"runs"`
	SuccessCount  int64   `json:"success_count"`
	FailureCount  int64   `json:"failure_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MinDurationMs float64 `json:"min_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *AggregateMetrics) error

	// ExportSingle exports a single test metric
	ExportSingle(metric *TestMetrics) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Collector collects metrics from test runs
type Collector struct {
	metrics   []*TestMetrics
	aggregate *AggregateMetrics
	exporters []Exporter
	now       func() time.Time
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		metrics:   make([]*TestMetrics, 0),
		exporters: exporters,
		aggregate: newAggregate(),
		now:       time.Now,
	}
}

func newAggregate() *AggregateMetrics {
	return &AggregateMetrics{
		Successful: true,
		Labels:     make(map[string]int64),
		ByTest:     make(map[string]*TestAggregate),
	}
}

// Observe records every outcome of a finished run and takes the duration
// percentiles from the aggregator's histogram.
func (c *Collector) Observe(a *result.Aggregator, runID string) {
	c.aggregate.RunID = runID
	now := c.now()
	for _, r := range a.Records() {
		c.Record(FromRecord(r, now))
	}
	if a.TestsRun() > 0 {
		c.aggregate.P50DurationMs = ms(a.Percentile(50))
		c.aggregate.P95DurationMs = ms(a.Percentile(95))
		c.aggregate.P99DurationMs = ms(a.Percentile(99))
	}
	c.aggregate.Successful = a.WasSuccessful()
}

// FromRecord converts one classified outcome.
func FromRecord(r result.Record, at time.Time) *TestMetrics {
	suite := ""
	if i := strings.LastIndex(r.Test.ID(), "::"); i >= 0 {
		suite = r.Test.ID()[:i]
	}
	return &TestMetrics{
		TestName:   r.Test.ID(),
		Suite:      suite,
		Status:     r.Kind.String(),
		Label:      r.Label,
		DurationMs: ms(r.Duration),
		Passed:     r.Kind == result.KindSuccess,
		Failing:    r.Failing,
		Timestamp:  at,
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Record records a test metric
func (c *Collector) Record(m *TestMetrics) {
	c.metrics = append(c.metrics, m)
	c.updateAggregate(m)

	for _, exp := range c.exporters {
		_ = exp.ExportSingle(m)
	}
}

func (c *Collector) updateAggregate(m *TestMetrics) {
	c.aggregate.TotalTests++
	c.aggregate.Labels[m.Label]++

	switch {
	case m.Passed:
		c.aggregate.SuccessCount++
	case m.Status == result.KindBlocked.String():
		c.aggregate.BlockedCount++
	case m.Failing:
		c.aggregate.FailureCount++
	default:
		c.aggregate.SkippedCount++
	}
	if m.Failing {
		c.aggregate.Successful = false
	}

	// blocked tests never ran; their zero duration would skew the figures
	if m.Status == result.KindBlocked.String() {
		return
	}
	ran := c.aggregate.SuccessCount + c.aggregate.FailureCount + c.aggregate.SkippedCount
	c.aggregate.TotalDurationMs += m.DurationMs
	if ran == 1 {
		c.aggregate.MinDurationMs = m.DurationMs
		c.aggregate.MaxDurationMs = m.DurationMs
	} else {
		c.aggregate.MinDurationMs = min(c.aggregate.MinDurationMs, m.DurationMs)
		c.aggregate.MaxDurationMs = max(c.aggregate.MaxDurationMs, m.DurationMs)
	}
	c.aggregate.AvgDurationMs = c.aggregate.TotalDurationMs / float64(ran)

	ta, ok := c.aggregate.ByTest[m.TestName]
	if !ok {
		ta = &TestAggregate{
			Name:          m.TestName,
			MinDurationMs: m.DurationMs,
			MaxDurationMs: m.DurationMs,
		}
		c.aggregate.ByTest[m.TestName] = ta
	}
	ta.Runs++
	if m.Failing {
		ta.FailureCount++
	} else if m.Passed {
		ta.SuccessCount++
	}
	ta.MinDurationMs = min(ta.MinDurationMs, m.DurationMs)
	ta.MaxDurationMs = max(ta.MaxDurationMs, m.DurationMs)
	ta.AvgDurationMs = (ta.AvgDurationMs*float64(ta.Runs-1) + m.DurationMs) / float64(ta.Runs)
}

// Metrics returns the recorded per-test metrics.
func (c *Collector) Metrics() []*TestMetrics {
	return c.metrics
}

// GetAggregate returns the aggregated metrics
func (c *Collector) GetAggregate() *AggregateMetrics {
	return c.aggregate
}

// Flush exports all aggregated metrics. Every exporter is tried.
func (c *Collector) Flush() error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Export(c.aggregate); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters
func (c *Collector) Close() error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Formats lists the exporter names accepted by NewExporter.
var Formats = []string{"json", "prometheus", "datadog"}

// NewExporter creates the exporter for format. A non-empty file takes
// precedence over w for formats that write locally.
func NewExporter(format, file string, w io.Writer) (Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		if file != "" {
			return NewJSONExporter(WithJSONFile(file)), nil
		}
		return NewJSONExporter(WithJSONWriter(w)), nil
	case "prometheus", "prom":
		if file != "" {
			return NewPrometheusExporter(WithPrometheusTextfile(file)), nil
		}
		return NewPrometheusExporter(WithPrometheusWriter(w)), nil
	case "datadog":
		return NewDataDogExporter(), nil
	default:
		return nil, fmt.Errorf("unknown metrics format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

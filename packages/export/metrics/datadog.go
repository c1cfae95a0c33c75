package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"
)

// DataDogExporter exports metrics to the DataDog series API
type DataDogExporter struct {
	apiKey  string
	site    string // e.g., "datadoghq.com", "datadoghq.eu"
	url     string
	tags    []string
	prefix  string
	client  *http.Client
	pending []datadogMetric
	now     func() time.Time
}

// DataDogOption is a functional option for DataDogExporter
type DataDogOption func(*DataDogExporter)

// WithDataDogAPIKey sets the DataDog API key
func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the DataDog site (e.g., "datadoghq.com", "datadoghq.eu")
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogURL overrides the series endpoint derived from the site.
func WithDataDogURL(url string) DataDogOption {
	return func(d *DataDogExporter) {
		d.url = url
	}
}

// WithDataDogTags sets additional tags for all metrics
func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

// WithDataDogPrefix sets a prefix for metric names
func WithDataDogPrefix(prefix string) DataDogOption {
	return func(d *DataDogExporter) {
		d.prefix = prefix
	}
}

// NewDataDogExporter creates a new DataDog metrics exporter. The API key
// falls back to DD_API_KEY.
func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:   "datadoghq.com",
		prefix: "tally",
		client: &http.Client{Timeout: 10 * time.Second},
		tags:   make([]string, 0),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	if d.url == "" {
		d.url = fmt.Sprintf("https://api.%s/api/v1/series", d.site)
	}

	return d
}

// datadogMetric represents a metric in DataDog format
type datadogMetric struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
}

// datadogPayload is the payload sent to DataDog
type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

func (d *DataDogExporter) point(name, kind string, at time.Time, value float64, tags ...string) datadogMetric {
	return datadogMetric{
		Metric: d.prefix + "." + name,
		Type:   kind,
		Points: [][]any{{float64(at.Unix()), value}},
		Tags:   append(append([]string(nil), tags...), d.tags...),
	}
}

// Export sends the aggregate together with the buffered per-test series in
// one request.
func (d *DataDogExporter) Export(metrics *AggregateMetrics) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}

	now := d.now()
	var runTags []string
	if metrics.RunID != "" {
		runTags = append(runTags, "run_id:"+metrics.RunID)
	}

	series := []datadogMetric{
		d.point("tests.total", "count", now, float64(metrics.TotalTests), runTags...),
		d.point("tests.passed", "count", now, float64(metrics.SuccessCount), runTags...),
		d.point("tests.failed", "count", now, float64(metrics.FailureCount), runTags...),
		d.point("tests.skipped", "count", now, float64(metrics.SkippedCount), runTags...),
		d.point("tests.blocked", "count", now, float64(metrics.BlockedCount), runTags...),
		d.point("duration.avg", "gauge", now, metrics.AvgDurationMs, runTags...),
		d.point("duration.min", "gauge", now, metrics.MinDurationMs, runTags...),
		d.point("duration.max", "gauge", now, metrics.MaxDurationMs, runTags...),
	}
	if metrics.P50DurationMs > 0 {
		series = append(series, d.point("duration.p50", "gauge", now, metrics.P50DurationMs, runTags...))
	}
	if metrics.P95DurationMs > 0 {
		series = append(series, d.point("duration.p95", "gauge", now, metrics.P95DurationMs, runTags...))
	}
	if metrics.P99DurationMs > 0 {
		series = append(series, d.point("duration.p99", "gauge", now, metrics.P99DurationMs, runTags...))
	}

	labels := make([]string, 0, len(metrics.Labels))
	for label := range metrics.Labels {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		tags := append([]string{"label:" + label}, runTags...)
		series = append(series, d.point("tests.by_label", "count", now, float64(metrics.Labels[label]), tags...))
	}

	series = append(series, d.pending...)
	if err := d.sendMetrics(series); err != nil {
		return err
	}
	d.pending = nil
	return nil
}

// ExportSingle buffers the series of one test until Export.
func (d *DataDogExporter) ExportSingle(metric *TestMetrics) error {
	tags := []string{
		"test:" + metric.TestName,
		"status:" + metric.Status,
		"label:" + metric.Label,
	}
	if metric.Suite != "" {
		tags = append(tags, "suite:"+metric.Suite)
	}
	d.pending = append(d.pending,
		d.point("test.duration", "gauge", metric.Timestamp, metric.DurationMs, tags...),
		d.point("test.count", "count", metric.Timestamp, 1, tags...),
	)
	return nil
}

func (d *DataDogExporter) sendMetrics(series []datadogMetric) error {
	jsonData, err := json.Marshal(datadogPayload{Series: series})
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("DataDog API returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close closes the DataDog exporter
func (d *DataDogExporter) Close() error {
	return nil
}

package metrics

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// PrometheusExporter exports metrics through a dedicated Prometheus registry.
type PrometheusExporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry

	tests      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	quantiles  *prometheus.GaugeVec
	successful prometheus.Gauge
	lastRun    prometheus.Gauge

	writer   io.Writer
	textfile string
	addr     string
	server   *http.Server
	logger   *slog.Logger
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusTextfile writes the metrics to path on every export, for
// node_exporter's textfile collector.
func WithPrometheusTextfile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.textfile = path
	}
}

// WithPrometheusHTTP serves /metrics on addr until Close.
func WithPrometheusHTTP(addr string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.addr = addr
	}
}

func WithPrometheusLogger(l *slog.Logger) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.logger = l
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{
		registry: prometheus.NewRegistry(),
		logger:   slog.Default(),
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tally",
			Name:      "tests_total",
			Help:      "Classified test outcomes by status and label.",
		}, []string{"status", "label"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tally",
			Name:      "test_duration_seconds",
			Help:      "Duration of tests that ran, by suite.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"suite"}),
		quantiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tally",
			Name:      "run_duration_quantile_seconds",
			Help:      "Test duration quantiles of the last run.",
		}, []string{"quantile"}),
		successful: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tally",
			Name:      "run_successful",
			Help:      "1 when nothing counted against the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tally",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last exported run.",
		}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.registry.MustRegister(p.tests, p.duration, p.quantiles, p.successful, p.lastRun)

	if p.addr != "" {
		p.startHTTPServer()
	}

	return p
}

// Registry returns the registry the exporter's collectors live in.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusExporter) startHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	p.server = &http.Server{
		Addr:    p.addr,
		Handler: mux,
	}

	go func() {
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("prometheus endpoint stopped", "addr", p.addr, "err", err)
		}
	}()
}

// Export records the run-level gauges and writes the registry to the
// configured writer and textfile.
func (p *PrometheusExporter) Export(metrics *AggregateMetrics) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if metrics.Successful {
		p.successful.Set(1)
	} else {
		p.successful.Set(0)
	}
	p.lastRun.SetToCurrentTime()
	p.quantiles.WithLabelValues("0.5").Set(metrics.P50DurationMs / 1000)
	p.quantiles.WithLabelValues("0.95").Set(metrics.P95DurationMs / 1000)
	p.quantiles.WithLabelValues("0.99").Set(metrics.P99DurationMs / 1000)

	if p.writer != nil {
		if err := p.writeMetrics(p.writer); err != nil {
			return err
		}
	}
	if p.textfile != "" {
		if err := prometheus.WriteToTextfile(p.textfile, p.registry); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}
	return nil
}

// ExportSingle counts one outcome and observes its duration.
func (p *PrometheusExporter) ExportSingle(metric *TestMetrics) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tests.WithLabelValues(metric.Status, metric.Label).Inc()
	if metric.Status != "blocked" {
		p.duration.WithLabelValues(metric.Suite).Observe(metric.DurationMs / 1000)
	}
	return nil
}

func (p *PrometheusExporter) writeMetrics(w io.Writer) error {
	families, err := p.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	return nil
}

// Close shuts down the exporter
func (p *PrometheusExporter) Close() error {
	if p.server != nil {
		return p.server.Close()
	}
	return nil
}

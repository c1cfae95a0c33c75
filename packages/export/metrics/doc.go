// Package metrics turns a finished run into metrics and exports them.
//
// A Collector reads the aggregator's classified records, keeps per-test and
// aggregate figures, and hands them to its exporters: a JSON document, the
// Prometheus text exposition format (file, writer or a /metrics endpoint),
// or the DataDog series API.
package metrics

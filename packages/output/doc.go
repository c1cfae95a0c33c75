// Package output renders a finished run in machine-readable formats.
//
// Supported formats:
//   - JSON: one document with a summary and every classified outcome
//   - JUnit: JUnit XML for CI systems, one testsuite per suite
//   - TAP: Test Anything Protocol version 13 with YAML diagnostics
//   - HTML: a standalone report page
//
// Every formatter is a result.ReportHook, so it runs at the end of
// PrintErrors and reads the aggregator's records. Output captured for a
// failing test is included with ANSI escapes removed.
package output

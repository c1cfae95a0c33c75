// Package assertions checks the result of running a suite command.
//
// Supported subjects:
//   - exitCode, duration (milliseconds)
//   - stdout, stderr, lines (stdout split into lines)
//   - json and json.<path>: stdout parsed as JSON, queried with gjson paths
//
// Assertions support various operators: ==, contains, exists, matches,
// length, type, in, includes, each and schema (JSON Schema file).
package assertions

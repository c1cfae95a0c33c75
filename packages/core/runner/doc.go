// Package runner executes suite files and reports every test through a
// reporter.Reporter.
//
// It provides functionality for:
//   - Running suite commands through a shell with per-test timeouts
//   - Writing command stdout to the captured stream
//   - Suite setup and teardown commands and waiting for a service
//   - Evaluating expectations against the command's output
//   - Recording values for later tests and pacing tests with a rate limit
//
// Tests run sequentially; the reporter lifecycle is single-threaded.
package runner

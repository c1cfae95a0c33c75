// Package history keeps a SQLite record of finished runs.
//
// Each run stores its ID, start and stop times, how many tests ran, the
// verdict and the label counts of the summary line. The previous verdict
// drives recovery notifications; the list backs the history command.
package history

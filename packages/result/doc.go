// Package result aggregates per-test outcomes and renders the run report.
//
// An Aggregator receives outcome events from a runner, classifies each one
// into exactly one bucket (the generic error and failure buckets, the blocked
// buckets, or the storage of a registered category), keeps every test's
// passed flag in sync with that classification, and prints progress labels,
// the error listing, and the final summary line:
//
//	Ran 3 tests in 0.012s
//
//	FAILED (SKIP=1, failures=1)
//
// Categories registered as non-failing are listed in the summary but never
// affect WasSuccessful. Skips are always non-failing.
package result

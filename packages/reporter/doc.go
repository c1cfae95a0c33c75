// Package reporter drives the result aggregator and output capture through
// the lifecycle a test runner follows:
//
//	r.Begin()
//	for each test:
//	    r.BeforeTest(test)
//	    ... run it, then r.AddSuccess / r.AddFailure / r.AddError / r.AddSkip ...
//	    r.AfterTest(test)
//	r.Finalize()
//	r.PrintErrors()
//	r.PrintSummary(start, stop)
//
// Failures and errors are enriched with whatever the test wrote to the
// captured stream before they are classified.
package reporter

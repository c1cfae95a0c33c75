package result

import "github.com/abdul-hamid-achik/tally/packages/errclass"

// Test is the handle a runner reports outcomes for. The aggregator only ever
// changes the passed flag.
type Test interface {
	// ID identifies the test uniquely within a run.
	ID() string
	// ShortDescription is a one-line human description; may be empty.
	ShortDescription() string
	// FailureCategory is the category treated as an ordinary failure.
	FailureCategory() *errclass.Category
	Passed() bool
	SetPassed(passed bool)
}

// OutputRecorder is implemented by tests that keep the output captured while
// they ran.
type OutputRecorder interface {
	SetCapturedOutput(output string)
}

// Case is a plain Test implementation.
type Case struct {
	Name        string
	Description string
	// Failure overrides errclass.Failure as the failure category.
	Failure *errclass.Category

	passed         bool
	capturedOutput string
}

// NewCase creates a test that has not failed yet.
func NewCase(name, description string) *Case {
	return &Case{Name: name, Description: description, passed: true}
}

func (c *Case) ID() string               { return c.Name }
func (c *Case) String() string           { return c.Name }
func (c *Case) ShortDescription() string { return c.Description }
func (c *Case) Passed() bool             { return c.passed }
func (c *Case) SetPassed(passed bool)    { c.passed = passed }

func (c *Case) FailureCategory() *errclass.Category {
	if c.Failure != nil {
		return c.Failure
	}
	return errclass.Failure
}

func (c *Case) SetCapturedOutput(output string) { c.capturedOutput = output }

// CapturedOutput returns what the test wrote while capture was active, if the
// output was attached to a failure or error.
func (c *Case) CapturedOutput() string { return c.capturedOutput }

func failureCategory(t Test) *errclass.Category {
	if cat := t.FailureCategory(); cat != nil {
		return cat
	}
	return errclass.Failure
}

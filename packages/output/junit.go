package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/result"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	ID         string           `xml:"id,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is the tests of one suite
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats a run as JUnit XML
type JUnitFormatter struct {
	settings
}

func NewJUnitFormatter(opts ...Option) *JUnitFormatter {
	return &JUnitFormatter{settings: newSettings(opts)}
}

func (f *JUnitFormatter) Name() string      { return "junit" }
func (f *JUnitFormatter) Extension() string { return ".xml" }

// Build assembles the XML document without writing it.
func (f *JUnitFormatter) Build(a *result.Aggregator) JUnitTestSuites {
	timestamp := f.now().Format(time.RFC3339)
	cases := testCases(a.Records())
	all := count(cases)

	root := JUnitTestSuites{
		Name:      defaultSuite,
		ID:        f.runID,
		Tests:     all.Total,
		Failures:  all.Failed,
		Errors:    all.Errors + all.Blocked,
		Skipped:   all.Skipped,
		Time:      all.Duration.Seconds(),
		Timestamp: timestamp,
	}

	for _, g := range groupBySuite(cases) {
		t := count(g.Cases)
		suite := JUnitTestSuite{
			Name:      g.Name,
			Tests:     t.Total,
			Failures:  t.Failed,
			Errors:    t.Errors + t.Blocked,
			Skipped:   t.Skipped,
			Time:      t.Duration.Seconds(),
			Timestamp: timestamp,
			TestCases: make([]JUnitTestCase, 0, len(g.Cases)),
		}
		for _, c := range g.Cases {
			suite.TestCases = append(suite.TestCases, junitCase(c))
		}
		root.TestSuites = append(root.TestSuites, suite)
	}
	return root
}

func junitCase(c testCase) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      c.Name,
		ClassName: c.Suite,
		Time:      c.Duration.Seconds(),
		SystemOut: c.Output,
	}

	switch {
	case c.Kind == result.KindSuccess:
	case c.Kind == result.KindBlocked:
		tc.Error = &JUnitError{
			Message: "blocked: " + c.Context,
			Type:    c.Category,
			Content: c.Detail,
		}
	case c.Kind == result.KindError && c.Failing:
		tc.Error = &JUnitError{Message: c.Message, Type: c.Category, Content: c.Detail}
	case c.Failing:
		tc.Failure = &JUnitFailure{Message: c.Message, Type: c.Category, Content: c.Detail}
	default:
		msg := c.Reason
		if msg == "" {
			msg = c.Label
		}
		tc.Skipped = &JUnitSkipped{Message: msg}
	}
	return tc
}

// Report writes the JUnit XML document
func (f *JUnitFormatter) Report(w io.Writer, a *result.Aggregator) error {
	w = f.target(w)
	if _, err := fmt.Fprint(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(f.Build(a)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

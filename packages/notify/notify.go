package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/result"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when tests fail
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when tests pass
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and on the first
	// passing run after a failure
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name. Empty means NotifyFailure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch on := NotifyOn(strings.ToLower(strings.TrimSpace(s))); on {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return on, nil
	default:
		return "", fmt.Errorf("invalid notify policy %q (always, failure, success, recovery)", s)
	}
}

// maxFailedResults bounds how many failing tests a message lists.
const maxFailedResults = 10

// RunSummary represents the summary of a test run for notifications
type RunSummary struct {
	RunID         string         `json:"run_id,omitempty"`
	TotalTests    int            `json:"total_tests"`
	PassedTests   int            `json:"passed_tests"`
	FailedTests   int            `json:"failed_tests"`
	SkippedTests  int            `json:"skipped_tests"`
	BlockedTests  int            `json:"blocked_tests"`
	Labels        map[string]int `json:"labels,omitempty"`
	Duration      time.Duration  `json:"duration"`
	Environment   string         `json:"environment,omitempty"`
	FailedResults []FailedTest   `json:"failed_results,omitempty"`
	// Truncated counts failing tests left out of FailedResults.
	Truncated  int  `json:"truncated,omitempty"`
	IsRecovery bool `json:"is_recovery,omitempty"`
}

// FailedTest represents a failing outcome for notifications
type FailedTest struct {
	Name   string   `json:"name"`
	Label  string   `json:"label"`
	Errors []string `json:"errors,omitempty"`
}

// Successful reports whether nothing counted against the run.
func (s *RunSummary) Successful() bool {
	return s.FailedTests == 0
}

// FromAggregator summarizes a finished run.
func FromAggregator(a *result.Aggregator, runID string, duration time.Duration) *RunSummary {
	s := &RunSummary{
		RunID:    runID,
		Duration: duration,
		Labels:   a.Summary(),
	}
	for _, r := range a.Records() {
		s.TotalTests++
		switch {
		case r.Kind == result.KindSuccess:
			s.PassedTests++
		case r.Kind == result.KindBlocked && !r.Failing:
			s.BlockedTests++
		case r.Failing:
			s.FailedTests++
			if r.Kind == result.KindBlocked {
				s.BlockedTests++
			}
			if len(s.FailedResults) == maxFailedResults {
				s.Truncated++
				continue
			}
			s.FailedResults = append(s.FailedResults, failedTest(r))
		default:
			s.SkippedTests++
		}
	}
	return s
}

func failedTest(r result.Record) FailedTest {
	ft := FailedTest{Name: r.Test.ID(), Label: r.Label}
	detail := r.Info.Detail()
	if r.Kind == result.KindBlocked {
		detail = "blocked by " + r.Context
	}
	// captured output follows the first line; keep messages short
	if line, _, _ := strings.Cut(strings.TrimSpace(detail), "\n"); line != "" {
		ft.Errors = append(ft.Errors, line)
	}
	return ft
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about test results
	Notify(summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true, // Assume success initially
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of notifiers.
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// SetLastState seeds the previous verdict, usually from run history, so the
// first run can be recognized as a recovery.
func (m *Manager) SetLastState(successful bool) {
	m.lastState = successful
}

// ShouldNotify applies the policy to summary without sending anything.
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	switch m.notifyOn {
	case NotifyAlways:
		return true
	case NotifyFailure:
		return !summary.Successful()
	case NotifySuccess:
		return summary.Successful()
	case NotifyRecovery:
		return !summary.Successful() || !m.lastState
	default:
		return false
	}
}

// Notify sends notifications based on the configured policy. Every notifier
// is tried; their errors are joined.
func (m *Manager) Notify(summary *RunSummary) error {
	currentSuccess := summary.Successful()
	if m.notifyOn == NotifyRecovery && !m.lastState && currentSuccess {
		summary.IsRecovery = true
	}
	shouldNotify := m.ShouldNotify(summary)
	m.lastState = currentSuccess

	if !shouldNotify {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

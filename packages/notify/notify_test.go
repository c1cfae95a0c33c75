package notify

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/errclass"
	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeNotifier struct {
	name  string
	calls []*RunSummary
	err   error
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(s *RunSummary) error {
	f.calls = append(f.calls, s)
	return f.err
}

func passing() *RunSummary { return &RunSummary{TotalTests: 2, PassedTests: 2} }
func failing() *RunSummary { return &RunSummary{TotalTests: 2, PassedTests: 1, FailedTests: 1} }

func TestParseNotifyOn(t *testing.T) {
	tests := []struct {
		in      string
		want    NotifyOn
		wantErr bool
	}{
		{"", NotifyFailure, false},
		{"always", NotifyAlways, false},
		{" Recovery ", NotifyRecovery, false},
		{"success", NotifySuccess, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseNotifyOn(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_Policies(t *testing.T) {
	tests := []struct {
		on        NotifyOn
		lastState bool
		summary   *RunSummary
		want      bool
	}{
		{NotifyAlways, true, passing(), true},
		{NotifyAlways, true, failing(), true},
		{NotifyFailure, true, passing(), false},
		{NotifyFailure, true, failing(), true},
		{NotifySuccess, true, passing(), true},
		{NotifySuccess, true, failing(), false},
		{NotifyRecovery, true, passing(), false},
		{NotifyRecovery, false, passing(), true},
		{NotifyRecovery, true, failing(), true},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("%s/last=%v/ok=%v", tt.on, tt.lastState, tt.summary.Successful())
		t.Run(name, func(t *testing.T) {
			n := &fakeNotifier{name: "fake"}
			m := NewManager(tt.on, n)
			m.SetLastState(tt.lastState)
			require.NoError(t, m.Notify(tt.summary))
			assert.Equal(t, tt.want, len(n.calls) == 1)
		})
	}
}

func TestManager_RecoveryTracksState(t *testing.T) {
	n := &fakeNotifier{name: "fake"}
	m := NewManager(NotifyRecovery, n)

	require.NoError(t, m.Notify(failing()))
	recovered := passing()
	require.NoError(t, m.Notify(recovered))
	require.NoError(t, m.Notify(passing()))

	require.Len(t, n.calls, 2)
	assert.True(t, recovered.IsRecovery)
	assert.False(t, n.calls[0].IsRecovery)
}

func TestManager_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeNotifier{name: "a", err: boom}
	b := &fakeNotifier{name: "b"}
	m := NewManager(NotifyAlways, a)
	m.AddNotifier(b)
	assert.Equal(t, 2, m.Len())

	err := m.Notify(passing())
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "a: boom")
	assert.Len(t, b.calls, 1, "a failing notifier does not stop the others")
}

func TestFromAggregator(t *testing.T) {
	agg := result.New(result.WithWriter(io.Discard), result.WithVerbosity(0))
	agg.Register(errclass.Skip, "SKIP", false)
	agg.Register(errclass.Deprecated, "DEPRECATED", false)

	ok := result.NewCase("s::ok", "")
	agg.AddSuccess(ok)
	bad := result.NewCase("s::bad", "")
	agg.AddFailure(bad, result.Info{Category: errclass.Failure, Value: "want 1\n>> begin captured stdout <<\nnoise"})
	skip := result.NewCase("s::skip", "")
	agg.AddSkip(skip, "later")
	old := result.NewCase("s::old", "")
	agg.AddError(old, result.Info{Category: errclass.Deprecated, Value: "old"})
	blocked := result.NewCase("s::blocked", "")
	agg.AddBlocked(blocked, result.Info{Category: errclass.Blocked, Value: "db down"}, "setup s")

	s := FromAggregator(agg, "run-1", 1500*time.Millisecond)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 5, s.TotalTests)
	assert.Equal(t, 1, s.PassedTests)
	assert.Equal(t, 2, s.FailedTests)
	assert.Equal(t, 2, s.SkippedTests)
	assert.Equal(t, 1, s.BlockedTests)
	assert.Equal(t, 1, s.Labels["SKIP"])
	assert.False(t, s.Successful())

	require.Len(t, s.FailedResults, 2)
	assert.Equal(t, FailedTest{Name: "s::bad", Label: "FAIL", Errors: []string{"want 1"}}, s.FailedResults[0])
	assert.Equal(t, FailedTest{Name: "s::blocked", Label: "ERROR", Errors: []string{"blocked by setup s"}}, s.FailedResults[1])
}

func TestFromAggregator_TruncatesFailures(t *testing.T) {
	agg := result.New(result.WithWriter(io.Discard), result.WithVerbosity(0))
	for i := 0; i < maxFailedResults+3; i++ {
		agg.AddFailure(result.NewCase(fmt.Sprintf("t%d", i), ""), result.Info{Category: errclass.Failure, Value: "x"})
	}
	s := FromAggregator(agg, "", 0)
	assert.Len(t, s.FailedResults, maxFailedResults)
	assert.Equal(t, 3, s.Truncated)
	assert.Equal(t, maxFailedResults+3, s.FailedTests)
}

func TestSlackNotifier(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		body = string(data)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, WithSlackChannel("#ci"), WithSlackUsername("bot"))
	assert.Equal(t, "slack", n.Name())

	s := failing()
	s.RunID = "run-9"
	s.FailedResults = []FailedTest{{Name: "s::bad", Label: "FAIL", Errors: []string{"want 1"}}}
	require.NoError(t, n.Notify(s))

	assert.Equal(t, "#ci", gjson.Get(body, "channel").String())
	assert.Equal(t, "bot", gjson.Get(body, "username").String())
	assert.Equal(t, "danger", gjson.Get(body, "attachments.0.color").String())
	assert.Equal(t, ":x: 1 test(s) failed", gjson.Get(body, "attachments.0.title").String())
	assert.Contains(t, gjson.Get(body, "attachments.0.text").String(), "• `s::bad` (FAIL)\n  - want 1\n")
	assert.Equal(t, "tally run-9", gjson.Get(body, "attachments.0.footer").String())
	assert.Equal(t, "2", gjson.Get(body, `attachments.0.fields.#(title=="Total Tests").value`).String())
}

func TestSlackNotifier_RecoveryAndStatus(t *testing.T) {
	status := http.StatusOK
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(status)
		fmt.Fprint(w, "invalid_payload")
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	s := passing()
	s.IsRecovery = true
	require.NoError(t, n.Notify(s))
	assert.Equal(t, ":tada: Tests recovered!", gjson.Get(body, "attachments.0.title").String())
	assert.Equal(t, "good", gjson.Get(body, "attachments.0.color").String())

	status = http.StatusBadRequest
	err := n.Notify(s)
	assert.ErrorContains(t, err, "slack API returned status 400: invalid_payload")
}

func TestTeamsNotifier(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewTeamsNotifier(srv.URL)
	assert.Equal(t, "teams", n.Name())

	s := failing()
	s.Environment = "staging"
	s.FailedResults = []FailedTest{{Name: "s::bad", Label: "FAIL"}}
	require.NoError(t, n.Notify(s))

	card := gjson.Get(body, "attachments.0.content")
	assert.Equal(t, "message", gjson.Get(body, "type").String())
	assert.Equal(t, "AdaptiveCard", card.Get("type").String())
	assert.Equal(t, "✗ 1 test(s) failed", card.Get("body.0.text").String())
	assert.Equal(t, "attention", card.Get("body.0.color").String())
	assert.Equal(t, "**Environment:** staging", card.Get("body.2.text").String())
	assert.Contains(t, body, "- `s::bad` (FAIL)")
}

func TestTeamsNotifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewTeamsNotifier(url, WithTeamsClient(&http.Client{Timeout: time.Second})).Notify(passing())
	assert.ErrorContains(t, err, "failed to send Teams notification")
}

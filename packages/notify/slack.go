package notify

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
	now        func() time.Time
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackUsername sets the Slack bot username
func WithSlackUsername(username string) SlackOption {
	return func(s *SlackNotifier) {
		s.username = username
	}
}

// WithSlackIconEmoji sets the Slack bot icon emoji
func WithSlackIconEmoji(emoji string) SlackOption {
	return func(s *SlackNotifier) {
		s.iconEmoji = emoji
	}
}

// WithSlackClient replaces the HTTP client.
func WithSlackClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = c
	}
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "tally",
		iconEmoji:  ":test_tube:",
		client:     &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the name of the notifier
func (s *SlackNotifier) Name() string {
	return "slack"
}

// slackMessage represents a Slack webhook message
type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

// slackAttachment represents a Slack message attachment
type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

// slackField represents a field in a Slack attachment
type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(summary *RunSummary) error {
	return postJSON(s.client, "slack", s.webhookURL, s.message(summary), http.StatusOK)
}

func (s *SlackNotifier) message(summary *RunSummary) slackMessage {
	title, failed := headline(summary)
	color, emoji := "good", ":white_check_mark:"
	switch {
	case failed:
		color, emoji = "danger", ":x:"
	case summary.IsRecovery:
		emoji = ":tada:"
	}

	fields := []slackField{
		{Title: "Total Tests", Value: fmt.Sprintf("%d", summary.TotalTests), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.PassedTests), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.FailedTests), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}
	if summary.SkippedTests > 0 {
		fields = append(fields, slackField{Title: "Skipped", Value: fmt.Sprintf("%d", summary.SkippedTests), Short: true})
	}
	if summary.BlockedTests > 0 {
		fields = append(fields, slackField{Title: "Blocked", Value: fmt.Sprintf("%d", summary.BlockedTests), Short: true})
	}
	if summary.Environment != "" {
		fields = append(fields, slackField{Title: "Environment", Value: summary.Environment, Short: true})
	}

	var text strings.Builder
	if len(summary.FailedResults) > 0 {
		text.WriteString("*Failed tests:*\n")
		for _, ft := range summary.FailedResults {
			fmt.Fprintf(&text, "• `%s` (%s)\n", ft.Name, ft.Label)
			for _, err := range ft.Errors {
				fmt.Fprintf(&text, "  - %s\n", err)
			}
		}
		if summary.Truncated > 0 {
			fmt.Fprintf(&text, "_and %d more_\n", summary.Truncated)
		}
	}

	foot := footer
	if summary.RunID != "" {
		foot += " " + summary.RunID
	}

	return slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("%s %s", emoji, title),
			Text:   text.String(),
			Fields: fields,
			Footer: foot,
			TS:     s.now().Unix(),
		}},
	}
}

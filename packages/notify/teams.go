package notify

import (
	"fmt"
	"net/http"
	"time"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// TeamsOption is a functional option for TeamsNotifier
type TeamsOption func(*TeamsNotifier)

// WithTeamsClient replaces the HTTP client.
func WithTeamsClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.client = c
	}
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Name returns the name of the notifier
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage represents a Microsoft Teams Adaptive Card message
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

// teamsCard represents an Adaptive Card
type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

// teamsCardContent is the content of an Adaptive Card
type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

// teamsBlock represents a block in the Adaptive Card
type teamsBlock struct {
	Type      string        `json:"type"`
	Size      string        `json:"size,omitempty"`
	Weight    string        `json:"weight,omitempty"`
	Text      string        `json:"text,omitempty"`
	Color     string        `json:"color,omitempty"`
	Wrap      bool          `json:"wrap,omitempty"`
	Columns   []teamsColumn `json:"columns,omitempty"`
	Items     []teamsBlock  `json:"items,omitempty"`
	Spacing   string        `json:"spacing,omitempty"`
	Separator bool          `json:"separator,omitempty"`
}

// teamsColumn represents a column in a ColumnSet
type teamsColumn struct {
	Type  string       `json:"type"`
	Width string       `json:"width"`
	Items []teamsBlock `json:"items"`
}

// Notify sends a notification to Microsoft Teams
func (t *TeamsNotifier) Notify(summary *RunSummary) error {
	return postJSON(t.client, "Teams", t.webhookURL, t.message(summary), http.StatusOK, http.StatusAccepted)
}

func statColumn(label, value, color string) teamsColumn {
	return teamsColumn{
		Type:  "Column",
		Width: "stretch",
		Items: []teamsBlock{
			{Type: "TextBlock", Text: fmt.Sprintf("**%s**", label), Wrap: true},
			{Type: "TextBlock", Text: value, Color: color, Wrap: true},
		},
	}
}

func (t *TeamsNotifier) message(summary *RunSummary) teamsMessage {
	title, failed := headline(summary)
	color, mark := "good", "✓"
	switch {
	case failed:
		color, mark = "attention", "✗"
	case summary.IsRecovery:
		mark = "🎉"
	}

	columns := []teamsColumn{
		statColumn("Total Tests", fmt.Sprintf("%d", summary.TotalTests), ""),
		statColumn("Passed", fmt.Sprintf("%d", summary.PassedTests), "good"),
		statColumn("Failed", fmt.Sprintf("%d", summary.FailedTests), "attention"),
		statColumn("Duration", summary.Duration.Round(time.Millisecond).String(), ""),
	}
	if summary.SkippedTests > 0 {
		columns = append(columns, statColumn("Skipped", fmt.Sprintf("%d", summary.SkippedTests), "warning"))
	}

	body := []teamsBlock{
		{
			Type:   "TextBlock",
			Size:   "Large",
			Weight: "Bolder",
			Text:   fmt.Sprintf("%s %s", mark, title),
			Color:  color,
		},
		{
			Type:      "ColumnSet",
			Separator: true,
			Spacing:   "Medium",
			Columns:   columns,
		},
	}

	if summary.Environment != "" {
		body = append(body, teamsBlock{
			Type: "TextBlock",
			Text: fmt.Sprintf("**Environment:** %s", summary.Environment),
			Wrap: true,
		})
	}

	if len(summary.FailedResults) > 0 {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      "**Failed Tests:**",
			Separator: true,
			Spacing:   "Medium",
		})
		for _, ft := range summary.FailedResults {
			body = append(body, teamsBlock{
				Type: "TextBlock",
				Text: fmt.Sprintf("- `%s` (%s)", ft.Name, ft.Label),
				Wrap: true,
			})
			for _, err := range ft.Errors {
				body = append(body, teamsBlock{
					Type: "TextBlock",
					Text: fmt.Sprintf("  - %s", err),
					Wrap: true,
				})
			}
		}
		if summary.Truncated > 0 {
			body = append(body, teamsBlock{
				Type: "TextBlock",
				Text: fmt.Sprintf("_and %d more_", summary.Truncated),
			})
		}
	}

	foot := fmt.Sprintf("_%s - %s_", footer, t.now().Format(time.RFC3339))
	if summary.RunID != "" {
		foot = fmt.Sprintf("_%s %s - %s_", footer, summary.RunID, t.now().Format(time.RFC3339))
	}
	body = append(body, teamsBlock{
		Type:      "TextBlock",
		Text:      foot,
		Separator: true,
		Spacing:   "Medium",
	})

	return teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}
}

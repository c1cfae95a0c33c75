package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"
)

const defaultTimeout = 10 * time.Second

// footer names the sender in every message.
const footer = "tally"

// postJSON posts payload to url and accepts any of the ok statuses.
func postJSON(client *http.Client, service, url string, payload any, ok ...int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", service, err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", service, err)
	}
	defer resp.Body.Close()

	if !slices.Contains(ok, resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s API returned status %d: %s", service, resp.StatusCode, string(body))
	}
	return nil
}

// headline returns the message title for summary.
func headline(summary *RunSummary) (title string, failed bool) {
	switch {
	case !summary.Successful():
		return fmt.Sprintf("%d test(s) failed", summary.FailedTests), true
	case summary.IsRecovery:
		return "Tests recovered!", false
	default:
		return "All tests passed!", false
	}
}

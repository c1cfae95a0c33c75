package runner

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/core/suite"
)

// waitForService polls a URL until it returns the expected status code or times out
func (r *Runner) waitForService(ctx context.Context, cfg *suite.WaitFor, resolve func(string) string) error {
	if cfg == nil {
		return nil
	}

	url := resolve(cfg.URL)
	timeout, interval := cfg.Durations()
	expectedStatus := cfg.ExpectedStatus()

	r.logger.Debug("waiting for service", "url", url, "status", expectedStatus, "timeout", timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := r.httpClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	var lastErr error
	var lastStatus int

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("wait for %s: %w", url, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			lastStatus = resp.StatusCode
			resp.Body.Close()
			if resp.StatusCode == expectedStatus {
				r.logger.Debug("service ready", "url", url)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("service %s not ready after %v: %v", url, timeout, lastErr)
			}
			return fmt.Errorf("service %s not ready after %v: got status %d, expected %d",
				url, timeout, lastStatus, expectedStatus)
		case <-time.After(interval):
		}
	}
}

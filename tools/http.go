// HTTP JSON client shared by the network tools.
//
// Information Hiding:
// - HTTP client construction and timeouts hidden
// - Status and body handling abstracted
// - Timeout detection hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is echoed back.
const maxErrorBody = 512

type jsonClient struct {
	client      *http.Client
	timeoutSecs uint64
}

func newJSONClient(timeoutSecs uint64) *jsonClient {
	return &jsonClient{
		client: &http.Client{
			Timeout: time.Duration(timeoutSecs) * time.Second,
		},
		timeoutSecs: timeoutSecs,
	}
}

// get issues a GET to base with params and decodes the JSON body into out.
func (c *jsonClient) get(ctx context.Context, base string, params url.Values, out interface{}) error {
	target := base
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		target = base + sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("request timed out after %d seconds", c.timeoutSecs)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("HTTP error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

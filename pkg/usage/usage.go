// Package usage fetches live quota data from the vendor usage endpoints.
// Responses are returned verbatim as opaque payloads; only the request
// contracts and the error taxonomy are interpreted here. No request is ever
// retried.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/aiq-dev/aiq/pkg/account"
)

// FetchDeadline bounds the work done for a single account.
const FetchDeadline = 15 * time.Second

// Result is the per-account outcome of a usage fetch.
type Result struct {
	OK      bool           `json:"ok"`
	Label   string         `json:"label"`
	Source  string         `json:"source,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Overage map[string]any `json:"overage,omitempty"`
	Account map[string]any `json:"account,omitempty"`
	OrgID   string         `json:"orgId,omitempty"`
	Error   string         `json:"error,omitempty"`

	// SubErrors carries per-sub-request failures for vendor B, keyed by
	// endpoint name. A failed sibling never aborts the others.
	SubErrors map[string]string `json:"subErrors,omitempty"`
}

// The four rolling windows whose utilization identifies a usage payload.
var fingerprintWindows = [4]string{"five_hour", "seven_day", "seven_day_opus", "seven_day_oauth_apps"}

// Fingerprint reduces a usage payload to the tuple of normalized window
// utilizations. Two accounts sharing a subscription produce identical
// tuples and collapse in the display.
func Fingerprint(res *Result) (string, bool) {
	if !res.OK || res.Payload == nil {
		return "", false
	}
	values := make([]float64, len(fingerprintWindows))
	found := false
	for i, key := range fingerprintWindows {
		window, ok := res.Payload[key].(map[string]any)
		if !ok {
			continue
		}
		if u, ok := window["utilization"].(float64); ok {
			values[i] = u
			found = true
		}
	}
	if !found {
		return "", false
	}
	return fmt.Sprintf("%.4f|%.4f|%.4f|%.4f", values[0], values[1], values[2], values[3]), true
}

// DedupeResults collapses successful results with identical utilization
// fingerprints; the first occurrence wins. Failures are never collapsed.
func DedupeResults(results []*Result) []*Result {
	seen := map[string]bool{}
	out := make([]*Result, 0, len(results))
	for _, res := range results {
		if fp, ok := Fingerprint(res); ok {
			if seen[fp] {
				continue
			}
			seen[fp] = true
		}
		out = append(out, res)
	}
	return out
}

// Client issues the vendor usage requests. Base URLs are overridable for
// tests; zero values mean production endpoints.
type Client struct {
	CodexBaseURL  string
	ClaudeAPIBase string
	ClaudeWebBase string
	HTTP          *http.Client
}

// NewClient returns a client against the production endpoints.
func NewClient() *Client {
	return &Client{}
}

func (c *Client) codexBase() string {
	if c.CodexBaseURL != "" {
		return c.CodexBaseURL
	}
	return "https://chatgpt.com"
}

func (c *Client) claudeAPIBase() string {
	if c.ClaudeAPIBase != "" {
		return c.ClaudeAPIBase
	}
	return "https://api.anthropic.com"
}

func (c *Client) claudeWebBase() string {
	if c.ClaudeWebBase != "" {
		return c.ClaudeWebBase
	}
	return "https://claude.ai"
}

func (c *Client) http() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// FetchCodex retrieves vendor-A usage for one account.
func (c *Client) FetchCodex(ctx context.Context, acct *account.CodexAccount) *Result {
	res := &Result{Label: acct.Label, Source: acct.Source}

	ctx, cancel := context.WithTimeout(ctx, FetchDeadline)
	defer cancel()

	payload, errMsg := c.get(ctx, c.codexBase()+"/backend-api/wham/usage", map[string]string{
		"Authorization":      "Bearer " + acct.AccessToken,
		"ChatGPT-Account-Id": acct.AccountID,
		"originator":         "codex_cli_rs",
	}, nil)
	if errMsg != "" {
		res.Error = errMsg
		return res
	}
	res.OK = true
	res.Payload = payload
	return res
}

// get performs one authenticated GET and interprets the response per the
// error taxonomy: 2xx JSON passes through, anything else becomes an error
// string on the result. Never retried.
func (c *Client) get(ctx context.Context, url string, headers map[string]string, cookies []*http.Cookie) (map[string]any, string) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err.Error()
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err.Error()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err.Error()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "invalid usage payload").Error()
	}
	return payload, ""
}

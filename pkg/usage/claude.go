package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/aiq-dev/aiq/pkg/account"
)

const (
	anthropicBetaHeader    = "oauth-2025-04-20"
	anthropicVersionHeader = "2023-06-01"
)

func claudeOAuthHeaders(accessToken string) map[string]string {
	return map[string]string{
		"Authorization":     "Bearer " + accessToken,
		"anthropic-beta":    anthropicBetaHeader,
		"anthropic-version": anthropicVersionHeader,
	}
}

// FetchClaude retrieves vendor-B usage for one OAuth account. The usage,
// overage, and account endpoints are queried concurrently; a failed sibling
// lands in SubErrors without aborting the others. The result is OK when the
// primary usage request succeeded.
func (c *Client) FetchClaude(ctx context.Context, acct *account.ClaudeAccount) *Result {
	res := &Result{Label: acct.Label, Source: acct.Source, OrgID: acct.OrgID}
	if acct.OAuthToken == "" {
		res.Error = "account has no OAuth token"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, FetchDeadline)
	defer cancel()

	headers := claudeOAuthHeaders(acct.OAuthToken)
	base := c.claudeAPIBase()

	var wg sync.WaitGroup
	var mu sync.Mutex
	subErrors := map[string]string{}

	fetch := func(name, path string, into *map[string]any) {
		defer wg.Done()
		payload, errMsg := c.get(ctx, base+path, headers, nil)
		mu.Lock()
		defer mu.Unlock()
		if errMsg != "" {
			subErrors[name] = errMsg
			return
		}
		*into = payload
	}

	wg.Add(3)
	go fetch("usage", "/api/oauth/usage", &res.Payload)
	go fetch("overage", "/api/oauth/overage", &res.Overage)
	go fetch("account", "/api/oauth/account", &res.Account)
	wg.Wait()

	if len(subErrors) > 0 {
		res.SubErrors = subErrors
	}
	if errMsg, failed := subErrors["usage"]; failed {
		res.Error = errMsg
		return res
	}
	res.OK = true
	return res
}

// sessionAttempt is one rung of the cookie-fallback ladder.
type sessionAttempt struct {
	name    string
	cookies []*http.Cookie
	bearer  string
}

// FetchClaudeSession is the legacy cookie fallback against the claude.ai
// web API. Attempts run in order: cookie-only, each bearer alone, then
// cookie+bearer combinations. 401/403 and 5xx advance to the next attempt;
// 429 and any other non-OK status terminate with that status.
func (c *Client) FetchClaudeSession(ctx context.Context, acct *account.ClaudeAccount) *Result {
	res := &Result{Label: acct.Label, Source: acct.Source, OrgID: acct.OrgID}
	if acct.OrgID == "" {
		res.Error = "account has no organization id"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, FetchDeadline)
	defer cancel()

	var cookies []*http.Cookie
	if acct.SessionKey != "" {
		cookies = append(cookies, &http.Cookie{Name: "sessionKey", Value: acct.SessionKey})
	}
	if acct.CFClearance != "" {
		cookies = append(cookies, &http.Cookie{Name: "cf_clearance", Value: acct.CFClearance})
	}

	var attempts []sessionAttempt
	if len(cookies) > 0 {
		attempts = append(attempts, sessionAttempt{name: "cookie", cookies: cookies})
	}
	for _, bearer := range []string{acct.OAuthToken, acct.SessionKey} {
		if bearer != "" {
			attempts = append(attempts, sessionAttempt{name: "bearer", bearer: bearer})
		}
	}
	if len(cookies) > 0 {
		for _, bearer := range []string{acct.OAuthToken, acct.SessionKey} {
			if bearer != "" {
				attempts = append(attempts, sessionAttempt{name: "cookie+bearer", cookies: cookies, bearer: bearer})
			}
		}
	}
	if len(attempts) == 0 {
		res.Error = "account has no usable session material"
		return res
	}

	url := fmt.Sprintf("%s/api/organizations/%s/usage", c.claudeWebBase(), acct.OrgID)
	var lastErr string
	for _, attempt := range attempts {
		headers := map[string]string{}
		if attempt.bearer != "" {
			headers["Authorization"] = "Bearer " + attempt.bearer
		}

		payload, status, errMsg := c.getWithStatus(ctx, url, headers, attempt.cookies)
		switch {
		case errMsg == "" && status >= 200 && status <= 299:
			res.OK = true
			res.Payload = payload
			return res
		case status == http.StatusUnauthorized || status == http.StatusForbidden || status >= 500:
			lastErr = fmt.Sprintf("HTTP %d", status)
			continue
		case status != 0:
			// 429 and every other non-OK status terminates the ladder.
			res.Error = fmt.Sprintf("HTTP %d", status)
			return res
		default:
			lastErr = errMsg
		}
	}
	res.Error = lastErr
	return res
}

// getWithStatus is get but with the HTTP status exposed so the ladder can
// distinguish advance-vs-terminate statuses.
func (c *Client) getWithStatus(ctx context.Context, url string, headers map[string]string, cookies []*http.Cookie) (map[string]any, int, string) {
	reqCtx, cancel := context.WithTimeout(ctx, FetchDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", url, nil)
	if err != nil {
		return nil, 0, err.Error()
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.http().Do(req)
	if err != nil {
		return nil, 0, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, ""
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, err.Error()
	}
	return payload, resp.StatusCode, ""
}

// FetchAllClaude fans out across accounts with a join, one goroutine per
// account, each bounded by its own deadline.
func (c *Client) FetchAllClaude(ctx context.Context, accounts []*account.ClaudeAccount) []*Result {
	results := make([]*Result, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct *account.ClaudeAccount) {
			defer wg.Done()
			if acct.OAuthToken != "" {
				results[i] = c.FetchClaude(ctx, acct)
				return
			}
			results[i] = c.FetchClaudeSession(ctx, acct)
		}(i, acct)
	}
	wg.Wait()
	return results
}

// FetchAllCodex fans out across vendor-A accounts with a join.
func (c *Client) FetchAllCodex(ctx context.Context, accounts []*account.CodexAccount) []*Result {
	results := make([]*Result, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct *account.CodexAccount) {
			defer wg.Done()
			results[i] = c.FetchCodex(ctx, acct)
		}(i, acct)
	}
	wg.Wait()
	return results
}

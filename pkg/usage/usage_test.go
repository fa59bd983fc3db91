package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiq-dev/aiq/pkg/account"
)

func TestFetchCodex(t *testing.T) {
	t.Run("success passes the payload through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/backend-api/wham/usage", r.URL.Path)
			assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			assert.Equal(t, "acc_1", r.Header.Get("ChatGPT-Account-Id"))
			assert.Equal(t, "codex_cli_rs", r.Header.Get("originator"))
			json.NewEncoder(w).Encode(map[string]any{"plan_type": "pro", "rate_limits": map[string]any{}})
		}))
		defer server.Close()

		c := &Client{CodexBaseURL: server.URL, HTTP: server.Client()}
		res := c.FetchCodex(context.Background(), &account.CodexAccount{
			Label: "work", AccessToken: "at", AccountID: "acc_1",
		})
		require.True(t, res.OK)
		assert.Equal(t, "work", res.Label)
		assert.Equal(t, "pro", res.Payload["plan_type"])
	})

	t.Run("http error becomes a status string", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			http.Error(w, "nope", http.StatusUnauthorized)
		}))
		defer server.Close()

		c := &Client{CodexBaseURL: server.URL, HTTP: server.Client()}
		res := c.FetchCodex(context.Background(), &account.CodexAccount{Label: "work", AccessToken: "at"})
		assert.False(t, res.OK)
		assert.Equal(t, "HTTP 401", res.Error)
		assert.Equal(t, 1, calls, "usage fetches are never retried")
	})

	t.Run("network error is a per-account error", func(t *testing.T) {
		c := &Client{CodexBaseURL: "http://127.0.0.1:1"}
		res := c.FetchCodex(context.Background(), &account.CodexAccount{Label: "work", AccessToken: "at"})
		assert.False(t, res.OK)
		assert.NotEmpty(t, res.Error)
	})
}

func TestFetchClaude(t *testing.T) {
	t.Run("three sibling requests merge into one result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
			assert.Equal(t, "oauth-2025-04-20", r.Header.Get("anthropic-beta"))
			assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
			switch r.URL.Path {
			case "/api/oauth/usage":
				json.NewEncoder(w).Encode(map[string]any{"five_hour": map[string]any{"utilization": 0.5}})
			case "/api/oauth/overage":
				json.NewEncoder(w).Encode(map[string]any{"enabled": true})
			case "/api/oauth/account":
				json.NewEncoder(w).Encode(map[string]any{"email": "u@example.com"})
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		c := &Client{ClaudeAPIBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaude(context.Background(), &account.ClaudeAccount{Label: "p", OAuthToken: "at"})
		require.True(t, res.OK)
		assert.Equal(t, map[string]any{"utilization": 0.5}, res.Payload["five_hour"])
		assert.Equal(t, true, res.Overage["enabled"])
		assert.Equal(t, "u@example.com", res.Account["email"])
		assert.Empty(t, res.SubErrors)
	})

	t.Run("failed sibling does not abort the others", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/oauth/overage" {
				http.Error(w, "nope", http.StatusForbidden)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}))
		defer server.Close()

		c := &Client{ClaudeAPIBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaude(context.Background(), &account.ClaudeAccount{Label: "p", OAuthToken: "at"})
		require.True(t, res.OK)
		assert.Equal(t, "HTTP 403", res.SubErrors["overage"])
		assert.NotNil(t, res.Payload)
	})

	t.Run("usage endpoint failure fails the result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/oauth/usage" {
				http.Error(w, "nope", http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}))
		defer server.Close()

		c := &Client{ClaudeAPIBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaude(context.Background(), &account.ClaudeAccount{Label: "p", OAuthToken: "at"})
		assert.False(t, res.OK)
		assert.Equal(t, "HTTP 500", res.Error)
	})
}

func TestFetchClaudeSession(t *testing.T) {
	acct := &account.ClaudeAccount{
		Label: "browser", SessionKey: "sk-ant-sid01-x", CFClearance: "cf",
		OrgID: "org-1", OAuthToken: "at",
	}

	t.Run("first successful rung wins", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/organizations/org-1/usage", r.URL.Path)
			attempts++
			if attempts == 1 {
				// Cookie-only attempt rejected.
				http.Error(w, "denied", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"usage": "data"})
		}))
		defer server.Close()

		c := &Client{ClaudeWebBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaudeSession(context.Background(), acct)
		require.True(t, res.OK)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, "data", res.Payload["usage"])
	})

	t.Run("5xx advances the ladder", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				http.Error(w, "oops", http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"ok": true})
		}))
		defer server.Close()

		c := &Client{ClaudeWebBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaudeSession(context.Background(), acct)
		assert.True(t, res.OK)
		assert.Equal(t, 3, attempts)
	})

	t.Run("429 terminates immediately", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer server.Close()

		c := &Client{ClaudeWebBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaudeSession(context.Background(), acct)
		assert.False(t, res.OK)
		assert.Equal(t, "HTTP 429", res.Error)
		assert.Equal(t, 1, attempts)
	})

	t.Run("all rungs exhausted reports the last error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusForbidden)
		}))
		defer server.Close()

		c := &Client{ClaudeWebBase: server.URL, HTTP: server.Client()}
		res := c.FetchClaudeSession(context.Background(), acct)
		assert.False(t, res.OK)
		assert.Equal(t, "HTTP 403", res.Error)
	})

	t.Run("missing org id fails without io", func(t *testing.T) {
		c := &Client{}
		res := c.FetchClaudeSession(context.Background(), &account.ClaudeAccount{Label: "x", SessionKey: "sk-ant-s"})
		assert.False(t, res.OK)
		assert.NotEmpty(t, res.Error)
	})
}

func payloadWithUtilization(values map[string]float64) map[string]any {
	payload := map[string]any{}
	for window, u := range values {
		payload[window] = map[string]any{"utilization": u}
	}
	return payload
}

func TestDedupeResults(t *testing.T) {
	shared := payloadWithUtilization(map[string]float64{"five_hour": 0.5, "seven_day": 0.2})
	other := payloadWithUtilization(map[string]float64{"five_hour": 0.9, "seven_day": 0.2})

	results := []*Result{
		{OK: true, Label: "a", Payload: shared},
		{OK: true, Label: "b", Payload: shared},
		{OK: true, Label: "c", Payload: other},
		{OK: false, Label: "fail1", Error: "HTTP 500"},
		{OK: false, Label: "fail2", Error: "HTTP 500"},
	}

	out := DedupeResults(results)
	require.Len(t, out, 4)
	assert.Equal(t, "a", out[0].Label, "first occurrence wins")
	assert.Equal(t, "c", out[1].Label)
	assert.Equal(t, "fail1", out[2].Label, "failures are never collapsed")
	assert.Equal(t, "fail2", out[3].Label)
}

func TestFingerprint(t *testing.T) {
	t.Run("no windows yields no fingerprint", func(t *testing.T) {
		_, ok := Fingerprint(&Result{OK: true, Payload: map[string]any{"something": "else"}})
		assert.False(t, ok)
	})

	t.Run("failure yields no fingerprint", func(t *testing.T) {
		_, ok := Fingerprint(&Result{OK: false})
		assert.False(t, ok)
	})
}
